// Package normalize holds the passes that remove volatile, non-structural
// metadata from dump text before two snapshots are compared.
//
// Every pass is a plain string transformation so passes can be tested alone
// and composed with Chain.
package normalize

import (
	"regexp"
	"strings"

	"github.com/stokaro/migcheck/dbschema/types"
)

// Pass transforms dump text.
type Pass func(string) string

// Chain composes passes left to right.
func Chain(passes ...Pass) Pass {
	return func(s string) string {
		for _, p := range passes {
			s = p(s)
		}
		return s
	}
}

var autoIncrementOption = regexp.MustCompile(`(?i)\s+AUTO_INCREMENT *= *\d+(\s+)`)

// StripAutoIncrement removes the AUTO_INCREMENT=<n> table option. The counter
// moves whenever rows are inserted, so it is never part of the structure. The
// column attribute "AUTO_INCREMENT" (without a value) is kept.
func StripAutoIncrement(ddl string) string {
	return autoIncrementOption.ReplaceAllString(ddl, "$1")
}

var horizontalSpace = regexp.MustCompile(`[ \t]+`)

// CollapseSpaces replaces runs of spaces and tabs with a single space.
func CollapseSpaces(s string) string {
	return horizontalSpace.ReplaceAllString(s, " ")
}

// Terminate trims the statement and appends ";" when it is missing.
func Terminate(stmt string) string {
	stmt = strings.TrimSpace(stmt)
	if !strings.HasSuffix(stmt, ";") {
		stmt += ";"
	}
	return stmt
}

// TriggerCreatedField is the SHOW CREATE TRIGGER column holding the trigger
// creation timestamp.
const TriggerCreatedField = "Created"

// DropField removes a column from a row. It is used for fields that change on
// every re-creation of an object, such as trigger timestamps.
func DropField(row types.Row, name string) types.Row {
	if !row.Has(name) {
		return row
	}
	return row.Without(name)
}
