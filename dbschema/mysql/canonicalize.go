package mysql

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"

	"github.com/stokaro/migcheck/dbschema/internal/normalize"
)

var (
	// header "CREATE TABLE ... (\n", body, footer "\n) ENGINE=..."
	tableWithNewline = regexp.MustCompile(`(?s)\A(.*?\(\n)(.*)(\n\)\s*.*)\z`)
	// same split when the body starts right after "("
	tableInline = regexp.MustCompile(`(?s)\A(.*?\()(.*)(\)\s*.*)\z`)

	columnLine     = regexp.MustCompile("^[`\"]")
	primaryKeyLine = regexp.MustCompile(`(?i)^PRIMARY KEY`)
	keyLine        = regexp.MustCompile("(?i)^(UNIQUE KEY|KEY|FULLTEXT KEY|SPATIAL KEY)\\s+[`\"]")
	constraintLine = regexp.MustCompile("(?i)^CONSTRAINT\\s+[`\"]")

	keyName        = regexp.MustCompile("(?i)\\b(KEY|UNIQUE KEY|FULLTEXT KEY|SPATIAL KEY)\\s+[`\"]([^`\"]+)[`\"]")
	constraintName = regexp.MustCompile("(?i)\\bCONSTRAINT\\s+[`\"]([^`\"]+)[`\"]")

	trailingComma = regexp.MustCompile(`,\s*\z`)
	leadingSpace  = regexp.MustCompile(`\A\s+`)
)

// lineKind classifies one definition inside a CREATE TABLE body.
type lineKind int

const (
	kindColumn lineKind = iota
	kindPrimaryKey
	kindKey
	kindConstraint
	kindOther
)

// CanonicalizeCreateTable rewrites a SHOW CREATE TABLE statement into a stable
// form: columns keep their order, followed by the primary key, keys sorted by
// name, constraints sorted by name and any remaining clauses sorted by text.
//
// The engine reports KEY and CONSTRAINT clauses in storage order, which differs
// between a freshly created table and one that was altered back and forth.
// Input that does not look like a table definition is returned unchanged.
func CanonicalizeCreateTable(createTable string) string {
	ddl := strings.ReplaceAll(strings.TrimSpace(createTable), "\r\n", "\n")

	m := tableWithNewline.FindStringSubmatch(ddl)
	if m == nil {
		m = tableInline.FindStringSubmatch(ddl)
		if m == nil {
			return createTable
		}
	}
	header, body, footer := m[1], m[2], m[3]

	groups := classifyBody(body)

	fold := cases.Fold()
	sortByName := func(lines []string, name func(string) string) {
		sort.SliceStable(lines, func(i, j int) bool {
			return fold.String(name(lines[i])) < fold.String(name(lines[j]))
		})
	}
	sortByName(groups[kindKey], extractKeyName)
	sortByName(groups[kindConstraint], extractConstraintName)
	sort.Strings(groups[kindOther])

	var out []string
	for _, kind := range []lineKind{kindColumn, kindPrimaryKey, kindKey, kindConstraint, kindOther} {
		out = append(out, groups[kind]...)
	}

	return header + strings.Join(withCommas(out), "\n") + normalize.CollapseSpaces(footer)
}

func classifyBody(body string) map[lineKind][]string {
	groups := make(map[lineKind][]string, 5)
	for _, line := range splitBodyLines(body) {
		trimmed := strings.TrimLeft(line, " \t\n\r\v\f")
		if trimmed == "" {
			continue
		}
		kind := classifyLine(trimmed)
		groups[kind] = append(groups[kind], normalizeLine(line))
	}
	return groups
}

func classifyLine(trimmed string) lineKind {
	switch {
	case columnLine.MatchString(trimmed):
		return kindColumn
	case primaryKeyLine.MatchString(trimmed):
		return kindPrimaryKey
	case keyLine.MatchString(trimmed):
		return kindKey
	case constraintLine.MatchString(trimmed):
		return kindConstraint
	default:
		return kindOther
	}
}

// splitBodyLines splits the body on newlines and removes the trailing comma of
// each definition; commas are re-added uniformly later.
func splitBodyLines(body string) []string {
	raw := strings.Split(strings.Trim(body, "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		line = strings.TrimRight(line, " \t\n\r\v\f")
		lines = append(lines, trailingComma.ReplaceAllString(line, ""))
	}
	return lines
}

// normalizeLine keeps the leading indentation and collapses inner whitespace.
func normalizeLine(line string) string {
	indent := leadingSpace.FindString(line)
	return indent + normalize.CollapseSpaces(strings.TrimSpace(line))
}

func extractKeyName(line string) string {
	if m := keyName.FindStringSubmatch(line); m != nil {
		return m[2]
	}
	return strings.TrimSpace(line)
}

func extractConstraintName(line string) string {
	if m := constraintName.FindStringSubmatch(line); m != nil {
		return m[1]
	}
	return strings.TrimSpace(line)
}

func withCommas(lines []string) []string {
	out := make([]string, len(lines))
	for i, line := range lines {
		line = strings.TrimRight(line, " \t\n\r\v\f")
		if i < len(lines)-1 {
			line += ","
		}
		out[i] = line
	}
	return out
}
