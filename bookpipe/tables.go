package bookpipe

import (
	"regexp"
	"strings"
)

// maxRowLookahead bounds how many following lines a broken table row may
// absorb before the repair gives up and pads the row instead.
const maxRowLookahead = 30

// RepairTables merges pipe-table cells that an HTML→markdown conversion split
// across lines back into single rows, and normalizes blank-line spacing
// around block elements. It is a line-oriented repair heuristic, not a
// markdown parser: deterministic, and idempotent so it may be re-applied to
// already-cleaned text.
func RepairTables(md string) string {
	lines := strings.Split(md, "\n")
	lines = repairRows(lines)
	lines = normalizeSpacing(lines)
	out := strings.Join(lines, "\n")
	out = excessNewlines.ReplaceAllString(out, "\n\n\n")
	return strings.TrimSpace(out)
}

var excessNewlines = regexp.MustCompile(`\n{4,}`)

// isSeparatorRow reports whether a line is a table header separator such as
// "| --- | :---: |".
func isSeparatorRow(line string) bool {
	if !strings.Contains(line, "-") || !strings.Contains(line, "|") {
		return false
	}
	for _, r := range line {
		switch r {
		case '|', '-', ':', ' ', '\t':
		default:
			return false
		}
	}
	return true
}

// startsTable reports whether a line opens a pipe table: it must start and
// end with a pipe and contain at least 3 of them.
func startsTable(line string) bool {
	return strings.HasPrefix(line, "|") && strings.HasSuffix(line, "|") &&
		strings.Count(line, "|") >= 3
}

// repairRows is pass 1: collapse each logical table row onto one line.
func repairRows(lines []string) []string {
	var out []string
	inTable := false
	expected := 0

	for i := 0; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		pipes := strings.Count(trimmed, "|")

		if !inTable {
			out = append(out, lines[i])
			if startsTable(trimmed) {
				inTable = true
				expected = pipes
			}
			continue
		}

		switch {
		case trimmed == "":
			inTable = false
			out = append(out, lines[i])

		case isSeparatorRow(trimmed):
			// The separator is authoritative for the column count.
			expected = pipes
			out = append(out, trimmed)

		case pipes == 0:
			// Stray cell-wrap continuation with no structure to anchor it.

		case pipes >= expected:
			out = append(out, trimmed)

		default:
			// Broken row: absorb following lines until the pipe count is
			// whole again or the lookahead bound is hit.
			row := trimmed
			total := pipes
			j := i
			for total < expected && j+1 < len(lines) && j-i < maxRowLookahead {
				next := strings.TrimSpace(lines[j+1])
				if next == "" || isSeparatorRow(next) {
					break
				}
				j++
				if next != "" {
					row += " " + next
					total += strings.Count(next, "|")
				}
			}
			i = j
			if total < expected {
				// Could not complete the row; pad so the column count
				// stays consistent and a re-run leaves it alone.
				row += strings.Repeat(" |", expected-total)
			}
			out = append(out, row)
		}
	}
	return out
}

type lineKind int

const (
	kindBlank lineKind = iota
	kindTable
	kindHeading
	kindList
	kindText
)

var (
	headingLine = regexp.MustCompile(`^#{1,6}\s`)
	listLine    = regexp.MustCompile(`^(\s*)([-*+]|\d{1,3}[.)])\s`)
)

func classifyLine(line string) lineKind {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return kindBlank
	case strings.HasPrefix(trimmed, "|") && strings.Contains(trimmed[1:], "|"):
		return kindTable
	case isSeparatorRow(trimmed):
		return kindTable
	case headingLine.MatchString(trimmed):
		return kindHeading
	case listLine.MatchString(line):
		return kindList
	default:
		return kindText
	}
}

// normalizeSpacing is pass 2: exactly one blank line around table blocks, a
// blank line after headings, blank runs collapsed to one, and no blanks
// introduced inside list runs.
func normalizeSpacing(lines []string) []string {
	var out []string
	prev := kindBlank

	lastBlank := func() bool {
		return len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == ""
	}

	for _, line := range lines {
		kind := classifyLine(line)

		if kind == kindBlank {
			if len(out) == 0 || lastBlank() {
				continue
			}
			out = append(out, "")
			prev = kindBlank
			continue
		}

		// A table block gets one blank line on each side.
		if kind == kindTable && prev != kindTable && len(out) > 0 && !lastBlank() {
			out = append(out, "")
		}
		if prev == kindTable && kind != kindTable && !lastBlank() {
			out = append(out, "")
		}

		out = append(out, line)
		if kind == kindHeading {
			out = append(out, "")
			kind = kindBlank
		}
		prev = kind
	}

	// Drop trailing blanks.
	for len(out) > 0 && strings.TrimSpace(out[len(out)-1]) == "" {
		out = out[:len(out)-1]
	}
	return out
}
