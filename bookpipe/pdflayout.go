package bookpipe

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// textRun is one positioned text fragment from a PDF content stream.
type textRun struct {
	text string
	x, y float64
	w    float64
	size float64 // approximate font size from the text transform
	font string  // font name; weight/slant inferred from substrings
}

func (r textRun) bold() bool {
	f := strings.ToLower(r.font)
	return strings.Contains(f, "bold") || strings.Contains(f, "black") || strings.Contains(f, "heavy")
}

// pdfLine is a baseline-grouped run of text.
type pdfLine struct {
	text string
	y    float64
	size float64
	bold bool
}

// groupLines clusters runs by baseline and orders them top-down, left-right.
// PDF origin is bottom-left, so descending y is reading order.
func groupLines(runs []textRun) []pdfLine {
	if len(runs) == 0 {
		return nil
	}
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].y != runs[j].y {
			return runs[i].y > runs[j].y
		}
		return runs[i].x < runs[j].x
	})

	var lines []pdfLine
	for _, r := range runs {
		if r.text == "" {
			continue
		}
		tol := r.size * 0.4
		if tol <= 0 {
			tol = 2
		}
		if n := len(lines); n > 0 && math.Abs(lines[n-1].y-r.y) <= tol {
			cur := &lines[n-1]
			if cur.text != "" && !strings.HasSuffix(cur.text, " ") && !strings.HasPrefix(r.text, " ") {
				cur.text += " "
			}
			cur.text += r.text
			if r.size > cur.size {
				cur.size = r.size
			}
			cur.bold = cur.bold && r.bold()
			continue
		}
		lines = append(lines, pdfLine{
			text: r.text,
			y:    r.y,
			size: r.size,
			bold: r.bold(),
		})
	}
	for i := range lines {
		lines[i].text = cleanWhitespace(lines[i].text)
	}
	return lines
}

// averageFontSize is the page's mean run font size, the reference point for
// heading classification.
func averageFontSize(runs []textRun) float64 {
	sum, n := 0.0, 0
	for _, r := range runs {
		if r.size > 0 && strings.TrimSpace(r.text) != "" {
			sum += r.size
			n++
		}
	}
	if n == 0 {
		return 12
	}
	return sum / float64(n)
}

// blockKind is the classification of one line.
type blockKind int

const (
	blockParagraph blockKind = iota
	blockHeading
	blockList
)

type listKind int

const (
	listNone listKind = iota
	listOrdered
	listUnordered
)

// block is the tagged result of classifying a line.
type block struct {
	kind  blockKind
	level int      // heading level 1-4 when kind == blockHeading
	list  listKind // set when kind == blockList
	text  string
}

var (
	orderedItemRe   = regexp.MustCompile(`^\s*(\d{1,3}|[A-Za-z]|[ivxlcIVXLC]{2,7})[.)]\s+\S`)
	unorderedItemRe = regexp.MustCompile(`^\s*[•◦▪‣*–-]\s+\S`)
)

// classifyLinePDF decides whether a line is a heading, a list item, or body
// text. Pure function over named thresholds so it can be property-tested
// independently of the conversion loop.
func classifyLinePDF(line pdfLine, pageAvg float64, h Heuristics) block {
	text := line.text
	if text == "" {
		return block{kind: blockParagraph}
	}

	if orderedItemRe.MatchString(text) {
		return block{kind: blockList, list: listOrdered, text: text}
	}
	if unorderedItemRe.MatchString(text) {
		return block{kind: blockList, list: listUnordered, text: text}
	}

	if pageAvg > 0 && len(text) <= h.MaxHeadingChars && !endsLikeSentence(text) {
		ratio := line.size / pageAvg
		if line.bold {
			ratio *= h.BoldBoost
		}
		for lvl, threshold := range h.HeadingRatios {
			if ratio >= threshold {
				return block{kind: blockHeading, level: lvl + 1, text: text}
			}
		}
	}

	return block{kind: blockParagraph, text: text}
}

// endsLikeSentence filters out full sentences that merely use a large font.
func endsLikeSentence(s string) bool {
	s = strings.TrimRight(s, " ")
	return strings.HasSuffix(s, ".") && !strings.HasSuffix(s, "...")
}

// pageToMarkdown renders one page's lines as markdown. Paragraph breaks are
// inserted when the vertical gap to the previous line exceeds the configured
// multiple of its line height; otherwise text flows with a single space.
// Extracted page images are prepended.
func pageToMarkdown(lines []pdfLine, pageAvg float64, h Heuristics, images []string) string {
	var sb strings.Builder
	for _, uri := range images {
		sb.WriteString("![](")
		sb.WriteString(uri)
		sb.WriteString(")\n\n")
	}

	prevY := math.Inf(1)
	prevHeight := 0.0
	inParagraph := false
	for _, line := range lines {
		b := classifyLinePDF(line, pageAvg, h)
		if b.text == "" {
			continue
		}

		switch b.kind {
		case blockHeading:
			if sb.Len() > 0 {
				sb.WriteString("\n\n")
			}
			sb.WriteString(strings.Repeat("#", b.level))
			sb.WriteByte(' ')
			sb.WriteString(b.text)
			sb.WriteString("\n\n")
			inParagraph = false

		case blockList:
			if inParagraph {
				sb.WriteString("\n\n")
				inParagraph = false
			}
			sb.WriteString(markdownListItem(b))
			sb.WriteByte('\n')

		case blockParagraph:
			gap := prevY - line.y
			lineHeight := prevHeight
			if lineHeight <= 0 {
				lineHeight = line.size
			}
			if inParagraph && gap > h.ParagraphGapRatio*lineHeight {
				sb.WriteString("\n\n")
			} else if inParagraph {
				sb.WriteByte(' ')
			}
			sb.WriteString(b.text)
			inParagraph = true
		}
		prevY = line.y
		prevHeight = line.size
	}
	return strings.TrimSpace(sb.String())
}

// markdownListItem re-emits a detected list item with a normalized marker.
func markdownListItem(b block) string {
	text := strings.TrimSpace(b.text)
	if b.list == listUnordered {
		// Replace the bullet glyph with a markdown dash.
		if loc := unorderedItemRe.FindStringIndex(text); loc != nil {
			rest := strings.TrimLeft(text[loc[0]:], "•◦▪‣*–- \t")
			return "- " + rest
		}
		return "- " + text
	}
	return text // ordered markers already read as markdown
}

// chapterKeywordRe marks second-level headings that open a new chapter.
var chapterKeywordRe = regexp.MustCompile(`(?i)^(chapter|part|section|book|prologue|epilogue|appendix|preface|introduction|foreword|afterword)\b`)

// rawChapter accumulates markdown lines under one detected boundary.
type rawChapter struct {
	title string
	level int
	body  []string
}

// detectChapters splits the page markdowns on heading boundaries: any H1, or
// an H2 whose text matches the chapter keyword pattern. Lines before the
// first boundary accumulate into an implicit first chapter.
func detectChapters(pages []string) ([]rawChapter, bool) {
	var chapters []rawChapter
	found := false
	current := &rawChapter{title: "", level: 1}

	flush := func() {
		if len(current.body) > 0 || current.title != "" {
			chapters = append(chapters, *current)
		}
	}

	for _, page := range pages {
		for _, line := range strings.Split(page, "\n") {
			trimmed := strings.TrimSpace(line)
			m := headingPrefix.FindStringSubmatch(trimmed)
			if m != nil {
				level := len(m[1])
				title := cleanWhitespace(m[2])
				if level == 1 || (level == 2 && chapterKeywordRe.MatchString(title)) {
					flush()
					current = &rawChapter{title: title, level: level}
					found = true
					continue
				}
			}
			current.body = append(current.body, line)
		}
		current.body = append(current.body, "")
	}
	flush()
	return chapters, found
}

// chunkPages is the fallback when no chapter structure is detected: fixed
// page groups titled by page range.
func chunkPages(pages []string, chunk int) []rawChapter {
	var chapters []rawChapter
	for start := 0; start < len(pages); start += chunk {
		end := start + chunk
		if end > len(pages) {
			end = len(pages)
		}
		chapters = append(chapters, rawChapter{
			title: fmt.Sprintf("Pages %d-%d", start+1, end),
			level: 1,
			body:  pages[start:end],
		})
	}
	return chapters
}
