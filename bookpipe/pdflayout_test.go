package bookpipe

import (
	"strings"
	"testing"
)

func defaultHeuristics() Heuristics {
	var h Heuristics
	h.defaults()
	return h
}

func TestGroupLines(t *testing.T) {
	runs := []textRun{
		{text: "world", x: 50, y: 700, size: 12},
		{text: "Hello", x: 10, y: 701, size: 12}, // same baseline within tolerance
		{text: "second line", x: 10, y: 680, size: 12},
	}
	lines := groupLines(runs)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if lines[0].text != "Hello world" {
		t.Errorf("line 0 = %q", lines[0].text)
	}
	if lines[1].text != "second line" {
		t.Errorf("line 1 = %q", lines[1].text)
	}
}

func TestGroupLinesBoldOnlyWhenAllRunsBold(t *testing.T) {
	runs := []textRun{
		{text: "Big", x: 10, y: 700, size: 18, font: "Times-Bold"},
		{text: "Title", x: 40, y: 700, size: 18, font: "Times-Bold"},
		{text: "mixed", x: 10, y: 650, size: 12, font: "Times-Bold"},
		{text: "weights", x: 50, y: 650, size: 12, font: "Times-Roman"},
	}
	lines := groupLines(runs)
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	if !lines[0].bold {
		t.Error("all-bold line not marked bold")
	}
	if lines[1].bold {
		t.Error("mixed-weight line marked bold")
	}
}

func TestClassifyLinePDFHeadingLevels(t *testing.T) {
	h := defaultHeuristics()
	tests := []struct {
		name  string
		line  pdfLine
		kind  blockKind
		level int
	}{
		{"h1 at 1.8x", pdfLine{text: "Chapter One", size: 22}, blockHeading, 1},
		{"h2 at 1.5x", pdfLine{text: "A Section", size: 18}, blockHeading, 2},
		{"h3 at 1.3x", pdfLine{text: "Subsection", size: 16}, blockHeading, 3},
		{"h4 at 1.15x", pdfLine{text: "Minor heading", size: 14}, blockHeading, 4},
		{"body at 1x", pdfLine{text: "Ordinary prose text", size: 12}, blockParagraph, 0},
		{"bold boost crosses threshold", pdfLine{text: "Almost H4", size: 13.2, bold: true}, blockHeading, 4},
		{"sentence excluded", pdfLine{text: "A large sentence that ends with a period.", size: 22}, blockParagraph, 0},
	}
	for _, tt := range tests {
		b := classifyLinePDF(tt.line, 12, h)
		if b.kind != tt.kind || b.level != tt.level {
			t.Errorf("%s: kind=%d level=%d, want kind=%d level=%d", tt.name, b.kind, b.level, tt.kind, tt.level)
		}
	}
}

func TestClassifyLinePDFRejectsLongHeadings(t *testing.T) {
	h := defaultHeuristics()
	long := strings.Repeat("word ", 40) // exceeds MaxHeadingChars
	b := classifyLinePDF(pdfLine{text: long, size: 24}, 12, h)
	if b.kind != blockParagraph {
		t.Errorf("over-long large-font line classified as heading")
	}
}

func TestClassifyLinePDFLists(t *testing.T) {
	h := defaultHeuristics()
	tests := []struct {
		text string
		list listKind
	}{
		{"1. first item", listOrdered},
		{"12) twelfth", listOrdered},
		{"a) lettered", listOrdered},
		{"iv. roman", listOrdered},
		{"• bullet item", listUnordered},
		{"- dashed item", listUnordered},
		{"plain text line", listNone},
		{"1.5 is a number, not a list", listNone},
	}
	for _, tt := range tests {
		b := classifyLinePDF(pdfLine{text: tt.text, size: 12}, 12, h)
		if tt.list == listNone {
			if b.kind == blockList {
				t.Errorf("%q wrongly classified as list", tt.text)
			}
			continue
		}
		if b.kind != blockList || b.list != tt.list {
			t.Errorf("%q: kind=%d list=%d, want list %d", tt.text, b.kind, b.list, tt.list)
		}
	}
}

func TestPageToMarkdownParagraphGaps(t *testing.T) {
	h := defaultHeuristics()
	lines := []pdfLine{
		{text: "First paragraph line one", y: 700, size: 12},
		{text: "continues here", y: 686, size: 12},   // gap 14 < 1.5*12
		{text: "Second paragraph", y: 650, size: 12}, // gap 36 > 1.5*12
	}
	md := pageToMarkdown(lines, 12, h, nil)
	want := "First paragraph line one continues here\n\nSecond paragraph"
	if md != want {
		t.Errorf("got %q, want %q", md, want)
	}
}

func TestPageToMarkdownHeadingAndImages(t *testing.T) {
	h := defaultHeuristics()
	lines := []pdfLine{
		{text: "Chapter One", y: 700, size: 24},
		{text: "Body text follows the heading", y: 660, size: 12},
	}
	md := pageToMarkdown(lines, 12, h, []string{"data:image/png;base64,AAAA"})
	if !strings.HasPrefix(md, "![](data:image/png;base64,AAAA)") {
		t.Errorf("image not prepended: %q", md)
	}
	if !strings.Contains(md, "# Chapter One\n\nBody text follows the heading") {
		t.Errorf("heading rendering: %q", md)
	}
}

func TestPageToMarkdownNormalizesBullets(t *testing.T) {
	h := defaultHeuristics()
	lines := []pdfLine{
		{text: "• first", y: 700, size: 12},
		{text: "• second", y: 685, size: 12},
	}
	md := pageToMarkdown(lines, 12, h, nil)
	if md != "- first\n- second" {
		t.Errorf("bullets = %q", md)
	}
}

func TestDetectChapters(t *testing.T) {
	pages := []string{
		"intro text before any heading",
		"# Chapter One\n\nbody of one",
		"## Chapter Two\n\nbody of two\n\n## Just A Subsection\n\nmore",
	}
	chapters, found := detectChapters(pages)
	if !found {
		t.Fatal("no boundaries found")
	}
	if len(chapters) != 3 {
		t.Fatalf("chapters = %d, want 3", len(chapters))
	}
	if chapters[0].title != "" {
		t.Errorf("implicit first chapter has title %q", chapters[0].title)
	}
	if chapters[1].title != "Chapter One" || chapters[1].level != 1 {
		t.Errorf("chapter 1 = %q level %d", chapters[1].title, chapters[1].level)
	}
	// The keyword H2 opens a chapter, the non-keyword H2 does not.
	if chapters[2].title != "Chapter Two" || chapters[2].level != 2 {
		t.Errorf("chapter 2 = %q level %d", chapters[2].title, chapters[2].level)
	}
	body := strings.Join(chapters[2].body, "\n")
	if !strings.Contains(body, "## Just A Subsection") {
		t.Errorf("subsection heading not kept in body:\n%s", body)
	}
}

func TestDetectChaptersNoStructure(t *testing.T) {
	chapters, found := detectChapters([]string{"plain text", "more plain text"})
	if found {
		t.Error("found boundaries in heading-free pages")
	}
	if len(chapters) != 1 {
		t.Errorf("chapters = %d, want a single implicit chapter", len(chapters))
	}
}

func TestChunkPages(t *testing.T) {
	pages := make([]string, 25)
	for i := range pages {
		pages[i] = "page content"
	}
	chapters := chunkPages(pages, 10)
	if len(chapters) != 3 {
		t.Fatalf("chunks = %d, want 3", len(chapters))
	}
	wantTitles := []string{"Pages 1-10", "Pages 11-20", "Pages 21-25"}
	for i, want := range wantTitles {
		if chapters[i].title != want {
			t.Errorf("chunk %d title = %q, want %q", i, chapters[i].title, want)
		}
	}
	if len(chapters[2].body) != 5 {
		t.Errorf("last chunk has %d pages, want 5", len(chapters[2].body))
	}
}

func TestAverageFontSize(t *testing.T) {
	runs := []textRun{
		{text: "a", size: 10},
		{text: "b", size: 14},
		{text: " ", size: 99}, // whitespace-only runs are excluded
		{text: "c", size: 0},  // zero sizes are excluded
	}
	if got := averageFontSize(runs); got != 12 {
		t.Errorf("avg = %v, want 12", got)
	}
	if got := averageFontSize(nil); got != 12 {
		t.Errorf("empty avg = %v, want default 12", got)
	}
}
