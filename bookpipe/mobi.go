package bookpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/microcosm-cc/bluemonday"

	"github.com/tomefeed/bookpipe/mobi"
)

// minMOBIBodyChars rejects books whose decoded text is too short to be a
// real book body (cover-only or corrupt containers).
const minMOBIBodyChars = 100

// extractMOBI parses a MOBI/PalmDOC buffer. Chapter boundaries come from the
// guide table of contents when one exists, falling back to heading splits on
// the converted markdown.
func extractMOBI(ctx context.Context, data []byte, cfg Config, logger *slog.Logger) (*ParsedDocument, error) {
	book, err := mobi.Parse(data)
	if err != nil {
		switch {
		case errors.Is(err, mobi.ErrEncrypted):
			return nil, fmt.Errorf("mobi: %w", ErrDRMProtected)
		case errors.Is(err, mobi.ErrUnsupportedCompression):
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidContainer)
		default:
			return nil, fmt.Errorf("%v: %w", err, ErrInvalidContainer)
		}
	}
	if len(strings.TrimSpace(book.HTML)) < minMOBIBodyChars {
		return nil, fmt.Errorf("mobi: decoded body too short: %w", ErrNoReadableContent)
	}

	conv := newMarkdownConverter()
	policy := newSanitizerPolicy()

	var chapters []Chapter
	if len(book.TOC) > 0 {
		chapters, err = tocChapters(ctx, book.HTML, book.Images, book.TOC, conv, policy, cfg.MinChapterChars, logger)
	} else {
		chapters, err = headingChapters(ctx, inlineRecordImages(book.HTML, book.Images), conv, policy, cfg.MinChapterChars)
	}
	if err != nil {
		return nil, err
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("mobi: no chapters survived: %w", ErrNoReadableContent)
	}

	meta := &DocumentMetadata{
		ISBN:        normalizeISBN(book.ISBN),
		Publisher:   cleanWhitespace(book.Publisher),
		Language:    strings.TrimSpace(book.Language),
		Description: cleanWhitespace(book.Description),
		Subjects:    book.Subjects,
	}
	if y := parseYear(book.Date); y > 0 {
		meta.PublicationYear = y
	}

	doc := assembleDocument(cleanWhitespace(book.Title), cleanWhitespace(book.Author), chapters, meta)
	if len(book.Cover) > 0 {
		entry := encodeDataURI(book.Cover, "")
		if entry.width > 0 {
			doc.CoverImage = entry.dataURI
		}
	}
	doc.FirstPagesText = firstChaptersText(chapters, 3)
	return doc, nil
}

// tocChapters slices the raw HTML at the guide's filepos boundaries and
// converts each segment. TOC titles win over headings found in the segment.
// Filepos offsets index the decoded HTML as stored in the container, so the
// slicing happens before recindex images are inlined; each segment is
// rewritten on its own afterwards.
func tocChapters(ctx context.Context, rawHTML string, images [][]byte, toc []mobi.TOCEntry,
	conv *converter.Converter, policy *bluemonday.Policy, minChars int, logger *slog.Logger) ([]Chapter, error) {

	entries := make([]mobi.TOCEntry, 0, len(toc))
	seen := make(map[int]struct{}, len(toc))
	for _, e := range toc {
		if e.Filepos < 0 || e.Filepos >= len(rawHTML) {
			continue
		}
		if _, dup := seen[e.Filepos]; dup {
			continue
		}
		seen[e.Filepos] = struct{}{}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filepos < entries[j].Filepos })
	if len(entries) == 0 {
		return headingChapters(ctx, inlineRecordImages(rawHTML, images), conv, policy, minChars)
	}

	var chapters []Chapter
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := len(rawHTML)
		if i+1 < len(entries) {
			end = entries[i+1].Filepos
		}
		md, err := htmlToMarkdown(conv, policy, inlineRecordImages(rawHTML[e.Filepos:end], images))
		if err != nil {
			logger.Warn("mobi: toc segment failed, skipping", "title", e.Title, "error", err)
			continue
		}
		ch, ok := chapterFromMarkdown(md, len(chapters), minChars)
		if !ok {
			continue
		}
		if t := cleanWhitespace(e.Title); t != "" {
			ch.Title = t
		}
		chapters = append(chapters, ch)
	}
	return chapters, nil
}

var mdChapterSplitRe = regexp.MustCompile(`(?m)^#{1,2}\s+`)

// headingChapters converts the whole body once and splits the markdown at
// level-1/2 headings. A body with no headings becomes a single chapter.
func headingChapters(ctx context.Context, rawHTML string, conv *converter.Converter, policy *bluemonday.Policy, minChars int) ([]Chapter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	md, err := htmlToMarkdown(conv, policy, rawHTML)
	if err != nil {
		return nil, fmt.Errorf("mobi body: %w", err)
	}

	bounds := mdChapterSplitRe.FindAllStringIndex(md, -1)
	if len(bounds) == 0 {
		ch, ok := chapterFromMarkdown(md, 0, minChars)
		if !ok {
			return nil, nil
		}
		return []Chapter{ch}, nil
	}

	var chapters []Chapter
	prev := 0
	for i, b := range bounds {
		if b[0] > prev && i == 0 {
			// Front matter before the first heading keeps its own chapter
			// when substantial.
			if ch, ok := chapterFromMarkdown(md[:b[0]], 0, minChars); ok {
				chapters = append(chapters, ch)
			}
		}
		end := len(md)
		if i+1 < len(bounds) {
			end = bounds[i+1][0]
		}
		if ch, ok := chapterFromMarkdown(md[b[0]:end], len(chapters), minChars); ok {
			chapters = append(chapters, ch)
		}
		prev = end
	}
	return chapters, nil
}

var imgTagRe = regexp.MustCompile(`(?i)<img\b[^>]*>`)
var recindexRe = regexp.MustCompile(`(?i)recindex=["']?(\d+)["']?`)

// inlineRecordImages rewrites <img recindex="N"> references to data URIs.
// Record indexes are 1-based into the image record list; records that do not
// decode as images (FLIS and friends) are left alone.
func inlineRecordImages(rawHTML string, images [][]byte) string {
	if len(images) == 0 || !strings.Contains(strings.ToLower(rawHTML), "recindex") {
		return rawHTML
	}
	cache := make(map[int]imageCacheEntry)
	return imgTagRe.ReplaceAllStringFunc(rawHTML, func(tag string) string {
		m := recindexRe.FindStringSubmatch(tag)
		if m == nil {
			return tag
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 || n > len(images) {
			return tag
		}
		entry, ok := cache[n]
		if !ok {
			entry = encodeDataURI(images[n-1], "")
			cache[n] = entry
		}
		if entry.width == 0 {
			return tag
		}
		return recindexRe.ReplaceAllString(tag, `src="`+entry.dataURI+`"`)
	})
}
