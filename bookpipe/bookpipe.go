// Package bookpipe parses ebook files (EPUB, PDF, MOBI) from in-memory
// buffers into a normalized document: title, author, cover image,
// markdown-formatted text split into ordered chapters, and bibliographic
// metadata.
//
// All parsing operates on byte slices; nothing touches the filesystem or
// network. Images are inlined as base64 data URIs so the result is fully
// self-contained.
//
// Usage:
//
//	pipe := bookpipe.New(bookpipe.Config{})
//	doc, err := pipe.Parse(ctx, data, "book.epub")
//	fmt.Println(doc.Title, len(doc.Chapters), "chapters")
package bookpipe

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
)

// Pipeline is the ebook parsing engine.
type Pipeline struct {
	cfg    Config
	logger *slog.Logger
}

// New creates a Pipeline with the given configuration.
func New(cfg Config) *Pipeline {
	cfg.defaults()
	return &Pipeline{
		cfg:    cfg,
		logger: cfg.Logger,
	}
}

// Detect returns the ebook format based on file extension.
func Detect(filename string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".epub":
		return FormatEPUB, nil
	case ".pdf":
		return FormatPDF, nil
	case ".mobi", ".azw", ".prc":
		return FormatMOBI, nil
	default:
		return "", fmt.Errorf("extension %q: %w", ext, ErrUnsupportedFormat)
	}
}

// Parse parses an ebook buffer. The filename is used only for format
// detection and as a title fallback when the container declares none.
func (p *Pipeline) Parse(ctx context.Context, data []byte, filename string) (*ParsedDocument, error) {
	format, err := Detect(filename)
	if err != nil {
		return nil, err
	}
	return p.ParseFormat(ctx, data, filename, format)
}

// ParseFormat parses an ebook buffer with an explicitly chosen format,
// bypassing extension detection.
func (p *Pipeline) ParseFormat(ctx context.Context, data []byte, filename string, format Format) (*ParsedDocument, error) {
	if int64(len(data)) > p.cfg.MaxFileSize {
		return nil, fmt.Errorf("file too large: %d bytes (max %d)", len(data), p.cfg.MaxFileSize)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty input: %w", ErrInvalidContainer)
	}

	p.logger.Debug("parse start", "format", format, "filename", filename, "bytes", len(data))

	var doc *ParsedDocument
	var err error
	switch format {
	case FormatEPUB:
		doc, err = extractEPUB(ctx, data, p.cfg, p.logger)
	case FormatPDF:
		doc, err = extractPDF(ctx, data, p.cfg, p.logger)
	case FormatMOBI:
		doc, err = extractMOBI(ctx, data, p.cfg, p.logger)
	default:
		return nil, fmt.Errorf("format %q: %w", format, ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", format, err)
	}

	if doc.Title == "" {
		doc.Title = titleFromFilename(filename)
		if doc.Metadata != nil {
			doc.Metadata.NormalizedTitle = slugify(doc.Title)
		}
	}
	if doc.Metadata != nil {
		doc.Metadata.FileSize = int64(len(data))
	}

	p.logger.Debug("parse done", "format", format, "title", doc.Title,
		"chapters", len(doc.Chapters), "markdown_bytes", len(doc.Markdown))
	return doc, nil
}

// titleFromFilename derives a human-readable title from a filename stem.
func titleFromFilename(filename string) string {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = strings.NewReplacer("_", " ", "-", " ").Replace(stem)
	stem = cleanWhitespace(stem)
	if stem == "" {
		return "Untitled"
	}
	return stem
}

// assembleDocument builds the final document from extracted chapters:
// orders are made contiguous, the joined markdown gets a heading line per
// chapter and a horizontal rule between chapters, and the normalized slugs
// are computed.
func assembleDocument(title, author string, chapters []Chapter, meta *DocumentMetadata) *ParsedDocument {
	var b strings.Builder
	for i := range chapters {
		chapters[i].Order = i
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		ch := &chapters[i]
		if ch.Title != "" && !startsWithHeading(ch.Content, ch.Title) {
			level := ch.Level
			if level < 1 || level > 6 {
				level = 1
			}
			b.WriteString(strings.Repeat("#", level))
			b.WriteString(" ")
			b.WriteString(ch.Title)
			b.WriteString("\n\n")
		}
		b.WriteString(ch.Content)
	}

	if meta == nil {
		meta = &DocumentMetadata{}
	}
	meta.NormalizedTitle = slugify(title)
	meta.NormalizedAuthor = slugify(author)

	return &ParsedDocument{
		Title:    title,
		Author:   author,
		Markdown: strings.TrimSpace(b.String()),
		Chapters: chapters,
		Metadata: meta,
	}
}

// startsWithHeading reports whether md already opens with a heading whose
// text equals title, to avoid duplicating it in the joined markdown.
func startsWithHeading(md, title string) bool {
	firstLine, _, _ := strings.Cut(strings.TrimSpace(md), "\n")
	m := headingPrefix.FindStringSubmatch(firstLine)
	return m != nil && strings.TrimSpace(m[2]) == strings.TrimSpace(title)
}
