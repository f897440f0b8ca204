package bookpipe

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// extractPDF walks pages, extracts positioned text runs and embedded raster
// images, infers structure from font metrics and line geometry, and splits
// the result into chapters. Per-page failures are logged and skipped; a
// document where no page yields text fails with ErrNeedsOCR.
func extractPDF(ctx context.Context, data []byte, cfg Config, logger *slog.Logger) (*ParsedDocument, error) {
	conf := model.NewDefaultConfiguration()
	pctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), conf)
	if err != nil {
		return nil, fmt.Errorf("pdfcpu read: %w: %w", err, ErrInvalidContainer)
	}
	if pctx.PageCount == 0 {
		return nil, fmt.Errorf("pdf has zero pages: %w", ErrInvalidContainer)
	}

	title, author, meta := pdfDocumentMetadata(pctx)
	meta.PageCount = pctx.PageCount
	meta.FileSize = int64(len(data))

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf text layer: %w: %w", err, ErrInvalidContainer)
	}

	h := cfg.Heuristics
	imageCache := make(map[int]imageCacheEntry) // keyed by image object number
	pages := make([]string, 0, pctx.PageCount)
	textPages := 0

	for pageNr := 1; pageNr <= pctx.PageCount; pageNr++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		runs, err := pageRuns(reader, pageNr)
		if err != nil {
			logger.Warn("pdf: page text extraction failed, skipping", "page", pageNr, "error", err)
			runs = nil
		}
		images := pageImages(pctx, pageNr, h.MinImageDim, imageCache, logger)

		if len(runs) > 0 {
			textPages++
		}
		md := pageToMarkdown(groupLines(runs), averageFontSize(runs), h, images)
		pages = append(pages, md)
	}

	if textPages == 0 {
		return nil, fmt.Errorf("all %d pages are without a text layer: %w", pctx.PageCount, ErrNeedsOCR)
	}

	raw, found := detectChapters(pages)
	if !found || (len(raw) == 1 && pctx.PageCount > h.ChunkThresholdPages) {
		raw = chunkPages(pages, h.ChunkPages)
	}

	var chapters []Chapter
	for _, rc := range raw {
		md := rawChapterMarkdown(rc)
		if md == "" {
			continue
		}
		if ch, ok := chapterFromMarkdown(RepairTables(md), len(chapters), 1); ok {
			chapters = append(chapters, ch)
		}
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("pdf pages produced no usable chapters: %w", ErrNoReadableContent)
	}

	doc := assembleDocument(title, author, chapters, meta)
	doc.FirstPagesText = firstPagesFromPages(pages, 5)
	return doc, nil
}

// rawChapterMarkdown re-attaches the boundary heading to the accumulated
// body so the chapter markdown is self-describing.
func rawChapterMarkdown(rc rawChapter) string {
	body := strings.TrimSpace(strings.Join(rc.body, "\n"))
	if rc.title == "" {
		return body
	}
	head := strings.Repeat("#", rc.level) + " " + rc.title
	if body == "" {
		return ""
	}
	return head + "\n\n" + body
}

// pageRuns extracts positioned text runs for one page. The text-layer
// library panics on some malformed content streams; that is contained here
// and surfaced as a per-page error.
func pageRuns(reader *pdf.Reader, pageNr int) (runs []textRun, err error) {
	defer func() {
		if r := recover(); r != nil {
			runs, err = nil, fmt.Errorf("content stream panic: %v", r)
		}
	}()

	page := reader.Page(pageNr)
	if page.V.IsNull() {
		return nil, nil
	}
	content := page.Content()
	runs = make([]textRun, 0, len(content.Text))
	for _, t := range content.Text {
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		runs = append(runs, textRun{
			text: t.S,
			x:    t.X,
			y:    t.Y,
			w:    t.W,
			size: t.FontSize,
			font: t.Font,
		})
	}
	return runs, nil
}

// pageImages extracts the raster images referenced by one page's paint
// operations as data URIs. Images below the minimum dimension are skipped;
// the cache avoids re-decoding an image shared across pages.
func pageImages(pctx *model.Context, pageNr, minDim int, cache map[int]imageCacheEntry, logger *slog.Logger) []string {
	imgs, err := pdfcpu.ExtractPageImages(pctx, pageNr, false)
	if err != nil {
		logger.Warn("pdf: image extraction failed, skipping", "page", pageNr, "error", err)
		return nil
	}

	// Deterministic order: object numbers ascending.
	objNrs := make([]int, 0, len(imgs))
	for objNr := range imgs {
		objNrs = append(objNrs, objNr)
	}
	sort.Ints(objNrs)

	var uris []string
	for _, objNr := range objNrs {
		if entry, ok := cache[objNr]; ok {
			if entry.dataURI != "" {
				uris = append(uris, entry.dataURI)
			}
			continue
		}
		img := imgs[objNr]
		buf, err := io.ReadAll(img)
		if err != nil || len(buf) == 0 {
			cache[objNr] = imageCacheEntry{}
			continue
		}
		if cfgImg, _, err := image.DecodeConfig(bytes.NewReader(buf)); err == nil {
			if cfgImg.Width < minDim || cfgImg.Height < minDim {
				cache[objNr] = imageCacheEntry{}
				continue
			}
		}
		entry := encodeDataURI(buf, "."+img.FileType)
		cache[objNr] = entry
		uris = append(uris, entry.dataURI)
	}
	return uris
}

// pdfDocumentMetadata reads the document information dictionary.
func pdfDocumentMetadata(pctx *model.Context) (title, author string, meta *DocumentMetadata) {
	meta = &DocumentMetadata{}
	if pctx.Info == nil {
		return "", "", meta
	}
	d, err := pctx.DereferenceDict(*pctx.Info)
	if err != nil || d == nil {
		return "", "", meta
	}

	title = cleanWhitespace(infoString(pctx, d, "Title"))
	author = cleanWhitespace(infoString(pctx, d, "Author"))
	meta.Publisher = cleanWhitespace(infoString(pctx, d, "Producer"))
	meta.PublicationYear = parseYear(infoString(pctx, d, "CreationDate"))
	meta.Description = cleanWhitespace(infoString(pctx, d, "Subject"))
	if kw := infoString(pctx, d, "Keywords"); kw != "" {
		for _, s := range strings.FieldsFunc(kw, func(r rune) bool { return r == ',' || r == ';' }) {
			if s = strings.TrimSpace(s); s != "" {
				meta.Subjects = append(meta.Subjects, s)
			}
		}
	}
	return title, author, meta
}

// infoString dereferences and decodes one Info dictionary text entry.
func infoString(pctx *model.Context, d types.Dict, key string) string {
	obj, found := d.Find(key)
	if !found {
		return ""
	}
	obj, err := pctx.Dereference(obj)
	if err != nil || obj == nil {
		return ""
	}
	switch s := obj.(type) {
	case types.StringLiteral:
		v, err := types.StringLiteralToString(s)
		if err != nil {
			return ""
		}
		return v
	case types.HexLiteral:
		v, err := types.HexLiteralToString(s)
		if err != nil {
			return ""
		}
		return v
	}
	return ""
}

// firstPagesFromPages accumulates the first n pages' markdown up to the
// shared limit.
func firstPagesFromPages(pages []string, n int) string {
	var sb strings.Builder
	for i, p := range pages {
		if i >= n || sb.Len() >= firstPagesLimit {
			break
		}
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(p)
	}
	return truncate(sb.String(), firstPagesLimit)
}
