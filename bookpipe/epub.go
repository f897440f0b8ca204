package bookpipe

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/microcosm-cc/bluemonday"
)

// firstPagesLimit bounds the text handed to downstream metadata lookup.
const firstPagesLimit = 5000

// zip entries larger than this are refused (zip bomb guard).
const maxEntrySize = 256 * 1024 * 1024

// extractEPUB opens the ZIP container, walks the declared reading order and
// produces the normalized document. Structural absences (container
// descriptor, packaging document, spine, manifest, metadata) abort; failures
// on individual spine items are logged and skipped.
func extractEPUB(ctx context.Context, data []byte, cfg Config, logger *slog.Logger) (*ParsedDocument, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open epub container: %w: %w", err, ErrInvalidContainer)
	}

	if err := checkEPUBDRM(zr); err != nil {
		return nil, err
	}

	idx := newArchiveIndex(zr)

	containerData, err := readArchiveFile(zr, containerPath)
	if err != nil {
		return nil, fmt.Errorf("container descriptor %s missing: %w", containerPath, ErrInvalidContainer)
	}
	opfPath, err := parseContainerDescriptor(containerData)
	if err != nil {
		return nil, err
	}

	opfData, err := readArchiveFile(zr, opfPath)
	if err != nil {
		return nil, fmt.Errorf("packaging document %s missing: %w", opfPath, ErrInvalidContainer)
	}
	pkg, err := parseOPF(opfData)
	if err != nil {
		return nil, err
	}

	title, author, meta := opfDocumentMetadata(pkg)
	meta.FileSize = int64(len(data))

	manifestByID := make(map[string]opfItem, len(pkg.Manifest.Items))
	for _, item := range pkg.Manifest.Items {
		manifestByID[item.ID] = item
	}

	cover := extractEPUBCover(zr, pkg, manifestByID, idx, opfPath, logger)

	conv := newMarkdownConverter()
	policy := newSanitizerPolicy()
	imageCache := make(map[string]imageCacheEntry)

	var chapters []Chapter
	skipped := 0
	for _, ref := range pkg.Spine.ItemRefs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		item, ok := manifestByID[ref.IDRef]
		if !ok || item.Href == "" {
			skipped++
			logger.Warn("epub: spine item not in manifest, skipping", "idref", ref.IDRef)
			continue
		}
		md, err := epubChapterMarkdown(zr, item, idx, opfPath, conv, policy, imageCache)
		if err != nil {
			skipped++
			logger.Warn("epub: chapter failed, skipping", "href", item.Href, "error", err)
			continue
		}
		if ch, ok := chapterFromMarkdown(md, len(chapters), cfg.MinChapterChars); ok {
			chapters = append(chapters, ch)
		}
	}
	if skipped > 0 {
		logger.Debug("epub: spine items skipped", "count", skipped)
	}
	if len(chapters) == 0 {
		return nil, fmt.Errorf("epub spine produced no usable chapters: %w", ErrNoReadableContent)
	}

	doc := assembleDocument(title, author, chapters, meta)
	doc.CoverImage = cover
	doc.FirstPagesText = firstChaptersText(chapters, 3)
	return doc, nil
}

// epubChapterMarkdown resolves one spine item to markdown, inlining every
// local raster image as a base64 data URI through the per-document cache.
func epubChapterMarkdown(zr *zip.Reader, item opfItem, idx *archiveIndex, opfPath string,
	conv *converter.Converter, policy *bluemonday.Policy, cache map[string]imageCacheEntry) (string, error) {

	opfDir := path.Dir(opfPath)
	if opfDir == "." {
		opfDir = ""
	}
	docPath, ok := idx.resolve(item.Href, opfPath, opfDir)
	if !ok {
		return "", fmt.Errorf("manifest href %q not found in archive", item.Href)
	}
	raw, err := readArchiveFile(zr, docPath)
	if err != nil {
		return "", err
	}

	body, err := parseHTMLBody(stripBOM(raw))
	if err != nil {
		return "", err
	}

	inlineImages(body, func(ref string) (string, bool) {
		if entry, ok := cache[ref]; ok {
			return entry.dataURI, true
		}
		imgPath, ok := idx.resolve(ref, docPath, opfDir)
		if !ok {
			return "", false
		}
		imgData, err := readArchiveFile(zr, imgPath)
		if err != nil {
			return "", false
		}
		entry := encodeDataURI(imgData, path.Ext(imgPath))
		cache[ref] = entry
		return entry.dataURI, true
	})

	return htmlToMarkdown(conv, policy, renderChildren(body))
}

// extractEPUBCover locates the cover through a meta name="cover" entry, with
// the EPUB 3 cover-image manifest property as a fallback. The declared media
// type is only a hint; the sniffed type wins.
func extractEPUBCover(zr *zip.Reader, pkg *opfPackage, manifestByID map[string]opfItem,
	idx *archiveIndex, opfPath string, logger *slog.Logger) string {

	opfDir := path.Dir(opfPath)
	if opfDir == "." {
		opfDir = ""
	}

	var coverItem *opfItem
	for _, m := range pkg.Metadata.Metas {
		if strings.EqualFold(m.Name, "cover") && m.Content != "" {
			if item, ok := manifestByID[m.Content]; ok {
				coverItem = &item
				break
			}
		}
	}
	if coverItem == nil {
		for _, item := range pkg.Manifest.Items {
			if strings.Contains(item.Properties, "cover-image") {
				coverItem = &item
				break
			}
		}
	}
	if coverItem == nil {
		return ""
	}

	coverPath, ok := idx.resolve(coverItem.Href, opfPath, opfDir)
	if !ok {
		logger.Warn("epub: cover href not found in archive", "href", coverItem.Href)
		return ""
	}
	data, err := readArchiveFile(zr, coverPath)
	if err != nil {
		logger.Warn("epub: cover read failed", "path", coverPath, "error", err)
		return ""
	}
	return encodeDataURI(data, path.Ext(coverPath)).dataURI
}

// checkEPUBDRM rejects archives with real DRM encryption. Font obfuscation
// entries are not DRM and pass through.
func checkEPUBDRM(zr *zip.Reader) error {
	data, err := readArchiveFile(zr, "META-INF/encryption.xml")
	if err != nil {
		return nil // no encryption descriptor
	}
	s := string(data)
	for _, sig := range []string{"http://ns.adobe.com/adept", "readium.org/2014/01/lcp", "fairplay"} {
		if strings.Contains(strings.ToLower(s), strings.ToLower(sig)) {
			return ErrDRMProtected
		}
	}
	// Any encrypted entry beyond font obfuscation counts as DRM.
	if strings.Contains(s, "EncryptedData") &&
		!strings.Contains(s, "http://www.idpf.org/2008/embedding") &&
		!strings.Contains(s, "http://ns.adobe.com/pdf/enc#RC") {
		return ErrDRMProtected
	}
	return nil
}

// readArchiveFile reads one ZIP entry, exact path first, then
// case-insensitive.
func readArchiveFile(zr *zip.Reader, name string) ([]byte, error) {
	f := findArchiveFile(zr, name)
	if f == nil {
		return nil, fmt.Errorf("archive entry %s not found", name)
	}
	if f.UncompressedSize64 > maxEntrySize {
		return nil, fmt.Errorf("archive entry %s too large: %d bytes", name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open archive entry %s: %w", name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read archive entry %s: %w", name, err)
	}
	if int64(len(data)) > maxEntrySize {
		return nil, fmt.Errorf("archive entry %s exceeds decompression limit", name)
	}
	return data, nil
}

func findArchiveFile(zr *zip.Reader, name string) *zip.File {
	for _, f := range zr.File {
		if f.Name == name {
			return f
		}
	}
	lower := strings.ToLower(name)
	for _, f := range zr.File {
		if strings.ToLower(f.Name) == lower {
			return f
		}
	}
	return nil
}

// firstChaptersText concatenates up to firstPagesLimit characters from the
// first n chapters, for downstream bibliographic lookup.
func firstChaptersText(chapters []Chapter, n int) string {
	var sb strings.Builder
	for i, ch := range chapters {
		if i >= n || sb.Len() >= firstPagesLimit {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(ch.Content)
	}
	return truncate(sb.String(), firstPagesLimit)
}
