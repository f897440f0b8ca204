package bookpipe

import (
	"archive/zip"
	"net/url"
	"path"
	"strings"
)

// archiveIndex is a read-only index over one opened ZIP container: every full
// entry path, plus a lower-cased bare-filename index for fuzzy lookup. Built
// once per document and discarded after extraction.
type archiveIndex struct {
	paths  map[string]struct{}
	byName map[string][]string
}

func newArchiveIndex(zr *zip.Reader) *archiveIndex {
	idx := &archiveIndex{
		paths:  make(map[string]struct{}, len(zr.File)),
		byName: make(map[string][]string),
	}
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		idx.paths[f.Name] = struct{}{}
		name := strings.ToLower(path.Base(f.Name))
		idx.byName[name] = append(idx.byName[name], f.Name)
	}
	return idx
}

func (idx *archiveIndex) has(p string) bool {
	_, ok := idx.paths[p]
	return ok
}

// Directory prefixes commonly used as the EPUB content root, and
// subdirectory names commonly holding images. Real-world EPUBs reference
// images with inconsistent, sometimes broken relative paths; strict
// resolution would silently drop a large fraction of embedded art.
var (
	contentDirPrefixes = []string{"OEBPS", "OPS", "EPUB", "content", "Content", "item"}
	imageDirNames      = []string{"images", "Images", "image", "img", "graphics", "media"}
)

// resolve maps a reference string found in markup to an archive path.
// fromDoc is the archive path of the referencing document; opfDir is the
// directory of the packaging document (both "" allowed). Returns ("", false)
// when nothing matches.
func (idx *archiveIndex) resolve(ref, fromDoc, opfDir string) (string, bool) {
	ref = normalizeRef(ref)
	if ref == "" {
		return "", false
	}

	fromDir := ""
	if fromDoc != "" {
		fromDir = path.Dir(fromDoc)
		if fromDir == "." {
			fromDir = ""
		}
	}

	base := path.Base(ref)
	var candidates []string
	add := func(p string) {
		p = path.Clean(strings.TrimPrefix(p, "/"))
		if p == "." || p == "" || strings.HasPrefix(p, "../") {
			return
		}
		candidates = append(candidates, p)
	}

	// Relative to the referencing document (handles ./, ../ and multi-level
	// ../ ascension via path.Clean on the join).
	if fromDir != "" {
		add(path.Join(fromDir, ref))
	}
	add(ref)
	add(strings.TrimPrefix(ref, "/"))

	// Common content-root prefixes.
	for _, prefix := range contentDirPrefixes {
		add(path.Join(prefix, ref))
	}

	// Common image directories, bare and under each content root.
	for _, dir := range imageDirNames {
		add(path.Join(dir, base))
		for _, prefix := range contentDirPrefixes {
			add(path.Join(prefix, dir, base))
		}
	}

	// Relative to the packaging document's own directory.
	if opfDir != "" && opfDir != "." {
		add(path.Join(opfDir, ref))
		add(path.Join(opfDir, base))
	}

	for _, c := range candidates {
		if idx.has(c) {
			return c, true
		}
	}

	// Fuzzy fallback: case-insensitive bare-filename lookup, preferring the
	// path closest to the referencing document.
	matches := idx.byName[strings.ToLower(base)]
	switch len(matches) {
	case 0:
		return "", false
	case 1:
		return matches[0], true
	}
	best := matches[0]
	bestScore := -1
	for _, m := range matches {
		if score := commonPrefixSegments(path.Dir(m), fromDir); score > bestScore {
			best, bestScore = m, score
		}
	}
	return best, true
}

// normalizeRef URL-decodes a reference and strips query string and fragment.
func normalizeRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if decoded, err := url.PathUnescape(ref); err == nil {
		ref = decoded
	}
	return ref
}

// commonPrefixSegments counts leading path segments shared by a and b,
// stopping at the first mismatch.
func commonPrefixSegments(a, b string) int {
	as := strings.Split(a, "/")
	bs := strings.Split(b, "/")
	n := 0
	for n < len(as) && n < len(bs) && as[n] == bs[n] {
		n++
	}
	return n
}
