package bookpipe

import (
	"bytes"
	"strings"
)

// extensionMIME maps lower-cased file extensions (without dot) to MIME types.
// Used only when no byte signature matches.
var extensionMIME = map[string]string{
	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"jpe":  "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tif":  "image/tiff",
	"tiff": "image/tiff",
	"svg":  "image/svg+xml",
}

// detectImageMIME classifies an image buffer by magic number, falling back to
// the extension hint and finally to image/jpeg. Signature checks win over the
// caller-supplied extension because a wrong MIME string in a data: URI makes
// an otherwise valid image fail to render. Never fails.
func detectImageMIME(data []byte, ext string) string {
	switch {
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png"
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "image/jpeg"
	case bytes.HasPrefix(data, []byte("GIF87a")) || bytes.HasPrefix(data, []byte("GIF89a")):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "image/bmp"
	case bytes.HasPrefix(data, []byte("II*\x00")) || bytes.HasPrefix(data, []byte("MM\x00*")):
		return "image/tiff"
	}

	// SVG arrives as text, often behind an XML declaration.
	head := strings.TrimLeft(string(data[:min(len(data), 256)]), " \t\r\n")
	if strings.HasPrefix(head, "<?xml") || strings.HasPrefix(head, "<svg") {
		return "image/svg+xml"
	}

	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if mime, ok := extensionMIME[ext]; ok {
		return mime
	}
	return "image/jpeg"
}
