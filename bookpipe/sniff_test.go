package bookpipe

import "testing"

func TestDetectImageMIME(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		ext  string
		want string
	}{
		{"png signature", []byte("\x89PNG\r\n\x1a\nrest"), "png", "image/png"},
		{"jpeg signature", []byte{0xFF, 0xD8, 0xFF, 0xE0}, "jpg", "image/jpeg"},
		{"gif87", []byte("GIF87a...."), "gif", "image/gif"},
		{"gif89", []byte("GIF89a...."), "gif", "image/gif"},
		{"webp", append([]byte("RIFF\x00\x00\x00\x00"), []byte("WEBPVP8 ")...), "webp", "image/webp"},
		{"bmp", []byte("BM\x00\x00"), "bmp", "image/bmp"},
		{"tiff little endian", []byte("II*\x00data"), "tif", "image/tiff"},
		{"tiff big endian", []byte("MM\x00*data"), "tiff", "image/tiff"},
		{"svg with xml decl", []byte(`<?xml version="1.0"?><svg/>`), "svg", "image/svg+xml"},
		{"svg bare", []byte(`  <svg xmlns="http://www.w3.org/2000/svg"/>`), "", "image/svg+xml"},

		// Signature wins over a lying extension.
		{"png named jpg", []byte("\x89PNG\r\n\x1a\n"), "jpg", "image/png"},

		// No signature: extension decides.
		{"unknown bytes gif ext", []byte{0x01, 0x02, 0x03}, ".gif", "image/gif"},
		{"unknown bytes upper ext", []byte{0x01, 0x02, 0x03}, "PNG", "image/png"},

		// Nothing to go on: jpeg default.
		{"no hints", []byte{0x01, 0x02, 0x03}, "", "image/jpeg"},
		{"empty buffer", nil, "", "image/jpeg"},
	}
	for _, tt := range tests {
		if got := detectImageMIME(tt.data, tt.ext); got != tt.want {
			t.Errorf("%s: detectImageMIME = %q, want %q", tt.name, got, tt.want)
		}
	}
}
