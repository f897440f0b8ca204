package bookpipe

import "errors"

// Sentinel errors returned by the bookpipe package. Structural failures are
// wrapped with a human-readable cause; test with errors.Is.
var (
	// ErrInvalidContainer indicates a required container artifact (container
	// descriptor, packaging document, spine, manifest, metadata block, PDB
	// header) is missing or unparsable. The whole extraction is aborted.
	ErrInvalidContainer = errors.New("bookpipe: invalid container")

	// ErrNoReadableContent indicates a well-formed container from which zero
	// usable chapters survived filtering.
	ErrNoReadableContent = errors.New("bookpipe: no readable content")

	// ErrNeedsOCR indicates a PDF with no text layer on any page, a strong
	// signal of a scanned, image-only document. OCR is not attempted.
	ErrNeedsOCR = errors.New("bookpipe: no text layer found, document likely scanned and needs OCR")

	// ErrDRMProtected indicates the file carries DRM encryption that the
	// pipeline will not remove.
	ErrDRMProtected = errors.New("bookpipe: file is DRM protected")

	// ErrUnsupportedFormat indicates a format tag outside {epub, pdf, mobi}.
	ErrUnsupportedFormat = errors.New("bookpipe: unsupported format")
)
