// Package mobi decodes MOBI (PalmDB/BOOKMOBI) ebook containers: record
// structure, PalmDOC decompression, EXTH metadata, cover image bytes, and
// the guide-referenced flat table of contents. KF8-only features beyond the
// shared PDB layout are out of scope; HUFF/CDIC-compressed and encrypted
// books are rejected with descriptive errors.
package mobi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrNotMOBI indicates the buffer is not a PalmDB MOBI/PalmDOC container.
	ErrNotMOBI = errors.New("mobi: not a mobi file")

	// ErrUnsupportedCompression indicates a HUFF/CDIC-compressed book.
	ErrUnsupportedCompression = errors.New("mobi: HUFF/CDIC compression not supported")

	// ErrEncrypted indicates the book is DRM encrypted.
	ErrEncrypted = errors.New("mobi: book is encrypted")
)

// TOCEntry is one flat table-of-contents entry recovered from the guide.
type TOCEntry struct {
	Title   string
	Filepos int // byte offset into Book.HTML
}

// Book is the decoded result of one MOBI container.
type Book struct {
	Title       string
	Author      string
	Publisher   string
	ISBN        string
	Language    string
	Description string
	Subjects    []string
	Date        string
	Cover       []byte   // raw image bytes of the cover record, nil if absent
	Images      [][]byte // image records in order; img recindex N maps to Images[N-1]
	TOC         []TOCEntry
	HTML        string // concatenated decoded text records
}

const (
	pdbHeaderSize    = 78
	pdbRecordEntry   = 8
	compressionNone  = 1
	compressionPalm  = 2
	compressionHuff  = 17480
	encodingCP1252   = 1252
	encodingUTF8     = 65001
	exthFlagPresent  = 0x40
	mobiHeaderOffset = 16 // MOBI header follows the 16-byte PalmDOC header
)

// Parse decodes a MOBI/PalmDOC buffer.
func Parse(data []byte) (*Book, error) {
	recs, name, isMOBI, err := pdbRecords(data)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("container has no records: %w", ErrNotMOBI)
	}
	rec0 := recs[0]
	if len(rec0) < 14 {
		return nil, fmt.Errorf("record zero truncated: %w", ErrNotMOBI)
	}

	compression := binary.BigEndian.Uint16(rec0[0:2])
	textLength := int(binary.BigEndian.Uint32(rec0[4:8]))
	recordCount := int(binary.BigEndian.Uint16(rec0[8:10]))
	encryption := binary.BigEndian.Uint16(rec0[12:14])

	switch compression {
	case compressionNone, compressionPalm:
	case compressionHuff:
		return nil, ErrUnsupportedCompression
	default:
		return nil, fmt.Errorf("unknown compression scheme %d: %w", compression, ErrNotMOBI)
	}
	if encryption != 0 {
		return nil, ErrEncrypted
	}

	book := &Book{Title: name}
	textEncoding := uint32(encodingCP1252)
	extraFlags := uint16(0)
	firstImage := -1

	if isMOBI && len(rec0) >= mobiHeaderOffset+8 && bytes.Equal(rec0[16:20], []byte("MOBI")) {
		h := mobiHeader(rec0)
		textEncoding = h.textEncoding
		extraFlags = h.extraDataFlags
		firstImage = h.firstImageIndex
		if h.fullName != "" {
			book.Title = h.fullName
		}
		if h.exthPresent {
			applyEXTH(book, rec0[mobiHeaderOffset+int(h.headerLength):], firstImage, recs)
		}
		if firstImage > 0 && firstImage < len(recs) {
			// Trailing records past the images (FLIS, FCIS, SRCS) ride along;
			// callers sniff before decoding.
			book.Images = recs[firstImage:]
		}
	}

	html, err := decodeText(recs, recordCount, compression, extraFlags, textLength, textEncoding)
	if err != nil {
		return nil, err
	}
	book.HTML = html
	book.TOC = parseGuideTOC(html)
	return book, nil
}

// pdbRecords splits the PalmDB container into its records.
func pdbRecords(data []byte) (recs [][]byte, name string, isMOBI bool, err error) {
	if len(data) < pdbHeaderSize+pdbRecordEntry {
		return nil, "", false, fmt.Errorf("buffer too small for a PDB header: %w", ErrNotMOBI)
	}
	typeCreator := string(data[60:68])
	switch typeCreator {
	case "BOOKMOBI":
		isMOBI = true
	case "TEXtREAd":
		isMOBI = false
	default:
		return nil, "", false, fmt.Errorf("PDB type %q: %w", typeCreator, ErrNotMOBI)
	}

	name = string(bytes.TrimRight(data[0:32], "\x00"))
	n := int(binary.BigEndian.Uint16(data[76:78]))
	if n == 0 || len(data) < pdbHeaderSize+n*pdbRecordEntry {
		return nil, "", false, fmt.Errorf("record table truncated: %w", ErrNotMOBI)
	}

	offsets := make([]int, n+1)
	for i := 0; i < n; i++ {
		offsets[i] = int(binary.BigEndian.Uint32(data[pdbHeaderSize+i*pdbRecordEntry:]))
	}
	offsets[n] = len(data)

	recs = make([][]byte, n)
	for i := 0; i < n; i++ {
		start, end := offsets[i], offsets[i+1]
		if start < 0 || end > len(data) || start > end {
			return nil, "", false, fmt.Errorf("record %d offsets out of range: %w", i, ErrNotMOBI)
		}
		recs[i] = data[start:end]
	}
	return recs, name, isMOBI, nil
}

type header struct {
	headerLength    uint32
	textEncoding    uint32
	fullName        string
	firstImageIndex int
	exthPresent     bool
	extraDataFlags  uint16
}

// mobiHeader reads the MOBI header fields this decoder cares about. Offsets
// are relative to the "MOBI" magic at byte 16 of record zero.
func mobiHeader(rec0 []byte) header {
	h := header{firstImageIndex: -1}
	at := func(off, size int) []byte {
		start := mobiHeaderOffset + off
		if start+size > len(rec0) {
			return nil
		}
		return rec0[start : start+size]
	}
	u32 := func(off int) uint32 {
		b := at(off, 4)
		if b == nil {
			return 0
		}
		return binary.BigEndian.Uint32(b)
	}

	h.headerLength = u32(4)
	h.textEncoding = u32(28)
	if h.textEncoding == 0 {
		h.textEncoding = encodingCP1252
	}

	if v := u32(108); v > 0 {
		h.firstImageIndex = int(v)
	}

	nameOff := int(u32(84)) // relative to record zero start
	nameLen := int(u32(88))
	if nameOff > 0 && nameLen > 0 && nameOff+nameLen <= len(rec0) {
		h.fullName = string(bytes.TrimRight(rec0[nameOff:nameOff+nameLen], "\x00"))
	}

	h.exthPresent = u32(128)&exthFlagPresent != 0

	// Extra record data flags appear only in newer, longer headers. The
	// field sits at record offset 0xF2, which is 226 past the magic.
	if h.headerLength >= 228 {
		if b := at(226, 2); b != nil {
			h.extraDataFlags = binary.BigEndian.Uint16(b)
		}
	}
	return h
}

// decodeText decompresses, trims and concatenates the text records, then
// converts the declared source encoding to UTF-8.
func decodeText(recs [][]byte, recordCount int, compression, extraFlags uint16, textLength int, textEncoding uint32) (string, error) {
	if recordCount <= 0 || recordCount >= len(recs) {
		recordCount = len(recs) - 1
	}

	var out bytes.Buffer
	for i := 1; i <= recordCount && i < len(recs); i++ {
		rec := trimTrailingEntries(recs[i], extraFlags)
		switch compression {
		case compressionPalm:
			out.Write(palmdocDecompress(rec))
		default:
			out.Write(rec)
		}
	}

	text := out.Bytes()
	if textLength > 0 && textLength < len(text) {
		text = text[:textLength]
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return "", fmt.Errorf("decoded text is empty: %w", ErrNotMOBI)
	}

	if textEncoding != encodingUTF8 {
		decoded, err := charmap.Windows1252.NewDecoder().Bytes(text)
		if err == nil {
			text = decoded
		}
	}
	return string(text), nil
}
