package mobi

import (
	"bytes"
	"encoding/binary"
	"regexp"
	"strings"
)

// EXTH record types carried over into Book fields.
const (
	exthAuthor      = 100
	exthPublisher   = 101
	exthDescription = 103
	exthISBN        = 104
	exthSubject     = 105
	exthDate        = 106
	exthCoverOffset = 201
	exthTitle       = 503
	exthLanguage    = 524
)

// applyEXTH parses the EXTH block and fills book metadata. The cover offset
// record indexes image records relative to firstImageIndex.
func applyEXTH(book *Book, exth []byte, firstImage int, recs [][]byte) {
	if len(exth) < 12 || !bytes.Equal(exth[0:4], []byte("EXTH")) {
		return
	}
	count := int(binary.BigEndian.Uint32(exth[8:12]))

	pos := 12
	for i := 0; i < count && pos+8 <= len(exth); i++ {
		recType := int(binary.BigEndian.Uint32(exth[pos : pos+4]))
		recLen := int(binary.BigEndian.Uint32(exth[pos+4 : pos+8]))
		if recLen < 8 || pos+recLen > len(exth) {
			break
		}
		payload := exth[pos+8 : pos+recLen]
		pos += recLen

		switch recType {
		case exthAuthor:
			book.Author = exthString(payload)
		case exthPublisher:
			book.Publisher = exthString(payload)
		case exthDescription:
			book.Description = exthString(payload)
		case exthISBN:
			book.ISBN = exthString(payload)
		case exthSubject:
			if s := exthString(payload); s != "" {
				book.Subjects = append(book.Subjects, s)
			}
		case exthDate:
			book.Date = exthString(payload)
		case exthTitle:
			if s := exthString(payload); s != "" {
				book.Title = s
			}
		case exthLanguage:
			book.Language = exthString(payload)
		case exthCoverOffset:
			if len(payload) == 4 && firstImage >= 0 {
				idx := firstImage + int(binary.BigEndian.Uint32(payload))
				if idx >= 0 && idx < len(recs) && len(recs[idx]) > 0 {
					book.Cover = recs[idx]
				}
			}
		}
	}
}

func exthString(payload []byte) string {
	return strings.TrimSpace(string(bytes.TrimRight(payload, "\x00")))
}

var (
	guideTOCRe   = regexp.MustCompile(`(?is)<reference\b[^>]*type=["']?toc["']?[^>]*>`)
	fileposRe    = regexp.MustCompile(`(?i)filepos=["']?(\d+)`)
	tocAnchorRe  = regexp.MustCompile(`(?is)<a\b[^>]*filepos=["']?(\d+)["']?[^>]*>(.*?)</a>`)
	innerTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	maxTOCScan   = 65536
	maxTOCLength = 500
)

// parseGuideTOC locates the guide's toc reference and reads the flat anchor
// list it points at. Returns nil when the book carries no usable guide.
func parseGuideTOC(html string) []TOCEntry {
	ref := guideTOCRe.FindString(html)
	if ref == "" {
		return nil
	}
	m := fileposRe.FindStringSubmatch(ref)
	if m == nil {
		return nil
	}
	start := atoiSafe(m[1])
	if start < 0 || start >= len(html) {
		return nil
	}

	end := start + maxTOCScan
	if end > len(html) {
		end = len(html)
	}
	region := html[start:end]

	var toc []TOCEntry
	for _, am := range tocAnchorRe.FindAllStringSubmatch(region, maxTOCLength) {
		pos := atoiSafe(am[1])
		title := strings.TrimSpace(innerTagRe.ReplaceAllString(am[2], ""))
		if pos < 0 || pos >= len(html) || title == "" {
			continue
		}
		toc = append(toc, TOCEntry{Title: title, Filepos: pos})
	}
	return toc
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			return -1
		}
	}
	return n
}
