package mobi

// PalmDOC LZ77 decompression. The scheme has three token classes: literal
// bytes, length-distance pairs packed into two bytes, and a space-plus-byte
// shorthand for the common " x" digram.
func palmdocDecompress(src []byte) []byte {
	dst := make([]byte, 0, len(src)*2)
	for i := 0; i < len(src); {
		c := src[i]
		i++
		switch {
		case c == 0x00:
			dst = append(dst, c)
		case c <= 0x08:
			// c literal bytes follow verbatim
			n := int(c)
			if i+n > len(src) {
				n = len(src) - i
			}
			dst = append(dst, src[i:i+n]...)
			i += n
		case c <= 0x7f:
			dst = append(dst, c)
		case c <= 0xbf:
			// length-distance pair: 2 bits marker, 11 bits distance, 3 bits length-3
			if i >= len(src) {
				return dst
			}
			pair := int(c&0x3f)<<8 | int(src[i])
			i++
			distance := pair >> 3
			length := pair&0x07 + 3
			if distance == 0 || distance > len(dst) {
				continue
			}
			for j := 0; j < length; j++ {
				dst = append(dst, dst[len(dst)-distance])
			}
		default:
			// 0xc0..0xff: space followed by the byte XORed with 0x80
			dst = append(dst, ' ', c^0x80)
		}
	}
	return dst
}

// trimTrailingEntries strips the per-record trailing data described by the
// extra data flags word: each set bit above bit 0 marks a variable-length
// entry whose size is encoded as a backward varint at the record tail, and
// bit 0 marks a multibyte-overlap entry whose size lives in the low two bits
// of the final byte.
func trimTrailingEntries(rec []byte, flags uint16) []byte {
	for bit := 15; bit >= 1; bit-- {
		if flags&(1<<bit) == 0 {
			continue
		}
		size := backwardVarint(rec)
		if size <= 0 || size > len(rec) {
			continue
		}
		rec = rec[:len(rec)-size]
	}
	if flags&1 != 0 && len(rec) > 0 {
		n := int(rec[len(rec)-1]&0x03) + 1
		if n <= len(rec) {
			rec = rec[:len(rec)-n]
		}
	}
	return rec
}

// backwardVarint reads the variable-width integer ending at the last byte of
// rec. Bytes carry 7 value bits; the first byte of the sequence has its high
// bit set. The returned size counts the varint's own bytes.
func backwardVarint(rec []byte) int {
	value := 0
	for i := 0; i < 4 && i < len(rec); i++ {
		b := rec[len(rec)-1-i]
		value = int(b&0x7f)<<(7*i) | value
		if b&0x80 != 0 {
			break
		}
	}
	return value
}
