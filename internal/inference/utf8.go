package inference

import "unicode/utf8"

// utf8Assembler buffers raw token bytes and releases the longest valid UTF-8
// prefix at each step. Token byte sequences are not guaranteed to align to
// rune boundaries, so an incomplete trailing sequence is retained until the
// next push completes it.
type utf8Assembler struct {
	buf []byte
}

// Push appends b and returns the longest valid UTF-8 prefix of the buffer,
// retaining the incomplete suffix. Bytes that can never begin or continue a
// valid rune are dropped.
func (a *utf8Assembler) Push(b []byte) string {
	a.buf = append(a.buf, b...)
	end := 0
	for end < len(a.buf) {
		r, size := utf8.DecodeRune(a.buf[end:])
		if r == utf8.RuneError && size <= 1 {
			if utf8.FullRune(a.buf[end:]) {
				// Truly invalid byte; skip it rather than emit it.
				copy(a.buf[end:], a.buf[end+1:])
				a.buf = a.buf[:len(a.buf)-1]
				continue
			}
			// Incomplete sequence at the tail; wait for more bytes.
			break
		}
		end += size
	}
	out := string(a.buf[:end])
	a.buf = append(a.buf[:0], a.buf[end:]...)
	return out
}

// Flush returns the remaining buffer iff it decodes as valid UTF-8, otherwise
// discards it. The assembler is empty afterwards.
func (a *utf8Assembler) Flush() string {
	defer func() { a.buf = a.buf[:0] }()
	if len(a.buf) == 0 {
		return ""
	}
	if utf8.Valid(a.buf) {
		return string(a.buf)
	}
	return ""
}

// Pending reports how many bytes are buffered.
func (a *utf8Assembler) Pending() int { return len(a.buf) }
