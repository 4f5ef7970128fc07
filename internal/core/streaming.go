package core

// streaming.go cleans raw CSV bodies before they reach the tokenizer.
//
// Exports downloaded from spreadsheet tools often start with a UTF-8 BOM and
// occasionally contain stray Windows-1252 bytes. Both are fixed on the fly so
// the tokenizer never sees them:
//
//   - bomSkippingReader drops a leading 0xEF 0xBB 0xBF
//   - utf8SanitizingReader replaces invalid bytes with '?'
//
// Use wrapInput to apply both in the right order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomSkippingReader removes a UTF-8 byte order mark from the start of a stream.
type bomSkippingReader struct {
	br      *bufio.Reader
	checked bool
}

func newBOMSkippingReader(r io.Reader) *bomSkippingReader {
	return &bomSkippingReader{br: bufio.NewReader(r)}
}

func (r *bomSkippingReader) Read(p []byte) (int, error) {
	if !r.checked {
		r.checked = true
		head, err := r.br.Peek(len(utf8BOM))
		if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
			return 0, err
		}
		if bytes.Equal(head, utf8BOM) {
			_, _ = r.br.Discard(len(utf8BOM))
		}
	}
	return r.br.Read(p)
}

// utf8SanitizingReader replaces invalid UTF-8 bytes with '?'. Input is
// cleaned a chunk at a time into an internal buffer, so callers may read with
// a buffer of any size. A multi-byte sequence split across two underlying
// reads is held back and prepended to the next chunk.
type utf8SanitizingReader struct {
	r       io.Reader
	buf     []byte
	out     []byte // sanitized bytes not yet returned
	pending []byte
	err     error
}

func newUTF8SanitizingReader(r io.Reader) *utf8SanitizingReader {
	return &utf8SanitizingReader{
		r:       r,
		buf:     make([]byte, 4096),
		pending: make([]byte, 0, utf8.UTFMax),
	}
}

func (s *utf8SanitizingReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for len(s.out) == 0 {
		if s.err != nil {
			return 0, s.err
		}
		n := copy(s.buf, s.pending)
		s.pending = s.pending[:0]

		m, err := s.r.Read(s.buf[n:])
		n += m
		s.err = err
		if n > 0 {
			s.out = s.buf[:s.sanitize(s.buf[:n], err != nil)]
		}
	}
	n := copy(p, s.out)
	s.out = s.out[n:]
	return n, nil
}

// sanitize rewrites data in place and returns the number of bytes to emit.
func (s *utf8SanitizingReader) sanitize(data []byte, atEOF bool) int {
	write := 0
	for read := 0; read < len(data); {
		if data[read] < utf8.RuneSelf {
			data[write] = data[read]
			write++
			read++
			continue
		}

		if !atEOF && !utf8.FullRune(data[read:]) {
			s.pending = append(s.pending, data[read:]...)
			return write
		}

		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size == 1 {
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

// wrapInput strips the BOM first, then sanitizes what remains.
func wrapInput(r io.Reader) io.Reader {
	return newUTF8SanitizingReader(newBOMSkippingReader(r))
}
