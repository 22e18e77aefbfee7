package source

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// JPEG stream markers. FFmpeg's image2pipe output is a bare concatenation of
// JPEG images, so frame boundaries are recovered by scanning for them.
const (
	markerPrefix = 0xFF
	markerSOI    = 0xD8
	markerEOI    = 0xD9
)

// frameLimit caps a single frame so a corrupt stream cannot grow the buffer
// without bound.
const frameLimit = 32 << 20

// frameSplitter cuts an FFmpeg image2pipe stream into individual JPEG
// images. The scratch buffer is reused across frames.
type frameSplitter struct {
	r   *bufio.Reader
	buf bytes.Buffer
}

func newFrameSplitter(r io.Reader) *frameSplitter {
	return &frameSplitter{r: bufio.NewReaderSize(r, 256*1024)}
}

// Next returns the next complete JPEG, start and end markers included.
// io.EOF means the stream ended between frames; an EOF inside a frame also
// surfaces as io.EOF, with the partial frame discarded.
func (s *frameSplitter) Next() ([]byte, error) {
	if err := s.sync(); err != nil {
		return nil, err
	}

	s.buf.Reset()
	s.buf.WriteByte(markerPrefix)
	s.buf.WriteByte(markerSOI)

	for {
		chunk, err := s.r.ReadBytes(markerPrefix)
		if err != nil {
			return nil, err
		}
		s.buf.Write(chunk)

		b, err := s.r.ReadByte()
		if err != nil {
			return nil, err
		}
		for b == markerPrefix {
			// A run of prefix bytes; only the last one can start the
			// end marker.
			s.buf.WriteByte(b)
			if b, err = s.r.ReadByte(); err != nil {
				return nil, err
			}
		}
		s.buf.WriteByte(b)

		if b == markerEOI {
			out := make([]byte, s.buf.Len())
			copy(out, s.buf.Bytes())
			return out, nil
		}
		if s.buf.Len() > frameLimit {
			return nil, fmt.Errorf("jpeg frame exceeds %d bytes", frameLimit)
		}
	}
}

// sync discards bytes up to and including the next start-of-image marker.
func (s *frameSplitter) sync() error {
	for {
		if _, err := s.r.ReadBytes(markerPrefix); err != nil {
			return err
		}
		b, err := s.r.ReadByte()
		if err != nil {
			return err
		}
		if b == markerSOI {
			return nil
		}
		if b == markerPrefix {
			// Stay on the prefix run; the marker may follow it.
			if err := s.r.UnreadByte(); err != nil {
				return err
			}
		}
	}
}
