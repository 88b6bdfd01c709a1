package trayproto

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// LineReader reads newline-delimited messages from a pipe while enforcing
// MaxMessageSize. An oversized line is consumed in full and reported as
// ErrMessageTooLarge; the reader stays usable for the next line, so one bad
// peer message never kills the channel.
type LineReader struct {
	r   *bufio.Reader
	max int
}

// NewLineReader wraps r with the protocol's size limit.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{
		r:   bufio.NewReaderSize(r, 64*1024),
		max: MaxMessageSize,
	}
}

// Next returns the next line with the trailing newline stripped. It returns
// ErrMessageTooLarge for an oversized line (already consumed), io.EOF when
// the pipe is closed, or any underlying read error.
func (lr *LineReader) Next() ([]byte, error) {
	var line []byte
	discarding := false

	for {
		frag, err := lr.r.ReadSlice('\n')
		if !discarding {
			line = append(line, frag...)
			// +1 allows for the newline itself on a maximum-size line.
			if len(line) > lr.max+1 {
				discarding = true
				line = nil
			}
		}
		if err == bufio.ErrBufferFull {
			continue
		}
		if err != nil {
			if discarding {
				return nil, ErrMessageTooLarge
			}
			if len(line) > 0 && errors.Is(err, io.EOF) {
				// Final line without a terminator; hand it up as-is.
				return bytes.TrimRight(line, "\r\n"), nil
			}
			return nil, err
		}
		if discarding {
			return nil, ErrMessageTooLarge
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) > lr.max {
			return nil, ErrMessageTooLarge
		}
		return line, nil
	}
}
