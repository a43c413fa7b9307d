package imd

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const maxHeaderLine = 256

// readByte reads a single byte. io.EOF is returned untouched so
// callers can tell a clean end of stream from a real read failure.
func readByte(r io.Reader) (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(r, b[:])
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadFileHeader reads and parses the ASCII header line
// ("IMD version: date time") from the start of the stream. The stream
// is left positioned at the first byte of the comment block.
func ReadFileHeader(rs io.ReadSeeker) (HeaderInfo, error) {
	var line []byte
	terminated := false
	for len(line) < maxHeaderLine-1 {
		b, err := readByte(rs)
		if err == io.EOF {
			break
		}
		if err != nil {
			return HeaderInfo{}, fmt.Errorf("%w: header line: %v", ErrRead, err)
		}
		if b == '\r' || b == '\n' {
			terminated = true
			// Tolerate CR/LF in either order.
			next, err := readByte(rs)
			if err == nil && next != '\r' && next != '\n' {
				if _, err := rs.Seek(-1, io.SeekCurrent); err != nil {
					return HeaderInfo{}, fmt.Errorf("%w: %v", ErrSeek, err)
				}
			}
			break
		}
		line = append(line, b)
	}
	if len(line) == 0 && !terminated {
		return HeaderInfo{}, fmt.Errorf("%w: empty file", ErrRead)
	}
	if !strings.HasPrefix(string(line), "IMD ") {
		return HeaderInfo{}, fmt.Errorf("%w: missing IMD header prefix", ErrFormat)
	}
	return parseHeaderLine(string(line)), nil
}

// parseHeaderLine extracts version and timestamp from a header line
// known to start with "IMD ". Partial matches degrade: a version that
// cannot be extracted becomes "Unknown", a timestamp that does not
// parse or is out of calendar range becomes all zeros.
func parseHeaderLine(line string) HeaderInfo {
	hi := HeaderInfo{Version: "Unknown"}
	rest := line[4:]
	colon := strings.IndexByte(rest, ':')
	if colon <= 0 {
		return hi
	}
	if colon > 31 {
		hi.Version = rest[:31]
		return hi
	}
	hi.Version = rest[:colon]
	var day, month, year, hour, minute, second int
	n, err := fmt.Sscanf(rest[colon+1:], "%d/%d/%d %d:%d:%d",
		&day, &month, &year, &hour, &minute, &second)
	if err != nil || n != 6 {
		return hi
	}
	if month < 1 || month > 12 || day < 1 || day > 31 ||
		hour < 0 || hour > 23 || minute < 0 || minute > 59 ||
		second < 0 || second > 59 {
		return hi
	}
	hi.Day, hi.Month, hi.Year = day, month, year
	hi.Hour, hi.Minute, hi.Second = hour, minute, second
	return hi
}

// ReadCommentBlock reads the comment bytes up to, but not including,
// the 0x1A terminator. Reaching end of file before the terminator is
// an error. The returned slice may be empty.
func ReadCommentBlock(r io.Reader) ([]byte, error) {
	comment := []byte{}
	for {
		b, err := readByte(r)
		if err == io.EOF {
			return nil, fmt.Errorf("%w: EOF before comment terminator", ErrFormat)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: comment block: %v", ErrRead, err)
		}
		if b == CommentEOFMarker {
			return comment, nil
		}
		comment = append(comment, b)
	}
}

// SkipCommentBlock scans past the comment block without keeping it.
func SkipCommentBlock(r io.Reader) error {
	for {
		b, err := readByte(r)
		if err == io.EOF {
			return fmt.Errorf("%w: EOF before comment terminator", ErrFormat)
		}
		if err != nil {
			return fmt.Errorf("%w: comment block: %v", ErrRead, err)
		}
		if b == CommentEOFMarker {
			return nil
		}
	}
}

// WriteFileHeader writes the standard header line with the current
// local date and time.
func WriteFileHeader(w io.Writer, version string) error {
	stamp := time.Now().Format("02/01/2006 15:04:05")
	if _, err := fmt.Fprintf(w, "IMD %s: %s\r\n", version, stamp); err != nil {
		return fmt.Errorf("%w: header line: %v", ErrWrite, err)
	}
	return nil
}

// WriteCommentBlock writes the comment bytes followed by the 0x1A
// terminator.
func WriteCommentBlock(w io.Writer, comment []byte) error {
	if len(comment) > 0 {
		if _, err := w.Write(comment); err != nil {
			return fmt.Errorf("%w: comment block: %v", ErrWrite, err)
		}
	}
	if _, err := w.Write([]byte{CommentEOFMarker}); err != nil {
		return fmt.Errorf("%w: comment terminator: %v", ErrWrite, err)
	}
	return nil
}
