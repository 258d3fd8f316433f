// Package textio opens the delimited text inputs (encounter tables and ID
// mapping files) with BOM handling and optional legacy-charset decoding.
package textio

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// Supported input encodings.
const (
	UTF8        = "utf-8"
	Windows1252 = "windows-1252"
	Latin1      = "iso-8859-1"
)

// ErrUnknownEncoding is returned for an encoding name that is not supported.
var ErrUnknownEncoding = errors.New("unknown encoding")

const readBufferSize = 256 * 1024

// NormalizeEncoding maps accepted aliases onto the canonical encoding names.
// An empty name means UTF-8.
func NormalizeEncoding(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf8", "utf-8":
		return UTF8, nil
	case "windows-1252", "cp1252", "windows1252":
		return Windows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return Latin1, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// Open opens path for reading. A leading UTF-8 BOM is skipped and the
// content is decoded from enc into UTF-8.
func Open(path, enc string) (io.ReadCloser, error) {
	enc, err := NormalizeEncoding(enc)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	r, err := NewReader(file, enc)
	if err != nil {
		file.Close()
		return nil, err
	}
	return readCloser{Reader: r, Closer: file}, nil
}

// NewReader wraps r with a buffered reader, skips a UTF-8 BOM if present and
// decodes from enc.
func NewReader(r io.Reader, enc string) (io.Reader, error) {
	enc, err := NormalizeEncoding(enc)
	if err != nil {
		return nil, err
	}

	bufReader := bufio.NewReaderSize(r, readBufferSize)

	// Skip UTF-8 BOM if present
	bom, err := bufReader.Peek(3)
	if err == nil && len(bom) >= 3 && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		bufReader.Discard(3)
	}

	switch enc {
	case Windows1252:
		return transform.NewReader(bufReader, charmap.Windows1252.NewDecoder()), nil
	case Latin1:
		return transform.NewReader(bufReader, charmap.ISO8859_1.NewDecoder()), nil
	}
	return bufReader, nil
}
