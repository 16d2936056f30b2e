// Package textio reads checklist and comment sources into text and writes
// results back to disk. It is the file boundary around the checklist engine.
package textio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/openctemio/cklmerge/pkg/checklist"
)

// Compression identifies how a file on disk is encoded.
type Compression string

// Supported compressions, chosen by file extension.
const (
	CompressionNone Compression = ""
	CompressionGzip Compression = "gzip"
	CompressionZstd Compression = "zstd"
)

// Limits bounds how much a source may occupy in memory.
type Limits struct {
	// MaxInputBytes is the maximum size of a source after decompression.
	// Default: 256MB
	MaxInputBytes int64

	// MaxCompressionRatio rejects compressed sources that expand by more than
	// this factor. Default: 100
	MaxCompressionRatio float64
}

// DefaultLimits returns the default source limits.
func DefaultLimits() Limits {
	return Limits{
		MaxInputBytes:       256 * 1024 * 1024,
		MaxCompressionRatio: 100,
	}
}

// CompressionFor returns the compression implied by the extension of path.
func CompressionFor(path string) Compression {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gz", ".gzip":
		return CompressionGzip
	case ".zst", ".zstd":
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// ReadFile reads the source at path, decompressing it if its extension says
// so, and decodes it to text.
func ReadFile(path string, limits Limits) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", checklist.NewReadError(fmt.Sprintf("open %s", path), err)
	}
	defer file.Close()

	return Read(file, CompressionFor(path), limits)
}

// Read reads r according to c and decodes the result to text.
func Read(r io.Reader, c Compression, limits Limits) (string, error) {
	if limits.MaxInputBytes <= 0 {
		limits.MaxInputBytes = DefaultLimits().MaxInputBytes
	}

	raw, err := readLimited(r, limits.MaxInputBytes)
	if err != nil {
		return "", err
	}

	data := raw
	if c != CompressionNone {
		data, err = decompress(raw, c, limits)
		if err != nil {
			return "", err
		}
	}

	return Decode(data)
}

// Decode converts raw bytes to text. A UTF-8 or UTF-16 byte order mark is
// honoured and removed; input without a BOM must be valid UTF-8. UTF-16 input
// whose XML declaration names UTF-16 is rejected.
func Decode(data []byte) (string, error) {
	// The UTF-8 decoder substitutes U+FFFD for bad bytes, so validate first.
	if !hasUTF16BOM(data) && !utf8.Valid(data) {
		return "", checklist.NewReadError("decode text", fmt.Errorf("input is not valid UTF-8"))
	}
	decoded, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	if err != nil {
		return "", checklist.NewReadError("decode text", err)
	}
	// Results are written as UTF-8; a prolog still naming UTF-16 would
	// misdescribe them.
	if hasUTF16BOM(data) && utf16Declaration.Match(decoded) {
		return "", checklist.NewReadError("decode text",
			fmt.Errorf("XML declaration names UTF-16; convert the source to UTF-8 first"))
	}
	return string(decoded), nil
}

var utf16Declaration = regexp.MustCompile(`(?i)\A\s*<\?xml[^>]*\sencoding\s*=\s*["']utf-16`)

func hasUTF16BOM(data []byte) bool {
	return bytes.HasPrefix(data, []byte{0xFE, 0xFF}) || bytes.HasPrefix(data, []byte{0xFF, 0xFE})
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, checklist.NewReadError("read source", err)
	}
	if int64(len(data)) > limit {
		return nil, checklist.NewReadError("read source", fmt.Errorf("size exceeds limit %d", limit))
	}
	return data, nil
}

// decompress expands data with zipbomb protection: output is capped at
// MaxInputBytes and at MaxCompressionRatio times the compressed size.
func decompress(data []byte, c Compression, limits Limits) ([]byte, error) {
	if len(data) == 0 {
		return data, nil
	}

	var reader io.Reader
	switch c {
	case CompressionGzip:
		gr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, checklist.NewReadError("gzip reader", err)
		}
		defer gr.Close()
		reader = gr
	case CompressionZstd:
		zr, err := zstd.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, checklist.NewReadError("zstd reader", err)
		}
		defer zr.Close()
		reader = zr
	default:
		return nil, checklist.NewReadError("decompress", fmt.Errorf("unsupported compression %q", c))
	}

	limit := limits.MaxInputBytes
	if limits.MaxCompressionRatio > 0 {
		if byRatio := int64(float64(len(data)) * limits.MaxCompressionRatio); byRatio < limit {
			limit = byRatio
		}
	}

	out, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		return nil, checklist.NewReadError(fmt.Sprintf("%s decompress", c), err)
	}
	if int64(len(out)) > limit {
		return nil, checklist.NewReadError(fmt.Sprintf("%s decompress", c),
			fmt.Errorf("decompressed size exceeds limit %d", limit))
	}
	return out, nil
}

// WriteFile writes text to path as UTF-8, compressing it when the extension
// of path asks for it. The file is written to a temporary sibling and renamed
// into place, so a failed write never leaves a partial result at path.
func WriteFile(path, text string) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = Write(tmp, CompressionFor(path), text); err != nil {
		return err
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// Write encodes text to w according to c.
func Write(w io.Writer, c Compression, text string) error {
	switch c {
	case CompressionNone:
		_, err := io.WriteString(w, text)
		if err != nil {
			return fmt.Errorf("write: %w", err)
		}
		return nil
	case CompressionGzip:
		gw := gzip.NewWriter(w)
		if _, err := io.WriteString(gw, text); err != nil {
			return fmt.Errorf("gzip write: %w", err)
		}
		if err := gw.Close(); err != nil {
			return fmt.Errorf("gzip close: %w", err)
		}
		return nil
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := io.WriteString(zw, text); err != nil {
			_ = zw.Close()
			return fmt.Errorf("zstd write: %w", err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("zstd close: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported compression %q", c)
	}
}

// OutputPath returns the default destination for input: the file name gains
// an "Updated_" prefix and is placed in dir, or next to input when dir is "".
func OutputPath(input, dir string) string {
	if dir == "" {
		dir = filepath.Dir(input)
	}
	return filepath.Join(dir, "Updated_"+filepath.Base(input))
}
