// Package codec maps file extensions to stream compressors.
package codec

import (
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/dsnet/compress/bzip2"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Codec compresses and decompresses one stream format.
type Codec interface {
	// Name is the configuration name and file extension without the dot.
	Name() string
	NewReader(r io.Reader) (io.ReadCloser, error)
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

var registry = map[string]Codec{
	"bz2": bzip2Codec{},
	"gz":  gzipCodec{},
	"zst": zstdCodec{},
}

// Plain passes bytes through unchanged.
var Plain Codec = plainCodec{}

// ByName returns the codec registered under name ("bz2", "gz" or "zst").
func ByName(name string) (Codec, error) {
	c, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	return c, nil
}

// ForPath picks a codec from the extension of p. Unknown extensions map to Plain.
func ForPath(p string) Codec {
	ext := strings.TrimPrefix(path.Ext(p), ".")
	if c, ok := registry[strings.ToLower(ext)]; ok {
		return c
	}
	return Plain
}

// Ext returns the file extension (with the leading dot) for c.
func Ext(c Codec) string {
	if c.Name() == "" {
		return ""
	}
	return "." + c.Name()
}

type bzip2Codec struct{}

func (bzip2Codec) Name() string { return "bz2" }

func (bzip2Codec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := bzip2.NewReader(r, nil)
	if err != nil {
		return nil, fmt.Errorf("bzip2 reader: %w", err)
	}
	return zr, nil
}

func (bzip2Codec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return nil, fmt.Errorf("bzip2 writer: %w", err)
	}
	return zw, nil
}

type gzipCodec struct{}

func (gzipCodec) Name() string { return "gz" }

func (gzipCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	return zr, nil
}

func (gzipCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	return zw, nil
}

type zstdCodec struct{}

func (zstdCodec) Name() string { return "zst" }

func (zstdCodec) NewReader(r io.Reader) (io.ReadCloser, error) {
	d, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return d.IOReadCloser(), nil
}

func (zstdCodec) NewWriter(w io.Writer) (io.WriteCloser, error) {
	e, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return e, nil
}

type plainCodec struct{}

func (plainCodec) Name() string { return "" }

func (plainCodec) NewReader(r io.Reader) (io.ReadCloser, error) { return io.NopCloser(r), nil }

func (plainCodec) NewWriter(w io.Writer) (io.WriteCloser, error) { return nopWriteCloser{w}, nil }

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
