package codec

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// WriteJSON encodes v through c into a temporary sibling of path and renames
// it into place, so readers never observe a partial file. It returns the
// number of bytes written to disk.
func WriteJSON(path string, c Codec, v any) (int64, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()
	fail := func(err error) (int64, error) {
		tmp.Close()
		os.Remove(tmpName)
		return 0, err
	}

	cw := &countingWriter{w: tmp}
	zw, err := c.NewWriter(cw)
	if err != nil {
		return fail(err)
	}
	if err := json.NewEncoder(zw).Encode(v); err != nil {
		zw.Close()
		return fail(fmt.Errorf("encoding: %w", err))
	}
	if err := zw.Close(); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return 0, err
	}
	return cw.n, nil
}

// ReadJSON decodes the file at path, decompressing by extension.
func ReadJSON(path string, v any) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	r, err := ForPath(path).NewReader(f)
	if err != nil {
		return err
	}
	defer r.Close()
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
