// Package archive extracts capture bundles and builds the archives produced
// by the zip task.
package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"dasladen/internal/errors"
)

// Ext is the extension recognized as an archive bundle.
const Ext = ".zip"

// IsArchive reports whether name has the archive extension.
func IsArchive(name string) bool {
	return strings.EqualFold(filepath.Ext(name), Ext)
}

// Limits bounds what a single extraction may write. Zero means unlimited.
type Limits struct {
	Files    int
	FileSize int64
}

// Extract decompresses every entry of src into dst. dst is created when
// missing; entries escaping dst are rejected.
func Extract(src, dst string, lim Limits) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.IO(errors.Wrap(err, "create extraction dir"))
	}
	d := &getter.ZipDecompressor{
		FilesLimit:    lim.Files,
		FileSizeLimit: lim.FileSize,
	}
	if err := d.Decompress(dst, src, true, 0o022); err != nil {
		return errors.IO(errors.Wrapf(err, "extract %s", filepath.Base(src)))
	}
	return nil
}

// Entry is one file added by Create: Path on disk stored under Name.
type Entry struct {
	Path string
	Name string
}

// Create writes a deflated archive at dest holding entries. Entry names are
// stored in code page 437; characters it cannot represent become '_'.
func Create(dest string, entries []Entry) (err error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.IO(err)
	}
	f, err := os.Create(dest)
	if err != nil {
		return errors.IO(errors.Wrap(err, "create archive"))
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = errors.IO(cerr)
		}
		if err != nil {
			_ = os.Remove(dest)
		}
	}()

	zw := zip.NewWriter(f)
	for _, e := range entries {
		if err := addFile(zw, e); err != nil {
			_ = zw.Close()
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return errors.IO(errors.Wrap(err, "finish archive"))
	}
	return nil
}

func addFile(zw *zip.Writer, e Entry) error {
	src, err := os.Open(e.Path)
	if err != nil {
		return errors.IO(errors.Wrapf(err, "open %s", e.Name))
	}
	defer src.Close()
	st, err := src.Stat()
	if err != nil {
		return errors.IO(err)
	}

	hdr, err := zip.FileInfoHeader(st)
	if err != nil {
		return errors.IO(err)
	}
	hdr.Name = CP437Name(e.Name)
	hdr.NonUTF8 = true
	hdr.Method = zip.Deflate

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.IO(errors.Wrapf(err, "add %s", e.Name))
	}
	if _, err := io.Copy(w, src); err != nil {
		return errors.IO(errors.Wrapf(err, "write %s", e.Name))
	}
	return nil
}

// CP437Name encodes name for the archive directory.
func CP437Name(name string) string {
	enc := encoding.ReplaceUnsupported(charmap.CodePage437.NewEncoder())
	b, err := enc.Bytes([]byte(filepath.ToSlash(name)))
	if err != nil {
		b = []byte(name)
	}
	for i, c := range b {
		if c == 0x1a || c == '?' {
			b[i] = '_'
		}
	}
	return string(b)
}
