package pipeline

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"dasladen/internal/errors"
)

// copyFile copies src to dst, replacing dst. A partial dst is removed on
// failure.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return errors.IO(err)
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return errors.IO(err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.IO(err)
	}
	if err := removeExisting(dst); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, st.Mode().Perm())
	if err != nil {
		return errors.IO(err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = errors.IO(cerr)
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return errors.IO(errors.Wrapf(err, "copy %s", filepath.Base(src)))
	}
	return nil
}

// moveFile renames src to dst, replacing dst. Across filesystems it falls
// back to copy and remove.
func moveFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.IO(err)
	}
	if err := removeExisting(dst); err != nil {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var le *os.LinkError
	if !errors.As(err, &le) || !errors.Is(le.Err, syscall.EXDEV) {
		return errors.IO(errors.Wrapf(err, "move %s", filepath.Base(src)))
	}
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return errors.IO(os.Remove(src))
}

// moveDir renames the tree src to dst, replacing dst. Across filesystems
// it copies file by file and removes src afterwards.
func moveDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.IO(err)
	}
	if err := os.RemoveAll(dst); err != nil {
		return errors.IO(errors.Wrapf(err, "replace %s", filepath.Base(dst)))
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	var le *os.LinkError
	if !errors.As(err, &le) || !errors.Is(le.Err, syscall.EXDEV) {
		return errors.IO(errors.Wrapf(err, "move %s", filepath.Base(src)))
	}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		return copyFile(path, target)
	})
	if err != nil {
		return errors.IO(errors.Wrapf(err, "copy %s", filepath.Base(src)))
	}
	return errors.IO(os.RemoveAll(src))
}

func sameFile(a, b string) bool {
	sa, err := os.Stat(a)
	if err != nil {
		return false
	}
	sb, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(sa, sb)
}

func removeExisting(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.IO(errors.Wrapf(err, "replace %s", filepath.Base(path)))
	}
	return nil
}
