package fsutil

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"
)

const (
	DirPerm  os.FileMode = 0o755
	FilePerm os.FileMode = 0o644
)

// EnsureDir creates the directory and any missing parents.
func EnsureDir(dirPath string) error {
	if dirPath == "" {
		return errors.New("empty dir path")
	}

	if err := os.MkdirAll(dirPath, DirPerm); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	return nil
}

// Exists reports whether anything is present at path.
func Exists(path string) bool {
	_, err := os.Lstat(path)

	return err == nil
}

// Remove deletes path recursively. A missing path is not an error.
func Remove(path string) error {
	if err := os.RemoveAll(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}

	return nil
}

// Move renames from onto to, creating the parent of to. When the two paths live on
// different filesystems the tree is copied and the source removed.
func Move(from, to string) error {
	if err := EnsureDir(filepath.Dir(to)); err != nil {
		return err
	}

	err := os.Rename(from, to)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return fmt.Errorf("move %s: %w", from, err)
	}

	if err := copyTree(from, to); err != nil {
		_ = os.RemoveAll(to)

		return fmt.Errorf("copy %s across devices: %w", from, err)
	}

	return Remove(from)
}

// CompressDirectory writes every regular file below dir into a zip archive at dest
// and returns the archive size. Entries are stored with slash-separated paths relative
// to dir in lexical order. The archive is written next to dest and renamed into place.
func CompressDirectory(dir, dest string) (int64, error) {
	files, err := listFiles(dir)
	if err != nil {
		return 0, err
	}

	if err := EnsureDir(filepath.Dir(dest)); err != nil {
		return 0, err
	}

	partial := dest + ".part"

	out, err := os.OpenFile(partial, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePerm)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}

	if err := writeZip(out, dir, files); err != nil {
		_ = out.Close()
		_ = os.Remove(partial)

		return 0, err
	}

	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(partial)

		return 0, fmt.Errorf("sync archive: %w", err)
	}

	if err := out.Close(); err != nil {
		_ = os.Remove(partial)

		return 0, fmt.Errorf("close archive: %w", err)
	}

	if err := os.Rename(partial, dest); err != nil {
		_ = os.Remove(partial)

		return 0, fmt.Errorf("rename archive: %w", err)
	}

	info, err := os.Stat(dest)
	if err != nil {
		return 0, fmt.Errorf("stat archive: %w", err)
	}

	return info.Size(), nil
}

func writeZip(out io.Writer, dir string, files []string) error {
	zw := zip.NewWriter(out)

	for _, rel := range files {
		if err := addZipEntry(zw, dir, rel); err != nil {
			_ = zw.Close()

			return err
		}
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("close zip writer: %w", err)
	}

	return nil
}

func addZipEntry(zw *zip.Writer, dir, rel string) error {
	src := filepath.Join(dir, rel)

	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("zip header %s: %w", rel, err)
	}

	header.Name = filepath.ToSlash(rel)
	header.Method = zip.Deflate

	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("zip entry %s: %w", rel, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer in.Close()

	if _, err := io.Copy(w, in); err != nil {
		return fmt.Errorf("copy %s into zip: %w", rel, err)
	}

	return nil
}

func listFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		files = append(files, rel)

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	sort.Strings(files)

	return files, nil
}

func copyTree(from, to string) error {
	return filepath.WalkDir(from, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}

		target := filepath.Join(to, rel)

		if d.IsDir() {
			return os.MkdirAll(target, DirPerm)
		}

		return copyFile(path, target)
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, FilePerm)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()

		return err
	}

	return out.Close()
}
