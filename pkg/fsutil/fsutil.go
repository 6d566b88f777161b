// Package fsutil provides the filesystem plumbing shared by the pipeline
// stages: tree copies, best-effort merges, and recursive pattern removal.
package fsutil

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// IsExecutable reports whether path exists, is a regular file, and has an
// execute bit set.
func IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular() && info.Mode()&0111 != 0
}

// CopyFile copies src to dst, preserving the file mode. Parent directories
// of dst are created as needed.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("copy %s: not a regular file", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// CopyDir recursively copies the tree at src into dst. Regular files keep
// their modes, symlinks are recreated with their original targets, and other
// entry types (sockets, devices) are skipped.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			info, err := d.Info()
			if err != nil {
				return err
			}
			return os.MkdirAll(target, info.Mode().Perm())
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			return os.Symlink(link, target)
		case d.Type().IsRegular():
			return CopyFile(path, target)
		default:
			return nil
		}
	})
}

// ReplaceDir removes dst and copies src in its place.
func ReplaceDir(src, dst string) error {
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	return CopyDir(src, dst)
}

// MergeDir copies the tree at src into dst without overwriting entries that
// already exist in dst. A missing src is not an error: the merge is defined
// as a no-op on absence.
func MergeDir(src, dst string) error {
	if _, err := os.Stat(src); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}

		// Later files do not overwrite.
		if _, err := os.Lstat(target); err == nil {
			return nil
		}

		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		if d.Type().IsRegular() {
			return CopyFile(path, target)
		}
		return nil
	})
}

// RemoveMatching deletes every file or directory under root whose base name
// matches any of the given glob patterns, recursively. It returns the number
// of entries removed. A clean tree is valid input: zero removals, no error.
func RemoveMatching(root string, patterns []string) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}

	var doomed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		for _, pattern := range patterns {
			ok, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return fmt.Errorf("bad pattern %q: %w", pattern, err)
			}
			if ok {
				doomed = append(doomed, path)
				if d.IsDir() {
					return fs.SkipDir
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, path := range doomed {
		if err := os.RemoveAll(path); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}
