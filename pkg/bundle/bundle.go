// Package bundle extracts downloaded distribution bundles and locates the
// application archive inside them.
//
// The bundle format is chosen by file suffix. Zip-style containers cover
// Windows installers (.nupkg is a zip), tarballs cover the Linux runtime
// distributions; each compression scheme decodes with a pure-Go reader so
// extraction needs no host tools.
package bundle

import (
	"archive/tar"
	"compress/bzip2"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zip"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"

	"github.com/elrepack/elrepack/pkg/errors"
)

// Extract unpacks the bundle at src into dest, choosing the format by
// suffix. Unsupported suffixes fail with an INVALID_INPUT error.
func Extract(src, dest string) error {
	if err := os.MkdirAll(dest, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment, err, "create extraction directory %s", dest)
	}
	switch {
	case hasSuffix(src, ".zip", ".nupkg"):
		return extractZip(src, dest)
	case hasSuffix(src, ".tar.gz", ".tgz", ".tar.bz2", ".tar.xz", ".tar.zst", ".tar"):
		return extractTar(src, dest)
	default:
		return errors.New(errors.ErrCodeInvalidInput, "unsupported bundle format: %s", filepath.Base(src))
	}
}

// FindArchive locates the application archive in an extracted bundle tree.
// Distributors nest it at varying depths (resources/, lib/net45/resources/,
// ...), so the whole tree is searched.
func FindArchive(root string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == "app.asar" {
			found = path
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeArchive, err, "search %s for application archive", root)
	}
	if found == "" {
		return "", errors.New(errors.ErrCodeArchive, "no app.asar found under %s", root)
	}
	return found, nil
}

func hasSuffix(path string, suffixes ...string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

// securePath joins name under dest, rejecting entries that would escape it.
func securePath(dest, name string) (string, error) {
	path := filepath.Join(dest, filepath.FromSlash(name))
	if path != dest && !strings.HasPrefix(path, dest+string(os.PathSeparator)) {
		return "", errors.New(errors.ErrCodeInvalidInput, "illegal path in bundle: %s", name)
	}
	return path, nil
}

func extractZip(src, dest string) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchive, err, "open zip %s", src)
	}
	defer r.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	for _, f := range r.File {
		path, err := securePath(dest, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, 0755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}
		if err := writeZipMember(f, path); err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "extract %s", f.Name)
		}
	}
	return nil
}

func writeZipMember(f *zip.File, path string) error {
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func extractTar(src, dest string) error {
	f, err := os.Open(src)
	if err != nil {
		return errors.Wrap(errors.ErrCodeArchive, err, "open bundle %s", src)
	}
	defer f.Close()

	dest, err = filepath.Abs(dest)
	if err != nil {
		return err
	}

	var r io.Reader = f
	switch {
	case hasSuffix(src, ".tar.gz", ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "read gzip stream")
		}
		defer gz.Close()
		r = gz
	case hasSuffix(src, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case hasSuffix(src, ".tar.xz"):
		xr, err := xz.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "read xz stream")
		}
		r = xr
	case hasSuffix(src, ".tar.zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "read zstd stream")
		}
		defer zr.Close()
		r = zr
	}

	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "read tar entry")
		}
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		path, err := securePath(dest, hdr.Name)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(path, os.FileMode(hdr.Mode)); err != nil {
				return err
			}
		case tar.TypeReg:
			out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return errors.Wrap(errors.ErrCodeArchive, err, "extract %s", hdr.Name)
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, path); err != nil && !os.IsExist(err) {
				return errors.Wrap(errors.ErrCodeArchive, err, "link %s", hdr.Name)
			}
		}
	}
}
