// Package fetch downloads release artifacts into a persistent cache.
//
// Downloads are serialized per file with an advisory lock so concurrent
// invocations never corrupt a cache entry, written to a temporary name and
// renamed only when complete, and optionally verified against a BLAKE3
// checksum. A verified cached file is never downloaded again.
package fetch

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sys/unix"
	"lukechampine.com/blake3"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/httputil"
)

// Fetcher downloads files into Dir.
type Fetcher struct {
	Dir      string
	Client   *http.Client
	Logger   *log.Logger
	Progress bool // render a progress bar on stderr
}

// New creates a fetcher caching under dir. The HTTP client allows five
// minutes for a whole transfer; large runtime archives need the headroom.
func New(dir string, logger *log.Logger) *Fetcher {
	if logger == nil {
		logger = log.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSHandshakeTimeout = 30 * time.Second
	return &Fetcher{
		Dir: dir,
		Client: &http.Client{
			Transport: transport,
			Timeout:   300 * time.Second,
		},
		Logger: logger,
	}
}

// Fetch downloads rawURL into the cache and returns the local path. When
// checksum (hex BLAKE3) is non-empty, both cached and freshly downloaded
// files are verified against it; a cached file that fails verification is
// discarded and fetched again.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, checksum string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", errors.New(errors.ErrCodeInvalidInput, "invalid download URL %q", rawURL)
	}
	name := filepath.Base(u.Path)
	if name == "." || name == "/" {
		return "", errors.New(errors.ErrCodeInvalidInput, "cannot derive a file name from %q", rawURL)
	}

	if err := os.MkdirAll(f.Dir, 0755); err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "create download cache %s", f.Dir)
	}
	dest := filepath.Join(f.Dir, name)

	unlock, err := lock(dest + ".lock")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "lock download %s", name)
	}
	defer unlock()

	if _, err := os.Stat(dest); err == nil {
		if checksum == "" {
			f.Logger.Debug("using cached download", "file", dest)
			return dest, nil
		}
		if sum, err := Checksum(dest); err == nil && sum == checksum {
			f.Logger.Debug("using verified cached download", "file", dest)
			return dest, nil
		}
		f.Logger.Warn("cached download failed verification, refetching", "file", dest)
		if err := os.Remove(dest); err != nil {
			return "", errors.Wrap(errors.ErrCodeEnvironment, err, "discard stale download")
		}
	}

	f.Logger.Info("downloading", "url", rawURL)
	if err := f.download(ctx, rawURL, dest); err != nil {
		return "", err
	}

	if checksum != "" {
		sum, err := Checksum(dest)
		if err != nil {
			return "", err
		}
		if sum != checksum {
			os.Remove(dest)
			return "", errors.New(errors.ErrCodeChecksum,
				"checksum mismatch for %s: got %s, want %s", name, sum, checksum)
		}
	}
	return dest, nil
}

// download retrieves rawURL into dest, retrying transient failures. The
// body streams to a temporary name so an interrupted transfer never
// masquerades as a cached file.
func (f *Fetcher) download(ctx context.Context, rawURL, dest string) error {
	part := dest + ".part"
	err := httputil.RetryWithBackoff(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return err
		}
		resp, err := f.Client.Do(req)
		if err != nil {
			return &httputil.RetryableError{Err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return &httputil.RetryableError{Err: fmt.Errorf("server error: %s", resp.Status)}
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status: %s", resp.Status)
		}
		return f.write(part, resp)
	})
	if err != nil {
		os.Remove(part)
		return errors.Wrap(errors.ErrCodeNetwork, err, "download %s", rawURL)
	}
	if err := os.Rename(part, dest); err != nil {
		return errors.Wrap(errors.ErrCodeEnvironment, err, "finalize download")
	}
	return nil
}

func (f *Fetcher) write(part string, resp *http.Response) error {
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	defer out.Close()

	var w io.Writer = out
	if f.Progress && resp.ContentLength > 0 {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(part))
		defer bar.Close()
		w = io.MultiWriter(out, bar)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return &httputil.RetryableError{Err: err}
	}
	return out.Close()
}

// Checksum returns the hex BLAKE3 digest of the file at path.
func Checksum(path string) (string, error) {
	in, err := os.Open(path)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "open %s for checksum", path)
	}
	defer in.Close()

	h := blake3.New(32, nil)
	if _, err := io.Copy(h, in); err != nil {
		return "", errors.Wrap(errors.ErrCodeEnvironment, err, "read %s for checksum", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// lock takes an exclusive advisory lock on path, blocking until it is
// available. The returned function releases the lock and removes the file.
func lock(path string) (func(), error) {
	lf, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(lf.Fd()), unix.LOCK_EX); err != nil {
		lf.Close()
		return nil, err
	}
	return func() {
		unix.Flock(int(lf.Fd()), unix.LOCK_UN)
		lf.Close()
		os.Remove(path)
	}, nil
}
