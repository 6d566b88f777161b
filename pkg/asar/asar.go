// Package asar reads and writes Electron asar archives: a single-file
// virtual filesystem of inlined members plus an ".unpacked" sibling
// directory for members the runtime must load via ordinary filesystem
// access (dynamic libraries cannot be dlopen'd out of the virtual FS).
//
// Extraction and packing prefer the pinned asar tool from the toolchain
// cache and fall back to the native Go codec when no tool is configured or
// the tool invocation fails.
package asar

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/execx"
)

// UnpackedDir returns the sibling directory holding externally-unpacked
// members of the given archive.
func UnpackedDir(archive string) string {
	return archive + ".unpacked"
}

// Archiver extracts and packs archives. With a Tool configured it shells out
// to the pinned executable first; the native codec is the fallback and the
// default.
type Archiver struct {
	Tool   string // pinned asar executable ("" = native codec only)
	Runner execx.Runner
	Logger *log.Logger
}

// NewArchiver creates an archiver. tool may be empty.
func NewArchiver(tool string, runner execx.Runner, logger *log.Logger) *Archiver {
	if runner == nil {
		runner = execx.NewLocal()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Archiver{Tool: tool, Runner: runner, Logger: logger}
}

// Extract unpacks archive into dest, materializing unpacked members from the
// archive's ".unpacked" sibling when that sibling exists.
func (a *Archiver) Extract(ctx context.Context, archive, dest string) error {
	if a.Tool != "" {
		_, err := a.Runner.Run(ctx, execx.Cmd{
			Path: a.Tool,
			Args: []string{"extract", archive, dest},
		})
		if err == nil {
			a.Logger.Debug("extracted with pinned tool", "archive", archive)
			return nil
		}
		a.Logger.Debug("pinned tool extract failed, using native codec", "err", err)
	}

	if err := extractNative(archive, dest); err != nil {
		return errors.Wrap(errors.ErrCodeArchive, err, "extract %s", archive)
	}
	return nil
}

// Pack archives the tree at dir into out. Members whose base name matches
// one of the unpack patterns are stored under out's ".unpacked" sibling
// instead of being inlined.
func (a *Archiver) Pack(ctx context.Context, dir, out string, unpack []string) error {
	if a.Tool != "" {
		args := []string{"pack", dir, out}
		if len(unpack) > 0 {
			args = append(args, "--unpack", braceSet(unpack))
		}
		_, err := a.Runner.Run(ctx, execx.Cmd{Path: a.Tool, Args: args})
		if err == nil {
			a.Logger.Debug("packed with pinned tool", "out", out)
			return nil
		}
		a.Logger.Debug("pinned tool pack failed, using native codec", "err", err)
	}

	if err := packNative(dir, out, unpack); err != nil {
		return errors.Wrap(errors.ErrCodeArchive, err, "pack %s", dir)
	}
	return nil
}

// List returns the slash-separated member paths of an archive, sorted.
// Unpacked members are listed like any other.
func List(archive string) ([]string, error) {
	f, err := os.Open(archive)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchive, err, "open %s", archive)
	}
	defer f.Close()

	idx, _, err := readIndex(f)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeArchive, err, "read %s", archive)
	}

	var names []string
	var walk func(prefix string, files map[string]*entry)
	walk = func(prefix string, files map[string]*entry) {
		for name, e := range files {
			full := name
			if prefix != "" {
				full = prefix + "/" + name
			}
			names = append(names, full)
			if e.isDir() {
				walk(full, e.Files)
			}
		}
	}
	walk("", idx.Files)
	sort.Strings(names)
	return names, nil
}

// braceSet renders patterns as a single brace-expansion glob understood by
// the asar CLI's --unpack flag.
func braceSet(patterns []string) string {
	if len(patterns) == 1 {
		return patterns[0]
	}
	return "{" + strings.Join(patterns, ",") + "}"
}

func extractNative(archive, dest string) error {
	f, err := os.Open(archive)
	if err != nil {
		return err
	}
	defer f.Close()

	idx, dataOffset, err := readIndex(f)
	if err != nil {
		return err
	}

	unpackedRoot := UnpackedDir(archive)
	if err := os.MkdirAll(dest, 0755); err != nil {
		return err
	}

	return extractTree(f, dataOffset, idx.Files, dest, unpackedRoot, "")
}

func extractTree(f *os.File, dataOffset int64, files map[string]*entry, dest, unpackedRoot, rel string) error {
	// Deterministic order keeps failures reproducible.
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !validName(name) {
			return fmt.Errorf("illegal member name %q", name)
		}
		e := files[name]
		memberRel := filepath.Join(rel, name)
		target := filepath.Join(dest, memberRel)

		switch {
		case e.isDir():
			if err := os.MkdirAll(target, 0755); err != nil {
				return err
			}
			if err := extractTree(f, dataOffset, e.Files, dest, unpackedRoot, memberRel); err != nil {
				return err
			}

		case e.isLink():
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return err
			}
			_ = os.Remove(target)
			if err := os.Symlink(e.Link, target); err != nil {
				return err
			}

		case e.Unpacked:
			// Best-effort: a missing unpacked sibling member is skipped,
			// not an error.
			src := filepath.Join(unpackedRoot, memberRel)
			if _, err := os.Stat(src); os.IsNotExist(err) {
				continue
			}
			if err := copyMember(src, target, e.Executable); err != nil {
				return err
			}

		default:
			offset, err := strconv.ParseInt(e.Offset, 10, 64)
			if err != nil {
				return fmt.Errorf("member %s: bad offset %q", memberRel, e.Offset)
			}
			if err := writeMember(f, dataOffset+offset, e.Size, target, e.Executable); err != nil {
				return fmt.Errorf("member %s: %w", memberRel, err)
			}
		}
	}
	return nil
}

func copyMember(src, dst string, executable bool) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	return writeMemberFrom(in, info.Size(), dst, executable)
}

func writeMember(f *os.File, offset, size int64, dst string, executable bool) error {
	return writeMemberFrom(io.NewSectionReader(f, offset, size), size, dst, executable)
}

func writeMemberFrom(r io.Reader, size int64, dst string, executable bool) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	mode := os.FileMode(0644)
	if executable {
		mode = 0755
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.CopyN(out, r, size); err != nil && err != io.EOF {
		out.Close()
		return err
	}
	return out.Close()
}

// packNative builds the archive in two passes over a sorted walk: the first
// assigns offsets and copies unpacked members out, the second streams the
// inlined contents in the same order the offsets were assigned.
func packNative(dir, out string, unpack []string) error {
	idx := &index{Files: map[string]*entry{}}
	var inlined []string // absolute paths, in offset order
	var offset int64

	unpackedRoot := UnpackedDir(out)
	// Stale siblings from a previous pack must not leak into this one.
	if err := os.RemoveAll(unpackedRoot); err != nil {
		return err
	}

	err := walkSorted(dir, "", func(rel string, info fs.FileInfo, path string) error {
		parent, name, err := placeEntry(idx, rel)
		if err != nil {
			return err
		}

		switch {
		case info.IsDir():
			parent[name] = &entry{Files: map[string]*entry{}}

		case info.Mode()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			parent[name] = &entry{Link: link}

		case info.Mode().IsRegular():
			e := &entry{
				Size:       info.Size(),
				Executable: info.Mode()&0111 != 0,
			}
			if matchesAny(name, unpack) {
				e.Unpacked = true
				if err := copyMember(path, filepath.Join(unpackedRoot, filepath.FromSlash(rel)), e.Executable); err != nil {
					return err
				}
			} else {
				e.Offset = strconv.FormatInt(offset, 10)
				offset += info.Size()
				inlined = append(inlined, path)
			}
			parent[name] = e
		}
		return nil
	})
	if err != nil {
		return err
	}

	f, err := os.Create(out)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := writeIndex(f, idx); err != nil {
		return err
	}

	for _, path := range inlined {
		in, err := os.Open(path)
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, in); err != nil {
			in.Close()
			return err
		}
		in.Close()
	}
	return f.Close()
}

// walkSorted visits every entry below dir (excluding dir itself) in sorted
// order, passing the slash-separated relative path.
func walkSorted(dir, rel string, fn func(rel string, info fs.FileInfo, path string) error) error {
	full := dir
	if rel != "" {
		full = filepath.Join(dir, filepath.FromSlash(rel))
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, d := range entries {
		childRel := d.Name()
		if rel != "" {
			childRel = rel + "/" + d.Name()
		}
		path := filepath.Join(dir, filepath.FromSlash(childRel))

		info, err := os.Lstat(path)
		if err != nil {
			return err
		}
		if err := fn(childRel, info, path); err != nil {
			return err
		}
		if info.IsDir() {
			if err := walkSorted(dir, childRel, fn); err != nil {
				return err
			}
		}
	}
	return nil
}

// placeEntry resolves the parent map for a slash-separated member path,
// returning the map and the final name component.
func placeEntry(idx *index, rel string) (map[string]*entry, string, error) {
	parts := strings.Split(rel, "/")
	files := idx.Files
	for _, part := range parts[:len(parts)-1] {
		e, ok := files[part]
		if !ok || !e.isDir() {
			return nil, "", fmt.Errorf("member %s: missing parent directory %s", rel, part)
		}
		files = e.Files
	}
	return files, parts[len(parts)-1], nil
}

func matchesAny(name string, patterns []string) bool {
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
