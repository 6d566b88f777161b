// Package patcher drives the core repack pipeline for one application
// archive: extract, normalize, strip foreign members, swap in native builds
// for the local platform, and repack.
package patcher

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/elrepack/elrepack/pkg/asar"
	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/fsutil"
	"github.com/elrepack/elrepack/pkg/rebuild"
)

// StripSpec names the foreign-platform members removed from the extracted
// tree. Both lists are best effort: members that are already absent are
// skipped, so stripping is idempotent.
type StripSpec struct {
	// Packages are directory names removed from under node_modules,
	// e.g. platform-only dependencies that never run here.
	Packages []string
	// Globs are base-name patterns removed recursively from the whole
	// tree, e.g. compiled binaries built for the wrong ABI.
	Globs []string
}

// DefaultStrip removes members that only make sense on other platforms.
func DefaultStrip() StripSpec {
	return StripSpec{
		Packages: []string{"fsevents"},
		Globs:    []string{"*.dll", "*.pdb", "*.exe"},
	}
}

// DefaultUnpackPatterns are the member names that must live outside the
// archive file so the runtime can load them directly from disk.
func DefaultUnpackPatterns() []string {
	return []string{"*.node", "*.so", "*.so.*", "*.dll", "*.dylib"}
}

// Patcher repacks one archive for the local platform.
type Patcher struct {
	Asar            *asar.Archiver
	Rebuilder       *rebuild.Rebuilder
	ElectronVersion string
	Strip           StripSpec
	UnpackPatterns  []string
	WorkDir         string // per-run scratch directory
	Logger          *log.Logger
}

// New creates a patcher with the default strip and unpack rules.
func New(archiver *asar.Archiver, rebuilder *rebuild.Rebuilder, electron, workDir string, logger *log.Logger) *Patcher {
	if logger == nil {
		logger = log.Default()
	}
	return &Patcher{
		Asar:            archiver,
		Rebuilder:       rebuilder,
		ElectronVersion: electron,
		Strip:           DefaultStrip(),
		UnpackPatterns:  DefaultUnpackPatterns(),
		WorkDir:         workDir,
		Logger:          logger,
	}
}

// Patch rebuilds archivePath for the local platform and returns the path of
// the repacked archive inside the scratch directory. The input archive and
// its unpacked sibling are never modified.
func (p *Patcher) Patch(ctx context.Context, archivePath string) (string, error) {
	tree := filepath.Join(p.WorkDir, "app")

	p.Logger.Info("extracting archive", "archive", archivePath)
	if err := p.Asar.Extract(ctx, archivePath, tree); err != nil {
		return "", err
	}

	// Members the distributor left outside the archive belong back in the
	// tree before stripping and rebuilding. Extraction already placed the
	// indexed unpacked members; the merge catches sibling files the index
	// does not reference, and never overwrites an extracted member.
	if err := fsutil.MergeDir(asar.UnpackedDir(archivePath), tree); err != nil {
		return "", errors.Wrap(errors.ErrCodeArchive, err, "merge unpacked sibling")
	}

	if err := p.strip(tree); err != nil {
		return "", err
	}

	build, err := p.Rebuilder.Rebuild(ctx, tree, p.ElectronVersion)
	if err != nil {
		return "", err
	}
	if err := build.InstallInto(tree); err != nil {
		return "", err
	}

	out := filepath.Join(p.WorkDir, "app.asar")
	p.Logger.Info("repacking archive", "out", out)
	if err := p.Asar.Pack(ctx, tree, out, p.UnpackPatterns); err != nil {
		return "", err
	}
	return out, nil
}

// strip removes foreign-platform members from the extracted tree.
func (p *Patcher) strip(tree string) error {
	for _, pkg := range p.Strip.Packages {
		dir := filepath.Join(tree, "node_modules", filepath.FromSlash(pkg))
		if err := os.RemoveAll(dir); err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "strip package %s", pkg)
		}
	}
	if len(p.Strip.Globs) > 0 {
		n, err := fsutil.RemoveMatching(tree, p.Strip.Globs)
		if err != nil {
			return errors.Wrap(errors.ErrCodeArchive, err, "strip binaries")
		}
		if n > 0 {
			p.Logger.Debug("stripped foreign binaries", "count", n)
		}
	}
	return nil
}
