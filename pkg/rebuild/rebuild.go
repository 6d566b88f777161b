// Package rebuild recompiles the native addons embedded in a foreign-platform
// application tree against a target Electron runtime's ABI.
//
// The embedded addon versions are read from the tree's own metadata, never
// assumed. Each (electron version, module versions) tuple owns one build
// directory under the cache root; a completed build is marked and reused
// byte-for-byte by later runs with the same key. Compilation happens in an
// isolated directory because the extracted application tree lacks the
// build-time sources npm would need.
package rebuild

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/elrepack/elrepack/pkg/errors"
	"github.com/elrepack/elrepack/pkg/execx"
	"github.com/elrepack/elrepack/pkg/fsutil"
	"github.com/elrepack/elrepack/pkg/npm"
)

// completeMarker is written only after a build fully succeeds. A build
// directory without it (an interrupted earlier run) is re-provisioned
// rather than trusted.
const completeMarker = ".complete"

// Rebuilder produces ABI-compatible native addon builds.
type Rebuilder struct {
	Root        string   // build cache root, e.g. ~/.cache/elrepack/builds
	NPM         *npm.Client
	RebuildTool string // pinned electron-rebuild executable
	Runner      execx.Runner
	Modules     []string // native addon package names to rebuild
	Logger      *log.Logger
}

// New creates a rebuilder for the given native modules.
func New(root string, client *npm.Client, rebuildTool string, runner execx.Runner, modules []string, logger *log.Logger) *Rebuilder {
	if client == nil {
		client = npm.NewClient(runner, logger)
	}
	if runner == nil {
		runner = execx.NewLocal()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Rebuilder{
		Root:        root,
		NPM:         client,
		RebuildTool: rebuildTool,
		Runner:      runner,
		Modules:     modules,
		Logger:      logger,
	}
}

// Build is a completed (or reused) native rebuild.
type Build struct {
	Dir      string            // the build-key directory
	Electron string            // target runtime version
	Versions map[string]string // module -> detected version
	Reused   bool              // true when a marked build was reused

	modules []string
}

// DetectVersions reads the declared version of every configured module from
// the source tree. Any unreadable version fails the whole detection; an
// unknown-version addon cannot be safely rebuilt.
func (r *Rebuilder) DetectVersions(srcTree string) (map[string]string, error) {
	versions := make(map[string]string, len(r.Modules))
	for _, mod := range r.Modules {
		v, err := npm.InstalledVersion(srcTree, mod)
		if err != nil {
			return nil, err
		}
		versions[mod] = v
	}
	return versions, nil
}

// Key derives the build directory name for a runtime version and a set of
// detected module versions. Identical tuples always map to the same
// directory; scoped module names are flattened for the filesystem.
func Key(electron string, versions map[string]string) string {
	parts := make([]string, 0, len(versions))
	for mod, ver := range versions {
		safe := strings.ReplaceAll(strings.TrimPrefix(mod, "@"), "/", "-")
		parts = append(parts, safe+"@"+ver)
	}
	sort.Strings(parts)
	return "electron-" + electron + "-" + strings.Join(parts, "-")
}

// Rebuild compiles the configured modules against the given Electron version
// and returns the build. The build directory is reused when a completed
// build with the same key exists.
func (r *Rebuilder) Rebuild(ctx context.Context, srcTree, electron string) (*Build, error) {
	versions, err := r.DetectVersions(srcTree)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(r.Root, Key(electron, versions))
	build := &Build{
		Dir:      dir,
		Electron: electron,
		Versions: versions,
		modules:  r.Modules,
	}

	if exists(filepath.Join(dir, completeMarker)) {
		r.Logger.Info("reusing native build", "dir", dir)
		build.Reused = true
		return build, nil
	}

	if exists(dir) {
		r.Logger.Debug("build directory exists without completion marker, re-provisioning", "dir", dir)
	}

	if err := r.provision(ctx, dir, electron, versions); err != nil {
		return nil, err
	}

	if err := os.WriteFile(filepath.Join(dir, completeMarker), []byte(electron+"\n"), 0644); err != nil {
		return nil, errors.Wrap(errors.ErrCodeBuild, err, "mark build complete")
	}

	return build, nil
}

// provision populates the build directory and compiles the addons. It is
// idempotent: re-running over a partial directory converges to the same
// state.
func (r *Rebuilder) provision(ctx context.Context, dir, electron string, versions map[string]string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeBuild, err, "create build directory %s", dir)
	}

	if err := npm.WriteManifest(dir, npm.Manifest{Name: "elrepack-rebuild", Private: true}); err != nil {
		return errors.Wrap(errors.ErrCodeBuild, err, "write build manifest")
	}

	// The runtime is a development-time dependency only; the addons must not
	// compile against the host toolchain during install, so scripts stay off.
	r.Logger.Info("installing target runtime", "electron", electron)
	res, err := r.NPM.Install(ctx, dir, []string{"electron@" + electron},
		npm.InstallOpts{SaveDev: true, SaveExact: true, IgnoreScripts: true})
	if err != nil {
		return errors.Wrap(errors.ErrCodeBuild, err, "install electron@%s: %s", electron, res.Output())
	}

	specs := make([]string, 0, len(versions))
	for mod, ver := range versions {
		specs = append(specs, mod+"@"+ver)
	}
	sort.Strings(specs)

	r.Logger.Info("installing native modules", "specs", specs)
	res, err = r.NPM.Install(ctx, dir, specs, npm.InstallOpts{SaveExact: true, IgnoreScripts: true})
	if err != nil {
		return errors.Wrap(errors.ErrCodeBuild, err, "install native modules: %s", res.Output())
	}

	// Force recompilation against the target ABI even if prebuilt binaries
	// were fetched.
	r.Logger.Info("rebuilding addons against target ABI", "electron", electron)
	res, err = r.Runner.Run(ctx, execx.Cmd{
		Path: r.RebuildTool,
		Args: []string{"--force", "--version", electron},
		Dir:  dir,
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeBuild, err, "electron-rebuild failed: %s", res.Output())
	}

	return nil
}

// InstallInto copies the rebuilt module directories into the destination
// tree, overwriting whatever versions are present there.
func (b *Build) InstallInto(destTree string) error {
	for _, mod := range b.modules {
		src := npm.ModuleDir(b.Dir, mod)
		if !exists(src) {
			return errors.New(errors.ErrCodeBuild, "build %s is missing module %s", b.Dir, mod)
		}
		dst := npm.ModuleDir(destTree, mod)
		if err := fsutil.ReplaceDir(src, dst); err != nil {
			return errors.Wrap(errors.ErrCodeBuild, err, "install %s into %s", mod, destTree)
		}
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}
