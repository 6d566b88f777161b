package npm

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/elrepack/elrepack/pkg/errors"
)

// Manifest models the subset of package.json this tool writes when declaring
// an installation root. Overrides, when present, pin a transitive dependency
// away from a known-incompatible release line.
type Manifest struct {
	Name      string            `json:"name"`
	Version   string            `json:"version,omitempty"`
	Private   bool              `json:"private"`
	Overrides map[string]string `json:"overrides,omitempty"`
}

// WriteManifest writes m as package.json inside dir, replacing any previous
// manifest. Discarding an override policy is exactly this: rewriting the
// manifest without the Overrides block.
func WriteManifest(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(filepath.Join(dir, "package.json"), data, 0644)
}

// Package models the subset of package.json read back from installed or
// embedded module trees.
type Package struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
	Overrides       map[string]string `json:"overrides"`
}

// ReadPackage parses the package.json at path.
func ReadPackage(path string) (*Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pkg Package
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

// InstalledVersion reads the declared version of module from the node_modules
// tree rooted at tree. The metadata was embedded by a third party and must be
// read, never assumed: any failure here is a detection error, distinct from a
// later build failure.
func InstalledVersion(tree, module string) (string, error) {
	if err := errors.ValidateModuleName(module); err != nil {
		return "", err
	}

	path := filepath.Join(tree, "node_modules", filepath.FromSlash(module), "package.json")
	pkg, err := ReadPackage(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.New(errors.ErrCodeDetection,
				"module %s not present in source tree %s", module, tree)
		}
		return "", errors.Wrap(errors.ErrCodeDetection, err,
			"cannot read metadata of module %s", module)
	}

	if err := errors.ValidateVersion(pkg.Version); err != nil {
		return "", errors.Wrap(errors.ErrCodeDetection, err,
			"module %s declares no usable version", module)
	}
	return pkg.Version, nil
}
