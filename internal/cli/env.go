package cli

import (
	"os/exec"
	"runtime"

	"github.com/elrepack/elrepack/pkg/errors"
)

// electronArch maps the host architecture to Electron's release naming.
func electronArch() (string, error) {
	switch runtime.GOARCH {
	case "amd64":
		return "x64", nil
	case "arm64":
		return "arm64", nil
	default:
		return "", errors.New(errors.ErrCodeUnsupported,
			"unsupported architecture %s: Electron publishes Linux builds for x64 and arm64 only", runtime.GOARCH)
	}
}

// checkEnvironment verifies the host tools the pipeline shells out to.
// It runs before any state is touched so a missing tool never leaves a
// half-finished install behind.
func checkEnvironment() error {
	for _, tool := range []string{"node", "npm"} {
		if _, err := exec.LookPath(tool); err != nil {
			return errors.New(errors.ErrCodeEnvironment,
				"%s not found in PATH: install Node.js (e.g. from your distribution or https://nodejs.org) and retry", tool)
		}
	}
	return nil
}
