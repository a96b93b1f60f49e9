//go:build !windows

package driver

import (
	"errors"
	"fmt"
	"os/exec"
)

// FindRuntime locates the vendor helper binary which bridges a hardware SDK
func FindRuntime(runtime string) (string, error) {
	binPath, err := exec.LookPath(runtime)
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return "", WrapConfigError(fmt.Sprintf("helper '%s' not found in PATH", runtime), err)
		}
		return "", fmt.Errorf("locating helper '%s': %w", runtime, err)
	}

	return binPath, nil
}
