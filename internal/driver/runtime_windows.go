//go:build windows

package driver

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// FindRuntime locates the vendor helper binary which bridges a hardware SDK. Besides PATH,
// the bin/<vendor>/windows/x64 folders next to the executable and the working directory are searched.
func FindRuntime(runtime string) (string, error) {
	if binPath, err := exec.LookPath(runtime); err == nil {
		return binPath, nil
	}

	lookup := []string{}

	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}

	lookup = append(lookup, filepath.Dir(exePath))

	exePath, err = os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %w", err)
	}

	lookup = append(lookup, exePath)

	for _, exeDir := range lookup {
		matches, err := filepath.Glob(filepath.Join(exeDir, "bin", "*", "windows", "x64", fmt.Sprintf("%s.exe", runtime)))
		if err != nil || len(matches) == 0 {
			continue // continue to next directory
		}

		binPath := matches[0]
		if _, err = os.Stat(binPath); err != nil {
			continue // continue to next directory
		}

		return binPath, nil
	}

	return "", NewConfigError(fmt.Sprintf("failed to find helper '%s'", runtime))
}
