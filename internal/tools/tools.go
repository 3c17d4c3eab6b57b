// Package tools holds small path/filesystem helpers shared by the CLI
// subcommands.
package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileExists reports whether path exists and is statable.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// ExpandPath resolves a leading "~" to the user's home directory and
// returns a clean absolute path.
func ExpandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}

		if path == "~" {
			path = home
		} else if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		} else {
			return "", fmt.Errorf("cannot expand user in path: %s", path)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	return filepath.Clean(abs), nil
}
