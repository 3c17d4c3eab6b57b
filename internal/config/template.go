package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/snapwatch/snapwatch/internal/store"
)

const templateYAML = `# snapwatch configuration
source: storybook

storybook:
  url: http://localhost:6006

viewports:
  desktop:
    width: 1280
    height: 800
  mobile:
    width: 375
    height: 667

parallel: 4

screenshot:
  kind: stable
  stability_attempts: 3
  stability_delay_ms: 100

diff:
  threshold: 0.01
`

const gitignoreContents = store.CurrentDir + "/\n" + store.DifferenceDir + "/\n"

// Exists reports whether snapwatch.yaml already exists in dir.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, FileName))
	return err == nil
}

// WriteTemplate writes a starter snapwatch.yaml into dir, refusing to
// overwrite an existing one.
func WriteTemplate(dir string) error {
	if Exists(dir) {
		return fmt.Errorf("%s already exists", FileName)
	}
	return os.WriteFile(filepath.Join(dir, FileName), []byte(templateYAML), 0o644)
}

// WriteGitignore writes a .gitignore under the snapshot store root that
// excludes current/ and difference/ (ephemeral output) but not
// reference/ (the committed baseline).
func WriteGitignore(dir string) error {
	storeDir := filepath.Join(dir, store.BaseDir)
	if err := os.MkdirAll(storeDir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(storeDir, ".gitignore"), []byte(gitignoreContents), 0o644)
}
