package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting checks if the starter files already exist in dir
// Returns an error if they do, nil otherwise
func CheckExisting(dir string) error {
	var existingFiles []string
	for _, name := range []string{GraphFile, ScriptFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			existingFiles = append(existingFiles, name)
		}
	}

	if len(existingFiles) > 0 {
		errMsg := "graph already initialized\n\nFound existing"
		if len(existingFiles) == 1 {
			errMsg += fmt.Sprintf(": %s", existingFiles[0])
		} else {
			errMsg += " files:\n"
			for _, file := range existingFiles {
				errMsg += fmt.Sprintf("  - %s\n", file)
			}
		}
		errMsg += "\nUse 'nadi init --force' to reinitialize (this will overwrite existing files)"

		return fmt.Errorf("%s", errMsg)
	}

	return nil
}
