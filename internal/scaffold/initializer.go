// Package scaffold writes a starter graph file and control script.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/nadi/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Files created by Initialize, relative to the target directory.
const (
	GraphFile  = "nadi.yml"
	ScriptFile = "wire.jsonc"
)

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the starter files in dir.
// If force is true, existing files are overwritten.
func Initialize(dir string, force bool) error {
	if !force {
		if err := CheckExisting(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	for _, file := range files {
		path := filepath.Join(dir, file.Path)
		if err := os.WriteFile(path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	return validateCreatedFiles(dir)
}

// getTemplateFiles reads all template files
func getTemplateFiles() ([]FileInfo, error) {
	var files []FileInfo
	for _, f := range []struct{ template, path string }{
		{"templates/nadi.yml.tmpl", GraphFile},
		{"templates/wire.jsonc.tmpl", ScriptFile},
	} {
		content, err := templatesFS.ReadFile(f.template)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s template: %w", f.path, err)
		}
		files = append(files, FileInfo{Path: f.path, Content: content, Permissions: 0644})
	}
	return files, nil
}

// validateCreatedFiles checks that the written graph file loads cleanly
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, GraphFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", GraphFile, err)
	}
	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess(dir string) {
	fmt.Println("\n✅ Successfully initialized NADI graph!")
	fmt.Println("\nCreated:")
	fmt.Printf("  ✓ %s\n", filepath.Join(dir, GraphFile))
	fmt.Printf("  ✓ %s\n", filepath.Join(dir, ScriptFile))
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Check the graph: nadi validate -f %s\n", filepath.Join(dir, GraphFile))
	fmt.Printf("  2. Run it:          nadi run -f %s\n", filepath.Join(dir, GraphFile))
	fmt.Printf("  3. Reshape it:      nadi exec -f %s %s\n", filepath.Join(dir, GraphFile), filepath.Join(dir, ScriptFile))
}
