package scanner

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
)

// Scanner scans directories for .eml files
type Scanner struct {
	rootPath string
}

// NewScanner creates a new scanner for the given root path
func NewScanner(rootPath string) *Scanner {
	return &Scanner{rootPath: rootPath}
}

// GetRootPath returns the root path for resolving relative paths
func (s *Scanner) GetRootPath() string {
	return s.rootPath
}

// Resolve turns a path returned by Scan back into a filesystem path
func (s *Scanner) Resolve(relPath string) string {
	return filepath.Join(s.rootPath, filepath.FromSlash(relPath))
}

func isEML(d fs.DirEntry) bool {
	return !d.IsDir() && strings.EqualFold(filepath.Ext(d.Name()), ".eml")
}

// Scan recursively scans for .eml files and returns paths relative to the
// root, with forward slashes, in lexical order.
func (s *Scanner) Scan() ([]string, error) {
	absRoot, err := filepath.Abs(s.rootPath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute root path: %w", err)
	}

	var emlFiles []string
	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !isEML(d) {
			return nil
		}

		relPath, err := filepath.Rel(absRoot, path)
		if err != nil {
			return fmt.Errorf("failed to get relative path for %s: %w", path, err)
		}
		emlFiles = append(emlFiles, filepath.ToSlash(relPath))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	return emlFiles, nil
}

// ScanWithCallback scans for .eml files and calls the callback for each file found
func (s *Scanner) ScanWithCallback(callback func(path string, index, total int) error) error {
	files, err := s.Scan()
	if err != nil {
		return err
	}

	total := len(files)
	for i, file := range files {
		if err := callback(file, i+1, total); err != nil {
			return fmt.Errorf("callback error for file %s: %w", file, err)
		}
	}
	return nil
}

// CountEMLFiles counts the .eml files under the root
func (s *Scanner) CountEMLFiles() (int, error) {
	count := 0
	err := filepath.WalkDir(s.rootPath, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if isEML(d) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count files: %w", err)
	}
	return count, nil
}
