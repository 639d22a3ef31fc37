/*
	Package celled provides types, constants and functions that have no other
	dependencies and can be used by all packages within the repo.
*/
package celled

import (
	"fmt"
	"path/filepath"
)

const (
	Kilo = 1 << 10
	Mega = 1 << 20
	Giga = 1 << 30
)

// ConvertToAbsolute returns an absolute path, converting a relative path
// using the given directory.
func ConvertToAbsolute(path string, configDir string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	absPath := filepath.Join(configDir, path)
	absPath, err := filepath.Abs(absPath)
	if err != nil {
		return absPath, fmt.Errorf("could not get absolute path of %q: %v", path, err)
	}
	return absPath, nil
}
