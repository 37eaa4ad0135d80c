package config

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an
// error. It returns the absolute path that was read, or "" if none was.
func LoadDotEnv(path string) (string, error) {
	if path == "" {
		path = ".env"
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if err := godotenv.Load(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("load %s: %w", abs, err)
	}
	return abs, nil
}
