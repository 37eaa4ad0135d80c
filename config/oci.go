package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/oracle/oci-go-sdk/v65/common"
)

// DefaultOCIConfigFile is where the OCI CLI writes its config.
const DefaultOCIConfigFile = "~/.oci/config"

// LoadOCIConfig loads the OCI configuration from the specified config file path
func LoadOCIConfig(configFilePath, profile string) (common.ConfigurationProvider, error) {
	if configFilePath == "" {
		configFilePath = DefaultOCIConfigFile
	}
	if profile == "" {
		profile = "DEFAULT"
	}
	path, err := expandHome(configFilePath)
	if err != nil {
		return nil, err
	}

	// Ensure the config file exists and is valid
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("oci config file %s: %w", path, err)
	}

	slog.Debug("loading OCI config", "path", path, "profile", profile)
	provider, err := common.ConfigurationProviderFromFileWithProfile(path, profile, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load config from file: %w", err)
	}
	return provider, nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
