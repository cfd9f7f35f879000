package source

import (
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"live-core/internal/config/schema"
	coreerrors "live-core/internal/core/errors"
)

// YAMLSource loads configuration from YAML files
type YAMLSource struct {
	paths []string
}

// NewYAMLSource creates a new YAMLSource with the specified file paths
func NewYAMLSource(paths ...string) *YAMLSource {
	return &YAMLSource{
		paths: paths,
	}
}

// Name returns the source name
func (s *YAMLSource) Name() string {
	return "yaml"
}

// Priority returns the source priority
func (s *YAMLSource) Priority() int {
	return PriorityYAML
}

// LoadInto loads YAML configuration into the config structure
// Files are loaded in order, later files override earlier ones; missing files are skipped
func (s *YAMLSource) LoadInto(cfg *schema.Root) error {
	for _, path := range s.paths {
		if path == "" {
			continue
		}
		expanded, err := expandPath(path)
		if err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeInvalidConfig, "failed to expand path %q", path)
		}

		data, err := os.ReadFile(expanded)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeInvalidConfig, "failed to read config file %q", expanded)
		}

		// Unmarshal over the current values so keys absent from the file keep lower-priority values
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return coreerrors.Wrapf(err, coreerrors.CodeInvalidConfig, "failed to parse YAML file %q", expanded)
		}
	}
	return nil
}

// FindConfigFile returns the explicit path if given, otherwise the first existing
// file among the standard locations for appType (server/client), or ""
func FindConfigFile(configFile string, appType string) string {
	if configFile != "" {
		if expanded, err := expandPath(configFile); err == nil {
			return expanded
		}
		return configFile
	}

	names := []string{"live.yaml", appType + ".yaml"}
	var searchPaths []string
	for _, name := range names {
		searchPaths = append(searchPaths, filepath.Join(".", name))
	}
	if execPath, err := os.Executable(); err == nil {
		for _, name := range names {
			searchPaths = append(searchPaths, filepath.Join(filepath.Dir(execPath), name))
		}
	}
	if homeDir, err := os.UserHomeDir(); err == nil {
		for _, name := range names {
			searchPaths = append(searchPaths, filepath.Join(homeDir, ".live", name))
		}
	}
	if appType == "server" {
		searchPaths = append(searchPaths, "/etc/live/live.yaml")
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// expandPath expands a leading ~ to the user home directory
func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(homeDir, path[1:])
	}
	return filepath.Clean(path), nil
}
