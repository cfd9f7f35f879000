package source

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"live-core/internal/config/schema"
	corelog "live-core/internal/core/log"
)

// DotEnvSource loads .env files into the process environment so that the
// EnvSource that follows it picks the values up. Variables already set in
// the environment are never overwritten.
type DotEnvSource struct {
	dirs   []string
	appEnv string
}

// NewDotEnvSource creates a new DotEnvSource searching dirs in order
func NewDotEnvSource(dirs []string, appEnv string) *DotEnvSource {
	return &DotEnvSource{
		dirs:   dirs,
		appEnv: appEnv,
	}
}

// Name returns the source name
func (s *DotEnvSource) Name() string {
	return "dotenv"
}

// Priority returns the source priority
func (s *DotEnvSource) Priority() int {
	return PriorityDotEnv
}

// LoadInto loads .env files; cfg itself is filled by the EnvSource
func (s *DotEnvSource) LoadInto(cfg *schema.Root) error {
	files := []string{".env", ".env.local"}
	if s.appEnv != "" {
		files = append(files, ".env."+s.appEnv, ".env."+s.appEnv+".local")
	}

	for _, dir := range s.dirs {
		for _, file := range files {
			path := filepath.Join(dir, file)
			if err := loadEnvFile(path); err != nil {
				corelog.Debugf("Config: failed to load %s: %v", path, err)
			}
		}
	}
	return nil
}

// loadEnvFile sets KEY=value pairs from path, skipping comments and keys already set
func loadEnvFile(path string) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := parseEnvLine(line)
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(key); set {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			corelog.Warnf("Config: failed to set %s from %s: %v", key, path, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	corelog.Debugf("Config: loaded env file %s", path)
	return nil
}

// parseEnvLine parses KEY=value, an optional "export " prefix and matching quotes
func parseEnvLine(line string) (key, value string, ok bool) {
	line = strings.TrimPrefix(line, "export ")
	key, value, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	key = strings.TrimSpace(key)
	value = strings.TrimSpace(value)
	if key == "" {
		return "", "", false
	}
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value, true
}

// FindDotEnvDirs returns the directories searched for .env files
func FindDotEnvDirs(configFile string) []string {
	var dirs []string
	if configFile != "" {
		if dir := filepath.Dir(configFile); dir != "" && dir != "." {
			dirs = append(dirs, dir)
		}
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	return dirs
}
