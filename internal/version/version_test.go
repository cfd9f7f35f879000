package version

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReadVersionFromFile(t *testing.T) {
	dir := t.TempDir()
	missing := filepath.Join(dir, "missing")
	file := filepath.Join(dir, "VERSION")
	assert.NoError(t, os.WriteFile(file, []byte("v1.4.2\n"), 0o644))

	assert.Equal(t, "1.4.2", readVersionFromFile(missing, file))
	assert.Equal(t, "dev", readVersionFromFile(missing))
}

func TestGetVersion(t *testing.T) {
	oldVersion, oldBuild, oldCommit := Version, BuildTime, GitCommit
	defer func() { Version, BuildTime, GitCommit = oldVersion, oldBuild, oldCommit }()

	Version, BuildTime, GitCommit = "1.0.0", "", ""
	assert.Equal(t, "v1.0.0", GetVersion())

	BuildTime, GitCommit = "2026-01-01", "abc"
	assert.Equal(t, "v1.0.0 (built 2026-01-01) commit abc", GetVersion())

	GitCommit = "0123456789abcdef"
	assert.Equal(t, "v1.0.0 (built 2026-01-01) commit 01234567", GetVersion())
	assert.Equal(t, "v1.0.0", GetInfo().Version)
}
