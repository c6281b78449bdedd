package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:8000", "http://localhost:8000"},
		{"  http://app.test/  ", "http://app.test"},
		{"HTTPS://app.test", "HTTPS://app.test"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeURL(tt.in), tt.in)
	}
}

func TestRootCmdRejectsWrongArgCount(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"http://app.test"})
	cmd.SetOut(new(nopWriter))
	cmd.SetErr(new(nopWriter))
	assert.Error(t, cmd.Execute())
}

func TestLoadConfigFromFlagsAndArgs(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cmd := newRootCmd()
	require.NoError(t, cmd.Flags().Parse([]string{"--fail-on-timeout", "--nav-timeout", "3s", "--home", "/start"}))

	out := filepath.Join(dir, "shots")
	cfg, err := loadConfig(cmd, "", []string{"app.test/", out})
	require.NoError(t, err)

	assert.Equal(t, "http://app.test", cfg.Target.BaseURL)
	assert.Equal(t, out, cfg.Target.OutputDir)
	assert.Equal(t, "/start", cfg.Target.HomePath)
	assert.True(t, cfg.Crawl.FailOnTimeout)
	assert.Equal(t, 3*time.Second, cfg.Crawl.NavigationTimeout)
	assert.Equal(t, "test@test.ch", cfg.Login.Username)
}

func TestLoadConfigRejectsBadBase(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cmd := newRootCmd()
	_, err := loadConfig(cmd, "", []string{"http://", dir})
	assert.Error(t, err)
}

func TestRunFailsWhenOutputDirCannotBeCreated(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	cmd := newRootCmd()
	cfg, err := loadConfig(cmd, "", []string{"http://app.test", filepath.Join(blocker, "shots")})
	require.NoError(t, err)

	err = run(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "main: create output directory")
}

type nopWriter struct{}

func (*nopWriter) Write(p []byte) (int, error) { return len(p), nil }
