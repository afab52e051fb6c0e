// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Spoorlab

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultBaud, cfg.Baud)
	assert.False(t, cfg.Capture)
	assert.Equal(t, DefaultCaptureFile, cfg.CaptureFile)
	assert.False(t, cfg.Replay)
	assert.Equal(t, DefaultReportInterval, cfg.ReportInterval)
	assert.Equal(t, DefaultListen, cfg.Listen)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("LNMON_BAUD", "115200")
	t.Setenv("LNMON_CAPTURE_FILE", "evening-session.capture")
	t.Setenv("LNMON_REPORT_INTERVAL", "10s")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, 115200, cfg.Baud)
	assert.Equal(t, "evening-session.capture", cfg.CaptureFile)
	assert.Equal(t, 10*time.Second, cfg.ReportInterval)
}

func TestFlagsBeatEnvironment(t *testing.T) {
	t.Setenv("LNMON_PORT", "/dev/ttyUSB9")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("port", DefaultPort, "")
	require.NoError(t, flags.Set("port", "/dev/ttyUSB1"))

	cfg, err := Load(flags)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", cfg.Port)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "baud: 9600\nlisten: \":9090\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lnmon.yaml"), []byte(yaml), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, 9600, cfg.Baud)
	assert.Equal(t, ":9090", cfg.Listen)
}

func TestBrokenConfigFileFails(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lnmon.yaml"), []byte(":::"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	_, err = Load(nil)
	assert.Error(t, err)
}
