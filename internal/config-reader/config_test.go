// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const exampleConfig = `
[siridb-server]
lis = ":9000"
backendlis = ":9010"
debuglis = "localhost:6078"
maxpkgsize = 1048576
debug = true
`

func TestReadConfigServer(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "siridb.toml")
	r.NoError(os.WriteFile(path, []byte(exampleConfig), 0600))

	cfg, ok := ReadConfigServer(path)
	r.True(ok)

	r.Equal(":9000", cfg.ListenAddress)
	r.Equal(":9010", cfg.BackendAddress)
	r.Equal("localhost:6078", cfg.MetricsAddress)
	r.Equal(uint(1048576), cfg.MaxPacketSize)
	r.True(bool(cfg.Debug))

	r.True(cfg.Has("lis"))
	r.True(cfg.Has("debug"))
	r.False(cfg.Has("wslis"), "absent keys must not count as present")
	r.Equal("", cfg.WebsocketAddress)
}

func TestReadConfigServerMissingFile(t *testing.T) {
	r := require.New(t)

	cfg, ok := ReadConfigServer(filepath.Join(t.TempDir(), "nope.toml"))
	r.False(ok)
	r.Equal("", cfg.ListenAddress)
}

func TestReadConfigServerMissingSection(t *testing.T) {
	r := require.New(t)

	path := filepath.Join(t.TempDir(), "siridb.toml")
	r.NoError(os.WriteFile(path, []byte("[other]\nlis = \":1\"\n"), 0600))

	cfg, ok := ReadConfigServer(path)
	r.True(ok)
	r.False(cfg.Has("lis"))
}
