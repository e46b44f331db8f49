// SPDX-FileCopyrightText: 2026 The SiriDB-Go Authors
//
// SPDX-License-Identifier: MIT

// Package config reads the siridb-server toml configuration.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	loglib "log"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/kit/log/level"
	"github.com/komkom/toml"

	"github.com/db4u/siridb-server/internal/testutils"
)

type ConfigBool bool

// ServerConfig is the [siridb-server] section of the config file.
type ServerConfig struct {
	ListenAddress    string `json:"lis,omitempty"`
	BackendAddress   string `json:"backendlis,omitempty"`
	WebsocketAddress string `json:"wslis,omitempty"`
	MetricsAddress   string `json:"debuglis,omitempty"`

	MaxPacketSize  uint `json:"maxpkgsize,omitempty"`
	ReadBufferSize uint `json:"readbuf,omitempty"`

	UserDBPath string `json:"userdb,omitempty"`

	Debug ConfigBool `json:"debug"`

	Presence map[string]interface{}
}

type wrappedConfig struct {
	Server ServerConfig `json:"siridb-server"`
}

// Has reports whether the config file actually named the flag, as opposed to
// the field merely having its zero value.
func (config ServerConfig) Has(flagname string) bool {
	_, ok := config.Presence[flagname]
	return ok
}

// ReadConfigServer loads the config at configPath. The second return is
// false when no file was found there.
func ReadConfigServer(configPath string) (ServerConfig, bool) {
	var conf wrappedConfig

	// setup logger if not yet setup (used for tests)
	log := testutils.NewRelativeTimeLogger(nil)

	data, err := os.ReadFile(configPath)
	if err != nil {
		level.Info(log).Log("event", "read config", "msg", "no config detected", "path", configPath)
		return conf.Server, false
	}

	level.Info(log).Log("event", "read config", "msg", "config detected", "path", configPath)

	// 1) first we unmarshal into struct for type checks
	decoder := json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	err = decoder.Decode(&conf)
	check(err, "decode into struct")

	// 2) then we unmarshal into a map for presence check (to make sure bools are treated correctly)
	presence := make(map[string]interface{})
	decoder = json.NewDecoder(toml.New(bytes.NewBuffer(data)))
	err = decoder.Decode(&presence)
	check(err, "decode into presence map")
	if presence["siridb-server"] != nil {
		conf.Server.Presence = presence["siridb-server"].(map[string]interface{})
	} else {
		level.Warn(log).Log("event", "read config", "msg", "no [siridb-server] section detected in config file - ignoring it", "path", configPath)
		conf.Server.Presence = make(map[string]interface{})
	}

	conf.Server.UserDBPath = expandPath(conf.Server.UserDBPath)

	return conf.Server, true
}

func check(err error, msg string) {
	if err != nil {
		loglib.Fatalln(fmt.Errorf("%s: %w", msg, err))
	}
}

// ensure the following type of path expansions take place:
// * ~/.siridb        => /home/<user>/.siridb
// * .siridb          => /home/<user>/.siridb
// * /stuff/.siridb   => /stuff/.siridb
func expandPath(p string) string {
	if p == "" {
		return p
	}

	home, err := os.UserHomeDir()
	if err != nil {
		loglib.Fatalln("could not get user home directory (os.UserHomeDir())")
	}

	if strings.HasPrefix(p, "~") {
		p = strings.Replace(p, "~", home, 1)
	}

	// not relative path, not absolute path =>
	// place relative to home dir "~/<here>"
	if !filepath.IsAbs(p) {
		p = filepath.Join(home, p)
	}

	return p
}

func (booly ConfigBool) MarshalJSON() ([]byte, error) {
	temp := (bool)(booly)
	b, err := json.Marshal(temp)
	return b, err
}

func (booly *ConfigBool) UnmarshalJSON(b []byte) error {
	// unmarshal into interface{} first, as a bool can't be unmarshaled into a string
	var v interface{}
	err := json.Unmarshal(b, &v)
	if err != nil {
		return fmt.Errorf("unmarshal config bool: %w", err)
	}

	var temp bool
	if val, ok := v.(bool); ok {
		temp = val
	} else if s, ok := v.(string); ok {
		temp = booleanIsTrue(s)
		if !temp {
			// catch strings that cause a false value, but which aren't boolish
			if s != "false" && s != "0" && s != "no" && s != "off" {
				return errors.New("non-boolean string found when unmarshaling boolish values")
			}
		}
	}
	*booly = (ConfigBool)(temp)

	return nil
}

func booleanIsTrue(s string) bool {
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
