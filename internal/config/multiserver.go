package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// multiServerFile is the JSON shape of --multiServerConfig:
//
//	{"servers": [{"path": "/git", "stdio": "git-mcp"}, ...]}
type multiServerFile struct {
	Servers []multiServerEntry `mapstructure:"servers"`
}

type multiServerEntry struct {
	Path  string `mapstructure:"path"`
	Stdio string `mapstructure:"stdio"`
}

// LoadMultiServerConfig reads and validates the JSON file at path with
// viper, using the JSON config type since that is the wire format of
// --multiServerConfig.
func LoadMultiServerConfig(path string) ([]Binding, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read multi-server config %s: %w", path, err)
	}

	var parsed multiServerFile
	if err := v.Unmarshal(&parsed); err != nil {
		return nil, fmt.Errorf("parse multi-server config %s: %w", path, err)
	}

	if len(parsed.Servers) == 0 {
		return nil, errors.New("multi-server config: servers must not be empty")
	}

	bindings := make([]Binding, 0, len(parsed.Servers))
	for i, s := range parsed.Servers {
		if s.Path == "" {
			return nil, fmt.Errorf("multi-server config: servers[%d].path must not be empty", i)
		}
		if s.Stdio == "" {
			return nil, fmt.Errorf("multi-server config: servers[%d].stdio must not be empty", i)
		}
		prefix := s.Path
		if !strings.HasPrefix(prefix, "/") {
			prefix = "/" + prefix
		}
		bindings = append(bindings, Binding{
			Name:    strings.TrimPrefix(prefix, "/"),
			Prefix:  prefix,
			Command: s.Stdio,
		})
	}
	return bindings, nil
}
