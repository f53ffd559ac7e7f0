package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

const (
	configDir       string = "tdb"
	configDirHidden string = ".tdb"
	configFile      string = "config.yml"
)

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// Commands aliases.
	Aliases map[string][]string `yaml:"aliases"`

	// DisableASLR disables address space randomization of launched
	// targets, so that breakpoint addresses stay valid across runs.
	DisableASLR bool `yaml:"disable-aslr"`

	// Color used to highlight breakpoint hits (3/4 bit color codes as
	// defined here: https://en.wikipedia.org/wiki/ANSI_escape_code#Colors)
	HitColor int `yaml:"hit-color"`
}

const defaultConfig = `# Configuration file for the tdb debugger.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Provided aliases will be added to the default aliases for a given command.
aliases:
  # command: ["alias1", "alias2"]

# Uncomment the following line to launch targets with address space
# randomization disabled.
# disable-aslr: true

# Uncomment the following line and set your preferred ANSI foreground color
# for breakpoint hit notifications (if unset, default is 32, green).
# hit-color: 32
`

// LoadConfig reads config.yml, writing the default file first if there is
// none. Errors are printed and an empty Config is returned.
func LoadConfig() *Config {
	conf, err := readConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not load config: %v\n", err)
		return &Config{}
	}
	return conf
}

func readConfig() (*Config, error) {
	path, err := GetConfigFilePath(configFile)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("unable to create config directory: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		data = []byte(defaultConfig)
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("unable to write default configuration: %w", err)
		}
	case err != nil:
		return nil, err
	}

	var c Config
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return nil, fmt.Errorf("unable to decode %s: %w", path, err)
	}
	return &c, nil
}

// GetConfigFilePath gets the full path to the given config file name.
// $XDG_CONFIG_HOME/tdb is used when XDG_CONFIG_HOME is set, ~/.tdb
// otherwise.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, configDirHidden, file), nil
}
