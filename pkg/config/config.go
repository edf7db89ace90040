package config

import (
	"fmt"
	"io"
	"os"
	"os/user"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	configDir  string = "sbdap"
	configFile string = "config.yml"
)

// SourceMapRule rewrites a source path prefix. From is the prefix as it
// appears in the debug information, To is the local prefix.
type SourceMapRule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// SourceMapRules is an ordered list of rewrite rules, the first matching
// rule wins.
type SourceMapRules []SourceMapRule

// Config defines all configuration options available to be set through the config file.
type Config struct {
	// LibLLDB is the path of the engine shared library. The --liblldb flag
	// takes precedence.
	LibLLDB string `yaml:"liblldb,omitempty"`

	// Preload lists engine commands executed once before any session.
	Preload []string `yaml:"preload"`

	// Aliases for debug console commands.
	Aliases map[string][]string `yaml:"aliases"`

	// SourceMap is applied before the rules given in launch configurations.
	SourceMap SourceMapRules `yaml:"source-map"`

	// SourcePath lists fallback roots searched for sources that are not
	// found at their recorded location.
	SourcePath []string `yaml:"source-path"`

	// EvaluateTimeout bounds expression evaluation. Zero disables the limit.
	EvaluateTimeout time.Duration `yaml:"evaluate-timeout,omitempty"`

	// MaxChildren is the maximum number of children returned by a single
	// variables request that does not specify a count.
	MaxChildren *int `yaml:"max-children,omitempty"`

	// ExpressionLanguage is the default expression language: native,
	// simple or python.
	ExpressionLanguage string `yaml:"expression-language,omitempty"`
}

// LoadConfig attempts to populate a Config object from the config.yml file.
// Problems are reported on stderr; stdout may be the DAP channel.
func LoadConfig() *Config {
	err := createConfigPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not create config directory: %v.\n", err)
		return &Config{}
	}
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to get config file path: %v.\n", err)
		return &Config{}
	}

	f, err := os.Open(fullConfigFile)
	if err != nil {
		f, err = createDefaultConfig(fullConfigFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating default config file: %v\n", err)
			return &Config{}
		}
	}
	defer func() {
		err := f.Close()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Closing config file failed: %v.\n", err)
		}
	}()

	c, err := Read(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Unable to decode config file: %v.\n", err)
		return &Config{}
	}
	return c
}

// Read decodes a configuration from r.
func Read(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// SaveConfig will marshal and save the config struct
// to disk.
func SaveConfig(conf *Config) error {
	fullConfigFile, err := GetConfigFilePath(configFile)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(*conf)
	if err != nil {
		return err
	}

	f, err := os.Create(fullConfigFile)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(out)
	return err
}

func createDefaultConfig(path string) (*os.File, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("unable to create config file: %v", err)
	}
	err = writeDefaultConfig(f)
	if err != nil {
		return nil, fmt.Errorf("unable to write default configuration: %v", err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return f, nil
}

func writeDefaultConfig(f io.Writer) error {
	_, err := io.WriteString(f,
		`# Configuration file for the sbdap debug adapter.

# This is the default configuration file. Available options are provided, but disabled.
# Delete the leading hash mark to enable an item.

# Path of the LLDB shared library (overridden by --liblldb).
# liblldb: /usr/lib/llvm-17/lib/liblldb.so

# Engine commands executed before any debug session.
preload:
  # - settings set target.x86-disassembly-flavor intel

# Provided aliases will be added to the default aliases for a given
# debug console command.
aliases:
  # command: ["alias1", "alias2"]

# Rewrite source paths recorded in debug information. Rules from launch
# configurations are applied after these.
source-map:
  # - {from: /build/src, to: /home/me/src}

# Directories searched for sources missing from their recorded location.
source-path:
  # - /home/me/src

# Abort expression evaluations that take longer than this.
# evaluate-timeout: 5s

# Maximum number of children returned by one variables request.
# max-children: 1000

# Default expression language: native, simple or python.
# expression-language: native
`)
	return err
}

// createConfigPath creates the directory structure at which all config files are saved.
func createConfigPath() error {
	path, err := GetConfigFilePath("")
	if err != nil {
		return err
	}
	return os.MkdirAll(path, 0700)
}

// GetConfigFilePath gets the full path to the given config file name.
func GetConfigFilePath(file string) (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDir, file), nil
	}
	userHomeDir := "."
	usr, err := user.Current()
	if err == nil {
		userHomeDir = usr.HomeDir
	}
	return filepath.Join(userHomeDir, ".config", configDir, file), nil
}
