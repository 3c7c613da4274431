package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config contains all of the configuration options available to the server.
// The file itself is produced by the first-run setup tool, so the top-level
// key names are part of that contract and cannot change.
type Config struct {
	// Hostname or IP address on which the server will listen for connections.
	HostAddress string `mapstructure:"hostAddress"`
	// TCP port on which the server will listen.
	HostPort int `mapstructure:"hostPort"`
	// Interval in seconds between world snapshot broadcasts.
	UpdateInterval float64 `mapstructure:"updateInterval"`
	// Maximum number of concurrent connections the server will allow (0 = unlimited).
	MaxConnections int `mapstructure:"maxConnections"`
	// Path to the JSON file in which the IP ban list is persisted.
	BannedIPsFile string `mapstructure:"bannedIPsFile"`
	// Path to the banned word list consumed by the chat filter.
	ChatFilterFile string `mapstructure:"chatFilterFile"`

	Logging struct {
		// Minimum level of a log required to be written. Options: debug, info, warn, error
		LogLevel string `mapstructure:"log_level"`
		// Full path to file to which logs will be written. Blank will write to stdout.
		LogFilePath string `mapstructure:"log_file_path"`
		// Whether or not to include the caller in log lines.
		IncludeCaller bool `mapstructure:"include_caller"`
	} `mapstructure:"logging"`
}

const envVarPrefix = "TFSMP"

// LoadConfig initializes Viper with the contents of the config file under configPath.
func LoadConfig(configPath string) (*Config, error) {
	viper.AddConfigPath(configPath)
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("hostAddress", "0.0.0.0")
	viper.SetDefault("updateInterval", 0.05)
	viper.SetDefault("bannedIPsFile", "banned_ips.json")
	viper.SetDefault("chatFilterFile", "chatfilter.txt")
	viper.SetDefault("logging.log_level", "info")

	viper.SetEnvPrefix(envVarPrefix)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file in path %s: %w", configPath, err)
	}

	// This allows us to set nested config options through environment
	// variables. For example, logging.log_level can be set using
	// <envVarPrefix>_LOGGING_LOG_LEVEL.
	for _, k := range viper.AllKeys() {
		envVar := strings.ReplaceAll(strings.ToUpper(k), ".", "_")
		if err := viper.BindEnv(k, envVarPrefix+"_"+envVar); err != nil {
			return nil, fmt.Errorf("binding %s to %s: %w", k, envVarPrefix+"_"+envVar, err)
		}
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config object: %w", err)
	}
	return config, nil
}

// ListenAddress returns the host:port pair the server should bind to.
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.HostAddress, c.HostPort)
}

// BroadcastInterval returns updateInterval as a time.Duration.
func (c *Config) BroadcastInterval() time.Duration {
	return time.Duration(c.UpdateInterval * float64(time.Second))
}
