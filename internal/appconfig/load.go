package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// envBindings maps configuration keys to the environment variables the
// OpenWebUI plugin contract documents for them.
var envBindings = map[string]string{
	"flowiseUrl":    "FLOWISE_API_URL",
	"flowiseApiKey": "FLOWISE_API_KEY",
}

// SetDefaults registers the documented defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	def := Default()
	v.SetDefault("flowiseUrl", "")
	v.SetDefault("flowiseApiKey", "")
	v.SetDefault("enableStatusIndicator", def.EnableStatusIndicator)
	v.SetDefault("emitInterval", def.EmitInterval)
	v.SetDefault("timeout", def.TimeoutSeconds)
	v.SetDefault("debug", false)
	v.SetDefault("logFile", "")
	v.SetDefault("listen", def.Listen)
	v.SetDefault("serverApiKey", "")
	v.SetDefault("metrics", false)
	v.SetDefault("metricsFile", "")

	v.SetEnvPrefix("FLOWPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		_ = v.BindEnv(key, env, "FLOWPIPE_"+strings.ToUpper(key))
	}
}

// ReadFile reads the configuration file at path into v. A missing file is
// only an error when the caller asked for a path other than the default.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path == "" {
		path = DefaultConfigPath
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if path == DefaultConfigPath {
				return "", nil
			}
			return "", fmt.Errorf("no configuration file found at %q", path)
		}
		return "", fmt.Errorf("could not read config file %q: %w", path, err)
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("could not read config file %q: %w", path, err)
	}
	return path, nil
}

// FromViper materializes the merged viper state (flags > env > file > defaults).
func FromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ConfigPath = v.ConfigFileUsed()
	if cfg.TimeoutSeconds <= 0 {
		cfg.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}
	return cfg, nil
}

// Load builds a Config from defaults, the optional file at path and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	SetDefaults(v)
	if _, err := ReadFile(v, path); err != nil {
		return Config{}, err
	}
	return FromViper(v)
}
