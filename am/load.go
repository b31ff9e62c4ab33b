package am

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"github.com/teranos/topclients/errors"
)

// EnvPrefix prefixes every environment override, e.g. TOPCLIENTS_PIPELINE_TOP_N.
const EnvPrefix = "TOPCLIENTS"

var (
	mu            sync.Mutex
	globalConfig  *Config
	viperInstance *viper.Viper
	// ConfigSources records which layer supplied each key during the last load.
	ConfigSources map[string]SettingInfo
)

// Load reads the configuration from every source, validates it, and
// caches the result.
func Load() (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	if globalConfig != nil {
		return globalConfig, nil
	}

	cfg, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	mu.Lock()
	defer mu.Unlock()
	return initViper()
}

// LoadWithViper loads and validates configuration from a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a single file on top of defaults,
// ignoring environment and other files.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}
	cfg, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", configPath)
	}
	return cfg, nil
}

// Reset clears the cached configuration (useful for testing and reload)
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	globalConfig = nil
	viperInstance = nil
	ConfigSources = nil
}

// initViper must be called with mu held.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)
	sources := defaultSources(v)
	mergeConfigFiles(v, sources)
	trackEnvSources(v, sources)

	ConfigSources = sources
	viperInstance = v
	return v
}

// UserConfigDir returns ~/.topclients.
func UserConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".topclients")
}

// configLayer is one candidate config file.
type configLayer struct {
	path   string
	source ConfigSource
}

func configLayers() []configLayer {
	layers := []configLayer{{path: "/etc/topclients/am.toml", source: SourceSystem}}
	if dir := UserConfigDir(); dir != "" {
		layers = append(layers, configLayer{path: filepath.Join(dir, "am.toml"), source: SourceUser})
	}
	if project := findProjectConfig(); project != "" {
		layers = append(layers, configLayer{path: project, source: SourceProject})
	}
	return layers
}

// findProjectConfig walks up from the working directory looking for am.toml.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, "am.toml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// mergeConfigFiles merges config files in precedence order, lowest first.
// Files merge below environment variables.
func mergeConfigFiles(v *viper.Viper, sources map[string]SettingInfo) {
	for _, layer := range configLayers() {
		if _, err := os.Stat(layer.path); err != nil {
			continue
		}
		fileViper := viper.New()
		fileViper.SetConfigFile(layer.path)
		fileViper.SetConfigType("toml")
		if err := fileViper.ReadInConfig(); err != nil {
			continue
		}
		if err := v.MergeConfigMap(fileViper.AllSettings()); err != nil {
			continue
		}
		for _, key := range fileViper.AllKeys() {
			sources[key] = SettingInfo{Key: key, Source: layer.source, SourcePath: layer.path}
		}
	}
}

// EnvVarName returns the environment variable that overrides key.
func EnvVarName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func defaultSources(v *viper.Viper) map[string]SettingInfo {
	sources := make(map[string]SettingInfo)
	for _, key := range v.AllKeys() {
		sources[key] = SettingInfo{Key: key, Source: SourceDefault}
	}
	return sources
}

func trackEnvSources(v *viper.Viper, sources map[string]SettingInfo) {
	for _, key := range v.AllKeys() {
		name := EnvVarName(key)
		if _, ok := os.LookupEnv(name); ok {
			sources[key] = SettingInfo{Key: key, Source: SourceEnvironment, SourcePath: name}
		}
	}
}

// GetDatabasePath returns the configured database path
func GetDatabasePath() (string, error) {
	config, err := Load()
	if err != nil {
		return "", err
	}
	return config.Database.Path, nil
}
