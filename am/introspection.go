package am

import (
	"sort"

	"github.com/teranos/topclients/errors"
)

// ConfigSource represents where a configuration value came from
type ConfigSource string

const (
	SourceDefault     ConfigSource = "default"
	SourceSystem      ConfigSource = "system"      // /etc/topclients/am.toml
	SourceUser        ConfigSource = "user"        // ~/.topclients/am.toml
	SourceProject     ConfigSource = "project"     // am.toml found walking up from cwd
	SourceEnvironment ConfigSource = "environment" // TOPCLIENTS_* env vars
)

// SettingInfo contains metadata about a configuration setting
type SettingInfo struct {
	Key        string       `json:"key"`
	Value      interface{}  `json:"value"`
	Source     ConfigSource `json:"source"`
	SourcePath string       `json:"source_path,omitempty"` // file path or env var name
}

// GetConfigIntrospection returns every effective setting with the layer it
// came from, sorted by key.
func GetConfigIntrospection() ([]SettingInfo, error) {
	if _, err := Load(); err != nil {
		return nil, errors.Wrap(err, "failed to load config for introspection")
	}

	mu.Lock()
	defer mu.Unlock()
	v := initViper()

	keys := v.AllKeys()
	sort.Strings(keys)
	settings := make([]SettingInfo, 0, len(keys))
	for _, key := range keys {
		info, ok := ConfigSources[key]
		if !ok {
			info = SettingInfo{Key: key, Source: SourceDefault}
		}
		info.Value = v.Get(key)
		settings = append(settings, info)
	}
	return settings, nil
}
