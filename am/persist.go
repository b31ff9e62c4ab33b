package am

import (
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/logger"
)

// UserConfigPath returns ~/.topclients/am.toml, the file SetValue writes by default.
func UserConfigPath() string {
	dir := UserConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "am.toml")
}

// SetValue sets one dotted key (e.g. "pipeline.top_n") in the TOML file at
// configPath and rewrites it. The raw value is parsed to the key's default
// type, and the edited file must still validate before anything is written.
// The previous file is kept in rotating .back1..3 backups.
func SetValue(configPath, key, raw string) error {
	defaults := viper.New()
	SetDefaults(defaults)
	key = strings.ToLower(key)
	if !slices.Contains(defaults.AllKeys(), key) {
		return errors.NewInvalidRequestError("unknown config key %q", key)
	}
	value, err := parseValue(defaults.Get(key), raw)
	if err != nil {
		return errors.Wrapf(err, "value for %s", key)
	}

	config, err := readTOMLMap(configPath)
	if err != nil {
		return err
	}
	setNested(config, strings.Split(key, "."), value)

	data, err := toml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, "failed to marshal config")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}
	tmp, err := os.CreateTemp(filepath.Dir(configPath), ".am-*.toml")
	if err != nil {
		return errors.Wrap(err, "failed to create temp config")
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrap(err, "failed to write temp config")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to write temp config")
	}
	if _, err := LoadFromFile(tmp.Name()); err != nil {
		return errors.Wrapf(err, "refusing to write %s", key)
	}

	if err := createBackup(configPath); err != nil {
		return errors.Wrap(err, "failed to create backup")
	}

	// the watcher must not treat our own write as an external edit
	if w := GetGlobalWatcher(); w != nil {
		w.MarkOwnWrite()
	}
	if err := os.Rename(tmp.Name(), configPath); err != nil {
		return errors.Wrap(err, "failed to replace config")
	}

	logger.Infow("Config value updated", "key", key, "value", value, "path", configPath)
	return nil
}

func parseValue(def interface{}, raw string) (interface{}, error) {
	switch def.(type) {
	case int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errors.NewInvalidRequestError("expected an integer, got %q", raw)
		}
		return n, nil
	case float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errors.NewInvalidRequestError("expected a number, got %q", raw)
		}
		return f, nil
	case bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.NewInvalidRequestError("expected true or false, got %q", raw)
		}
		return b, nil
	default:
		return raw, nil
	}
}

func readTOMLMap(configPath string) (map[string]interface{}, error) {
	config := make(map[string]interface{})
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s", configPath)
	}
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %s", configPath)
	}
	return config, nil
}

func setNested(m map[string]interface{}, path []string, value interface{}) {
	for _, part := range path[:len(path)-1] {
		child, ok := m[part].(map[string]interface{})
		if !ok {
			child = make(map[string]interface{})
			m[part] = child
		}
		m = child
	}
	m[path[len(path)-1]] = value
}

// createBackup creates rotating backups (.back1, .back2, .back3) before modifying config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		logger.Warnw("Failed to delete old config backup", "path", back3, "error", err)
	}
	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}
	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}
	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}
	return nil
}
