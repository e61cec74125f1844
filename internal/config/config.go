// Package config locates, loads and persists the TOML configuration document.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/env"
	"github.com/acquisitionist/coursectl/internal/utils"
	"github.com/adrg/xdg"
	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// Config related constants
const (
	EnvPrefix      = "COURSECTL"
	AppName        = "coursectl"
	configFileName = "config"
	configFileType = "toml"

	GlobalTable = "global"
)

// executableDir is swapped in tests.
var executableDir = func() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.Dir(exe), nil
}

// Document is the parsed configuration file: table name to table.
type Document map[string]any

// Table returns a copy of the named table, or nil when it is absent.
func (d Document) Table(name string) (map[string]any, error) {
	v, ok := d[name]
	if !ok {
		return nil, nil
	}
	table, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: [%s] must be a table, got %T", c.ErrInvalidField, name, v)
	}
	out := make(map[string]any, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out, nil
}

// Set stores value under table.key, creating the table when needed.
func (d Document) Set(table, key string, value any) error {
	v, ok := d[table]
	if !ok {
		d[table] = map[string]any{key: value}
		return nil
	}
	t, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("%w: [%s] must be a table, got %T", c.ErrInvalidField, table, v)
	}
	t[key] = value
	return nil
}

// Locator finds the configuration file
type Locator struct {
	fs      afero.Fs
	env     *env.Getter
	workdir string
}

// NewLocator creates a locator resolving relative paths against workdir.
func NewLocator(fs afero.Fs, workdir string) *Locator {
	return &Locator{
		fs:      fs,
		env:     env.New(EnvPrefix),
		workdir: workdir,
	}
}

// Locate returns the absolute path of the config file. An explicit path
// (flag, then $COURSECTL_CONFIG) must exist; otherwise the working directory,
// the executable's directory and the XDG config directory are searched.
func (l *Locator) Locate(explicitPath string) (string, error) {
	if explicitPath == "" {
		explicitPath = l.env.GetString("CONFIG", "")
	}
	if explicitPath != "" {
		path := utils.AbsPath(l.workdir, explicitPath)
		exists, err := afero.Exists(l.fs, path)
		if err != nil {
			return "", fmt.Errorf("checking config file: %w", err)
		}
		if !exists {
			return "", fmt.Errorf("%w: %s", c.ErrConfigMissing, path)
		}
		return path, nil
	}

	path, err := l.search()
	if err != nil {
		return "", err
	}

	// Viper only validates the file here; the document itself is decoded by
	// Load so that tables keep their original key case.
	v := viper.New()
	v.SetFs(l.fs)
	v.SetConfigFile(path)
	v.SetConfigType(configFileType)
	if err := v.ReadInConfig(); err != nil {
		var parseErr viper.ConfigParseError
		if errors.As(err, &parseErr) {
			return "", fmt.Errorf("%w: %v", c.ErrConfigParse, parseErr)
		}
		return "", fmt.Errorf("reading config file: %w", err)
	}

	return v.ConfigFileUsed(), nil
}

// search returns the first search path holding a regular file named exactly
// config.toml. Siblings such as config.json are never considered.
func (l *Locator) search() (string, error) {
	paths := l.searchPaths()
	for _, dir := range paths {
		path := filepath.Join(dir, configFileName+"."+configFileType)
		info, err := l.fs.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return "", fmt.Errorf("%w: checking %s: %v", c.ErrFilesystem, path, err)
		}
		if info.Mode().IsRegular() {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: searched %v", c.ErrConfigMissing, paths)
}

func (l *Locator) searchPaths() []string {
	paths := []string{l.workdir}
	if dir, err := executableDir(); err == nil && dir != l.workdir {
		paths = append(paths, dir)
	}
	return append(paths, filepath.Join(xdg.ConfigHome, AppName))
}

// Load reads and parses the document at path.
func Load(fs afero.Fs, path string) (Document, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", c.ErrConfigMissing, path)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	doc := Document{}
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", c.ErrConfigParse, path, err)
	}

	log.Debug().Str("path", path).Int("tables", len(doc)).Msg("Loaded config")
	return doc, nil
}

// Save replaces the file at path with doc as a whole, via temp file and rename.
func Save(fs afero.Fs, path string, doc Document) error {
	data, err := toml.Marshal(map[string]any(doc))
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, err := fs.Stat(path); err == nil {
		perm = info.Mode().Perm()
	}

	if err := utils.WriteFileAtomic(fs, path, data, perm); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
