// Package config owns the project configuration file: model selection,
// the permission bypass flag, and the persisted permission grant list.
package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/viper"
)

// FileName is the project configuration file, looked up in the session
// working directory.
const FileName = ".keel.yaml"

// DefaultModel is used when the project does not configure one.
const DefaultModel = "claude-sonnet-4-5"

// Project is the persisted project configuration. AllowedTools is the
// sorted, deduplicated list of permission keys granted persistently; the
// permission gate only ever appends to it.
type Project struct {
	Model           string   `mapstructure:"model"`
	FallbackModel   string   `mapstructure:"fallbackModel"`
	SkipPermissions bool     `mapstructure:"skipPermissions"`
	AllowedTools    []string `mapstructure:"allowedTools"`

	mu   sync.Mutex
	path string
}

// Load reads the project configuration from dir. A missing file yields a
// default configuration bound to the same path, so the first Save creates
// it.
func Load(dir string) (*Project, error) {
	path := filepath.Join(dir, FileName)

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetDefault("model", DefaultModel)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	p := &Project{path: path}
	if err := v.Unmarshal(p); err != nil {
		return nil, err
	}
	p.normalizeAllowedTools()
	return p, nil
}

// Save writes the configuration back to its file.
func (p *Project) Save() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.save()
}

func (p *Project) save() error {
	v := viper.New()
	v.SetConfigFile(p.path)
	v.SetConfigType("yaml")
	v.Set("model", p.Model)
	v.Set("fallbackModel", p.FallbackModel)
	v.Set("skipPermissions", p.SkipPermissions)
	v.Set("allowedTools", p.AllowedTools)
	return v.WriteConfigAs(p.path)
}

// AddAllowedTool inserts a permission key into the persisted grant list,
// keeping it sorted and deduplicated, and saves the file. Existing keys
// are never removed here.
func (p *Project) AddAllowedTool(key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.SearchStrings(p.AllowedTools, key)
	if i < len(p.AllowedTools) && p.AllowedTools[i] == key {
		return nil
	}
	p.AllowedTools = append(p.AllowedTools, "")
	copy(p.AllowedTools[i+1:], p.AllowedTools[i:])
	p.AllowedTools[i] = key
	return p.save()
}

// IsAllowed reports whether a permission key has a persisted grant.
func (p *Project) IsAllowed(key string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := sort.SearchStrings(p.AllowedTools, key)
	return i < len(p.AllowedTools) && p.AllowedTools[i] == key
}

func (p *Project) normalizeAllowedTools() {
	sort.Strings(p.AllowedTools)
	deduped := p.AllowedTools[:0]
	var prev string
	for i, key := range p.AllowedTools {
		if i == 0 || key != prev {
			deduped = append(deduped, key)
		}
		prev = key
	}
	p.AllowedTools = deduped
}
