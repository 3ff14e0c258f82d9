package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lysyi3m/lazyfeed/app/database"
)

// Version is set at build time via -ldflags
var Version = "dev"

const appName = "lazyfeed"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

// AppDir returns the per-user directory holding the database and settings file.
func AppDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(dir, appName)
}

// SettingsPath returns the settings file named by opts, or the default one.
func SettingsPath(opts Options) string {
	return cmp.Or(opts.ConfigFile, filepath.Join(AppDir(), "config.yml"))
}

func defaults() *Cfg {
	dir := AppDir()
	return &Cfg{
		DBPath:         filepath.Join(dir, appName+".db"),
		Timeout:        30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		UserAgent:      fmt.Sprintf("%s/%s", appName, GetVersion()),
		Headers:        map[string]string{},
		Concurrency:    8,
		SortBy:         database.SortByPublishedAt,
		Port:           "8080",
		Version:        GetVersion(),
	}
}

// Load builds the configuration from defaults, the YAML settings file and the
// command-line options, in increasing order of precedence.
func Load(opts Options) (*Cfg, error) {
	c := defaults()

	explicitFile := opts.ConfigFile != ""
	c.ConfigFile = SettingsPath(opts)

	if err := c.applyFile(c.ConfigFile); err != nil {
		if !errors.Is(err, fs.ErrNotExist) || explicitFile {
			return nil, fmt.Errorf("failed to load settings file: %w", err)
		}
	}

	c.applyOptions(opts)

	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return c, nil
}

func (c *Cfg) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var f fileCfg
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if f.Client.Timeout != 0 {
		c.Timeout = time.Duration(f.Client.Timeout) * time.Second
	}
	if f.Client.ConnectTimeout != 0 {
		c.ConnectTimeout = time.Duration(f.Client.ConnectTimeout) * time.Second
	}
	c.UserAgent = cmp.Or(f.Client.UserAgent, c.UserAgent)
	maps.Copy(c.Headers, f.Client.Headers)

	c.DBPath = cmp.Or(f.App.DBPath, c.DBPath)
	if f.App.FetchContent != nil {
		c.FetchContent = *f.App.FetchContent
	}
	c.Concurrency = cmp.Or(f.App.Concurrency, c.Concurrency)
	if f.App.AutoSync != nil {
		c.AutoSync = *f.App.AutoSync
	}
	if f.App.SyncInterval != 0 {
		c.SyncInterval = time.Duration(f.App.SyncInterval) * time.Second
	}
	c.SortBy = cmp.Or(f.App.SortBy, c.SortBy)
	if f.App.SortAscending != nil {
		c.SortAscending = *f.App.SortAscending
	}
	c.Port = cmp.Or(f.App.Port, c.Port)

	return nil
}

func (c *Cfg) applyOptions(opts Options) {
	c.DBPath = cmp.Or(opts.DBPath, c.DBPath)
	if opts.Timeout != 0 {
		c.Timeout = time.Duration(opts.Timeout) * time.Second
	}
	if opts.ConnectTimeout != 0 {
		c.ConnectTimeout = time.Duration(opts.ConnectTimeout) * time.Second
	}
	c.UserAgent = cmp.Or(opts.UserAgent, c.UserAgent)
	c.FetchContent = c.FetchContent || opts.FetchContent
	c.Concurrency = cmp.Or(opts.Concurrency, c.Concurrency)
	c.SortBy = cmp.Or(opts.SortBy, c.SortBy)
	c.SortAscending = c.SortAscending || opts.Ascending
	c.AutoSync = c.AutoSync || opts.AutoSync
	if opts.SyncInterval != 0 {
		c.SyncInterval = time.Duration(opts.SyncInterval) * time.Second
	}
	c.Port = cmp.Or(opts.Port, c.Port)
	c.Debug = opts.Debug
}

func (c *Cfg) validate() error {
	nonNegative := map[string]time.Duration{
		"timeout":         c.Timeout,
		"connect timeout": c.ConnectTimeout,
		"sync interval":   c.SyncInterval,
	}
	for name, value := range nonNegative {
		if value < 0 {
			return fmt.Errorf("%s must be non-negative", name)
		}
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}

	switch c.SortBy {
	case database.SortByPublishedAt, database.SortByTitle, database.SortByReadStatus:
	default:
		return fmt.Errorf("unknown sort key: %s", c.SortBy)
	}

	if c.DBPath == "" {
		return fmt.Errorf("database path is required")
	}

	return nil
}
