package cfg

import "time"

type Cfg struct {
	// Storage
	DBPath     string
	ConfigFile string

	// HTTP client
	Timeout        time.Duration
	ConnectTimeout time.Duration
	UserAgent      string
	Headers        map[string]string

	// Sync
	FetchContent bool
	Concurrency  int
	AutoSync     bool
	SyncInterval time.Duration

	// Read-side queries
	SortBy        string
	SortAscending bool

	// Headless server
	Port string

	Debug   bool
	Version string
}

// Options are the global command-line options. Every field is optional: zero values
// leave the settings file (or the built-in default) in charge.
type Options struct {
	DBPath         string `long:"db" env:"LAZYFEED_DB" description:"Path to the SQLite database file"`
	ConfigFile     string `long:"config" env:"LAZYFEED_CONFIG" description:"Path to the YAML settings file"`
	Timeout        int    `long:"timeout" env:"LAZYFEED_TIMEOUT" description:"HTTP request timeout in seconds"`
	ConnectTimeout int    `long:"connect-timeout" env:"LAZYFEED_CONNECT_TIMEOUT" description:"HTTP connect timeout in seconds"`
	UserAgent      string `long:"user-agent" env:"LAZYFEED_USER_AGENT" description:"User agent string for HTTP requests"`
	FetchContent   bool   `long:"fetch-content" env:"LAZYFEED_FETCH_CONTENT" description:"Fetch and store the full content of new entries"`
	Concurrency    int    `long:"concurrency" env:"LAZYFEED_CONCURRENCY" description:"Maximum number of feeds fetched in parallel"`
	SortBy         string `long:"sort-by" env:"LAZYFEED_SORT_BY" description:"Entry sort key (published_at, title, read_status)"`
	Ascending      bool   `long:"ascending" env:"LAZYFEED_ASCENDING" description:"Sort entries in ascending order"`
	AutoSync       bool   `long:"auto-sync" env:"LAZYFEED_AUTO_SYNC" description:"Run a sync pass on startup"`
	SyncInterval   int    `long:"sync-interval" env:"LAZYFEED_SYNC_INTERVAL" description:"Seconds between automatic sync passes (0 disables)"`
	Port           string `long:"port" env:"LAZYFEED_PORT" description:"HTTP port for the serve command"`
	Debug          bool   `long:"debug" env:"LAZYFEED_DEBUG" description:"Enable debug logging"`
}

type fileCfg struct {
	Client struct {
		Timeout        int               `yaml:"timeout"`
		ConnectTimeout int               `yaml:"connect_timeout"`
		UserAgent      string            `yaml:"user_agent"`
		Headers        map[string]string `yaml:"headers"`
	} `yaml:"client"`
	App struct {
		DBPath        string `yaml:"db_path"`
		FetchContent  *bool  `yaml:"fetch_content"`
		Concurrency   int    `yaml:"concurrency"`
		AutoSync      *bool  `yaml:"auto_sync"`
		SyncInterval  int    `yaml:"sync_interval"`
		SortBy        string `yaml:"sort_by"`
		SortAscending *bool  `yaml:"sort_ascending"`
		Port          string `yaml:"port"`
	} `yaml:"app"`
}
