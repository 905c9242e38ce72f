package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type (
	Config struct {
		Language    string `toml:"language"`
		ClientID    string `toml:"client_id"`
		APIBaseURL  string `toml:"api_base_url,omitempty"`
		HistoryPath string `toml:"history_path,omitempty"`

		Session          Session      `toml:"session"`
		Identity         Identity     `toml:"identity"`
		ActiveRepository string       `toml:"active_repository,omitempty"`
		Repositories     []Repository `toml:"repositories,omitempty"`

		VersionFile    string `toml:"version_file,omitempty"`
		VersionPattern string `toml:"version_pattern,omitempty"`
		IndexFile      string `toml:"index_file,omitempty"`

		Build    BuildConfig `toml:"build"`
		Timeouts Timeouts    `toml:"timeouts"`

		PathFile string `toml:"-"`
	}

	Session struct {
		AccessToken string `toml:"access_token,omitempty"`
		User        string `toml:"user,omitempty"`
	}

	Identity struct {
		Name  string `toml:"name,omitempty"`
		Email string `toml:"email,omitempty"`
	}

	Repository struct {
		ID    string `toml:"id"`
		Path  string `toml:"path"`
		Owner string `toml:"owner,omitempty"`
		Name  string `toml:"name,omitempty"`
	}

	BuildConfig struct {
		// Mode is "command" (run Command, collect Artifacts) or "go".
		Mode      string   `toml:"mode"`
		Command   []string `toml:"command,omitempty"`
		Dir       string   `toml:"dir,omitempty"`
		Artifacts []string `toml:"artifacts,omitempty"`

		// go mode only
		Main    string   `toml:"main,omitempty"`
		Binary  string   `toml:"binary,omitempty"`
		Targets []string `toml:"targets,omitempty"`
	}

	Timeouts struct {
		Status Duration `toml:"status"`
		Git    Duration `toml:"git"`
		API    Duration `toml:"api"`
		Upload Duration `toml:"upload"`
		Build  Duration `toml:"build"`
	}
)

// Duration reads "30s"-style strings from TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

const (
	BuildModeCommand = "command"
	BuildModeGo      = "go"

	configDirName  = ".materelease"
	configFileName = "config.toml"
)

const (
	defaultLang          = LangEN
	defaultStatusTimeout = 10 * time.Second
	defaultGitTimeout    = 2 * time.Minute
	defaultAPITimeout    = 30 * time.Second
	defaultUploadTimeout = 15 * time.Minute
	defaultBuildTimeout  = 30 * time.Minute
	defaultHistoryFile   = "history.db"
)

// LoadConfig reads the config file. path is either a .toml file or a home
// directory under which .materelease/config.toml lives. A missing file is
// created with defaults.
func LoadConfig(path string) (*Config, error) {
	var configPath string

	if filepath.Ext(path) == ".toml" {
		configPath = path
	} else {
		if path == "" {
			return nil, errors.New("config directory not specified")
		}
		configDir := filepath.Join(path, configDirName)
		configPath = filepath.Join(configDir, configFileName)

		if err := os.MkdirAll(configDir, 0700); err != nil {
			return nil, fmt.Errorf("error creating config directory: %w", err)
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return createDefaultConfig(configPath)
	} else if err != nil {
		return nil, fmt.Errorf("error checking config file: %w", err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("error decoding config file: %w", err)
	}
	cfg.PathFile = configPath
	applyDefaults(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("loaded configuration is invalid: %w", err)
	}

	return cfg, nil
}

func createDefaultConfig(path string) (*Config, error) {
	cfg := &Config{
		Language: defaultLang,
		PathFile: path,
		Build:    BuildConfig{Mode: BuildModeCommand},
	}
	applyDefaults(cfg)

	if err := SaveConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Language == "" {
		cfg.Language = defaultLang
	}
	if cfg.Build.Mode == "" {
		cfg.Build.Mode = BuildModeCommand
	}
	if cfg.HistoryPath == "" && cfg.PathFile != "" {
		cfg.HistoryPath = filepath.Join(filepath.Dir(cfg.PathFile), defaultHistoryFile)
	}

	t := &cfg.Timeouts
	setDefault(&t.Status, defaultStatusTimeout)
	setDefault(&t.Git, defaultGitTimeout)
	setDefault(&t.API, defaultAPITimeout)
	setDefault(&t.Upload, defaultUploadTimeout)
	setDefault(&t.Build, defaultBuildTimeout)
}

func setDefault(d *Duration, v time.Duration) {
	if d.Duration <= 0 {
		d.Duration = v
	}
}

func SaveConfig(cfg *Config) error {
	if err := validateConfig(cfg); err != nil {
		return fmt.Errorf("configuration to save is invalid: %w", err)
	}

	if cfg.PathFile == "" {
		return errors.New("config file path is not set")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.PathFile), 0700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	f, err := os.OpenFile(cfg.PathFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return fmt.Errorf("error encoding config: %w", err)
	}
	return nil
}

func validateConfig(cfg *Config) error {
	if cfg.Language == "" {
		return errors.New("language cannot be empty")
	}

	switch cfg.Build.Mode {
	case BuildModeCommand, BuildModeGo, "":
	default:
		return fmt.Errorf("unsupported build mode: %s", cfg.Build.Mode)
	}

	seen := make(map[string]bool, len(cfg.Repositories))
	for _, r := range cfg.Repositories {
		if r.ID == "" || r.Path == "" {
			return errors.New("repository entries need an id and a path")
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate repository id: %s", r.ID)
		}
		seen[r.ID] = true
	}

	if cfg.ActiveRepository != "" && !seen[cfg.ActiveRepository] {
		return fmt.Errorf("active repository %q is not configured", cfg.ActiveRepository)
	}
	return nil
}

// Repository returns the configured repository with the given id.
func (c *Config) Repository(id string) (Repository, bool) {
	for _, r := range c.Repositories {
		if r.ID == id {
			return r, true
		}
	}
	return Repository{}, false
}

func (c *Config) Active() (Repository, bool) {
	if c.ActiveRepository == "" {
		return Repository{}, false
	}
	return c.Repository(c.ActiveRepository)
}

// UpsertRepository adds r or replaces the entry with the same id. The first
// repository added becomes active.
func (c *Config) UpsertRepository(r Repository) {
	for i := range c.Repositories {
		if c.Repositories[i].ID == r.ID {
			c.Repositories[i] = r
			return
		}
	}
	c.Repositories = append(c.Repositories, r)
	if c.ActiveRepository == "" {
		c.ActiveRepository = r.ID
	}
}

func (c *Config) SetActive(id string) error {
	if _, ok := c.Repository(id); !ok {
		return fmt.Errorf("repository %q is not configured", id)
	}
	c.ActiveRepository = id
	return nil
}

func (c *Config) ClearSession() {
	c.Session = Session{}
}

func (c *Config) LoggedIn() bool {
	return strings.TrimSpace(c.Session.AccessToken) != ""
}
