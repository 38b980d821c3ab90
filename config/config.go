package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds persistent settings stored at <profileDir>/settings.json.
type Config struct {
	Theme      string `json:"theme,omitempty"`
	BackendURL string `json:"backend_url,omitempty"`
	Token      string `json:"-"`
	Index      string `json:"index,omitempty"`
	Paging     string `json:"paging,omitempty"`

	// IndexMargin is the number of rows fetched beyond each edge of the
	// visible window.
	// Zero is a valid margin, so the numeric and bool knobs are always
	// written.
	IndexMargin int `json:"index_margin"`
	// WindowSize is the window requested before the first measurement.
	WindowSize     int      `json:"window_size"`
	RowHeight      int      `json:"row_height"`
	ScrollInterval Duration `json:"scroll_interval"`
	// RequestRate is requests per second; 0 disables the limit.
	RequestRate  float64 `json:"request_rate"`
	RequestBurst int     `json:"request_burst"`
	LocalSort    bool    `json:"local_sort"`
}

const filename = "settings.json"

const (
	EnvURL   = "MDR_URL"
	EnvToken = "MDR_TOKEN"
	EnvIndex = "MDR_INDEX"
)

var ErrInvalid = errors.New("invalid config")

// Load reads <profileDir>/settings.json and returns the parsed Config.
// If the file is absent or unreadable, a default Config is returned.
func Load(profileDir string) Config {
	cfg := Defaults()
	data, err := os.ReadFile(filepath.Join(profileDir, filename))
	if err != nil {
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Defaults()
	}
	return cfg
}

// Save writes cfg to <profileDir>/settings.json, creating the directory if needed.
func Save(profileDir string, cfg Config) error {
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(profileDir, filename), data, 0o644)
}

// ApplyEnv overlays the MDR_* environment variables. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvURL); ok && v != "" {
		c.BackendURL = v
	}
	if v, ok := lookup(EnvToken); ok {
		c.Token = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvIndex); ok && v != "" {
		c.Index = v
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: backend_url %q", ErrInvalid, c.BackendURL)
	}
	switch {
	case c.Index == "":
		return fmt.Errorf("%w: index is empty", ErrInvalid)
	case c.Paging != "offset" && c.Paging != "keyset":
		return fmt.Errorf("%w: paging %q", ErrInvalid, c.Paging)
	case c.IndexMargin < 0:
		return fmt.Errorf("%w: index_margin %d", ErrInvalid, c.IndexMargin)
	case c.WindowSize <= 0:
		return fmt.Errorf("%w: window_size %d", ErrInvalid, c.WindowSize)
	case c.RowHeight <= 0:
		return fmt.Errorf("%w: row_height %d", ErrInvalid, c.RowHeight)
	case c.RequestRate < 0:
		return fmt.Errorf("%w: request_rate %g", ErrInvalid, c.RequestRate)
	}
	return nil
}

func Defaults() Config {
	return Config{
		Theme:          "dark",
		BackendURL:     "http://localhost:9200",
		Index:          "study",
		Paging:         "offset",
		IndexMargin:    24,
		WindowSize:     50,
		RowHeight:      2,
		ScrollInterval: Duration(16 * time.Millisecond),
		RequestRate:    10,
		RequestBurst:   4,
	}
}

// Duration is a time.Duration stored as a string such as "16ms".
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n int64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		*d = Duration(time.Duration(n) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: %w", err)
	}
	*d = Duration(v)
	return nil
}
