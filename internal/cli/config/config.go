package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
)

const (
	dirName    = "shelivery"
	fileName   = "config.json"
	dirPerms   = 0700
	filePerms  = 0600
	DefaultURL = "http://localhost:8080"

	// EnvDir overrides the directory holding the config file and the basket draft.
	EnvDir    = "SHELIVERY_CONFIG_DIR"
	EnvServer = "SHELIVERY_SERVER"
)

// Config holds persisted CLI configuration.
type Config struct {
	ServerURL    string    `json:"server_url"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at,omitempty"`
	UserID       string    `json:"user_id,omitempty"`
	Email        string    `json:"email,omitempty"`
	// Push is the Web Push registration this machine re-announces on every watch.
	Push *PushRegistration `json:"push,omitempty"`
}

type PushRegistration struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

// Input converts the registration to the subscribe payload.
func (p PushRegistration) Input() api.PushSubscriptionInput {
	return api.PushSubscriptionInput{
		Endpoint: p.Endpoint,
		Keys:     api.PushKeys{P256dh: p.P256dh, Auth: p.Auth},
	}
}

// Dir returns the directory holding the CLI's files.
func Dir() (string, error) {
	if dir := os.Getenv(EnvDir); dir != "" {
		return dir, nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName), nil
}

// Path returns the full path to the config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// Load reads the config from disk. A missing file yields the defaults. SHELIVERY_SERVER
// overrides the stored server URL.
func Load() (*Config, error) {
	cfg := &Config{}
	if p, err := Path(); err == nil {
		data, err := os.ReadFile(p)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", p, err)
			}
		}
	}
	if url := os.Getenv(EnvServer); url != "" {
		cfg.ServerURL = url
	}
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultURL
	}
	return cfg, nil
}

// Save replaces the config file atomically so a crash never leaves a half-written session.
func Save(cfg *Config) error {
	p, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), dirPerms); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), fileName+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(filePerms); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), p)
}

// Clear removes the config file.
func Clear() error {
	p, err := Path()
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// HasToken reports whether a session is stored.
func (c *Config) HasToken() bool {
	return c.AccessToken != ""
}

// Session rebuilds the stored session, or nil when signed out.
func (c *Config) Session() *api.Session {
	if !c.HasToken() {
		return nil
	}
	s := &api.Session{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		ExpiresAt:    c.ExpiresAt,
	}
	if c.UserID != "" {
		s.User = &api.User{ID: c.UserID, Email: c.Email}
	}
	return s
}

// SetSession stores s, or forgets the session when s is nil. The server URL is kept.
func (c *Config) SetSession(s *api.Session) {
	c.AccessToken, c.RefreshToken, c.ExpiresAt, c.UserID, c.Email = "", "", time.Time{}, "", ""
	if s == nil {
		return
	}
	c.AccessToken = s.AccessToken
	c.RefreshToken = s.RefreshToken
	c.ExpiresAt = s.ExpiresAt
	if s.User != nil {
		c.UserID = s.User.ID
		c.Email = s.User.Email
	}
}
