package internal

import (
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Data sources.
const (
	SourceLocal  = "local"
	SourceRemote = "remote"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Source    string            `yaml:"source"`
	Backup    BackupConfig      `yaml:"backup"`
	Index     IndexConfig       `yaml:"index"`
	Embedding EmbeddingConfig   `yaml:"embedding"`
	OCR       OCRConfig         `yaml:"ocr"`
	Remote    RemoteConfig      `yaml:"remote"`
	Auth      AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Source == "" {
		c.Source = SourceLocal
	}
	if err := validation.Validate(c.Source, validation.In(SourceLocal, SourceRemote)); err != nil {
		return fmt.Errorf("source: %w", err)
	}
	if c.Source == SourceRemote && !c.Remote.Enabled {
		return fmt.Errorf("source is %q but remote is not enabled", SourceRemote)
	}
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Backup.Validate(); err != nil {
		return err
	}
	if err := c.Index.Validate(); err != nil {
		return err
	}
	if err := c.Embedding.Validate(); err != nil {
		return err
	}
	if err := c.Remote.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// BackupConfig holds the local backup roots and the decoder command.
type BackupConfig struct {
	// Roots are the directories scanned for notebook backups. At least
	// one must exist at refresh time, but not at startup.
	Roots []string `yaml:"roots"`
	// DecoderCmd is the external converter invoked per section file.
	// Empty disables local decoding.
	DecoderCmd  string   `yaml:"decoder_cmd"`
	DecoderArgs []string `yaml:"decoder_args"`
}

// Validate validates the backup configuration.
func (c *BackupConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Roots, validation.Required),
	)
}

// IndexConfig holds index persistence configuration.
type IndexConfig struct {
	Path        string `yaml:"path"`
	OCRCacheDir string `yaml:"ocr_cache_dir"`
}

// Validate validates the index configuration.
func (c *IndexConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// EmbeddingConfig holds the embedding endpoint configuration.
type EmbeddingConfig struct {
	Endpoint   string `yaml:"endpoint"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// Validate validates the embedding configuration.
func (c *EmbeddingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.Dimensions, validation.Min(0)),
	)
}

// OCRConfig holds the OCR endpoint configuration. Disabled by default;
// pages still index without image text.
type OCRConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Validate validates the OCR configuration.
func (c *OCRConfig) Validate() error {
	if c.Enabled && c.Endpoint == "" {
		return fmt.Errorf("ocr: enabled but endpoint is empty")
	}
	return nil
}

// RemoteConfig holds the remote notebook API configuration.
type RemoteConfig struct {
	Enabled bool   `yaml:"enabled"`
	BaseURL string `yaml:"base_url"`
	// TokenFile points at a file holding the bearer token, refreshed by
	// an external auth helper. Token is a fixed fallback.
	TokenFile string `yaml:"token_file"`
	Token     string `yaml:"token"`
}

// Validate validates the remote configuration.
func (c *RemoteConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.Required),
	); err != nil {
		return err
	}
	if c.TokenFile == "" && c.Token == "" {
		return fmt.Errorf("remote: enabled but neither token_file nor token is set")
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	// Normalise empty mode to "disabled".
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Source: SourceLocal,
		Backup: BackupConfig{
			Roots: []string{"./backups"},
		},
		Index: IndexConfig{
			Path:        "./ansuz.db",
			OCRCacheDir: "./ocr-cache",
		},
		Embedding: EmbeddingConfig{
			Endpoint:   "http://localhost:11434",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
