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

// Note store backends.
const (
	NoteStoreApple = "apple"
	NoteStoreFile  = "file"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Note     NoteConfig        `yaml:"note"`
	Workarea WorkareaConfig    `yaml:"workarea"`
	Download DownloadConfig    `yaml:"download"`
	Import   ImportConfig      `yaml:"import"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Note.Validate(); err != nil {
		return err
	}
	if err := c.Workarea.Validate(); err != nil {
		return err
	}
	if err := c.Download.Validate(); err != nil {
		return err
	}
	if err := c.Import.Validate(); err != nil {
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

// HTTPConfig holds trigger server configuration.
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

// NoteConfig locates the note the pipeline reads URLs from.
//
// Store selects the backend:
//   - "apple": the desktop Notes application, via osascript.
//   - "file": plain files under Dir, one note per "<title>.txt".
type NoteConfig struct {
	Title string `yaml:"title"`
	Store string `yaml:"store"`
	Dir   string `yaml:"dir"`
}

// Validate validates the note configuration.
func (c *NoteConfig) Validate() error {
	if c.Store == "" {
		c.Store = NoteStoreApple
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Title, validation.Required),
		validation.Field(&c.Store, validation.Required, validation.In(NoteStoreApple, NoteStoreFile)),
	); err != nil {
		return err
	}
	if c.Store == NoteStoreFile && c.Dir == "" {
		return fmt.Errorf("note: store is %q but dir is empty", NoteStoreFile)
	}
	return nil
}

// WorkareaConfig holds the paths to the pipeline's working state.
type WorkareaConfig struct {
	Path       string `yaml:"path"`
	LedgerPath string `yaml:"ledger_path"`
}

// Validate validates the workarea configuration.
func (c *WorkareaConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
		validation.Field(&c.LedgerPath, validation.Required),
	)
}

// DownloadConfig holds downloader settings.
type DownloadConfig struct {
	Binary         string `yaml:"binary"`
	MP3Dir         string `yaml:"mp3_dir"`
	MP4Dir         string `yaml:"mp4_dir"`
	CookiesBrowser string `yaml:"cookies_browser"`
	Retries        int    `yaml:"retries"`
}

// Validate validates the download configuration.
func (c *DownloadConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MP3Dir, validation.Required),
		validation.Field(&c.MP4Dir, validation.Required),
		validation.Field(&c.Retries, validation.Min(0)),
	)
}

// ImportConfig holds the remote music import settings.
type ImportConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Host       string `yaml:"host"`
	User       string `yaml:"user"`
	ScriptPath string `yaml:"script_path"`
	RemoteDir  string `yaml:"remote_dir"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.User, validation.Required),
		validation.Field(&c.ScriptPath, validation.Required),
		validation.Field(&c.RemoteDir, validation.Required),
	)
}

// AuthConfig holds authentication configuration for the trigger API.
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
	// Normalise empty mode to "disabled" for backward compatibility.
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
		Note: NoteConfig{
			Title: "Download",
			Store: NoteStoreApple,
		},
		Workarea: WorkareaConfig{
			Path:       "./workarea",
			LedgerPath: "./workarea/raido.db",
		},
		Download: DownloadConfig{
			Binary:  "yt-dlp",
			MP3Dir:  "./downloads/mp3",
			MP4Dir:  "./downloads/mp4",
			Retries: 10,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
