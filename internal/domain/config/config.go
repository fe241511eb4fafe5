package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	domainerr "kotoba/internal/domain/errors"
)

type Config struct {
	Site   SiteConfig   `yaml:"site"`
	Server ServerConfig `yaml:"server"`
	Store  StoreConfig  `yaml:"store"`
	Admin  AdminConfig  `yaml:"admin"`
	Media  MediaConfig  `yaml:"media"`
	Build  BuildConfig  `yaml:"build"`
	Log    LogConfig    `yaml:"log"`
}

type SiteConfig struct {
	Name        string   `yaml:"name"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	SiteURL     string   `yaml:"site_url"`
	Theme       string   `yaml:"theme"`
	Language    string   `yaml:"language"`
	Locale      string   `yaml:"locale"`
	Author      string   `yaml:"author"`
	Keywords    []string `yaml:"keywords"`
	TimeZone    string   `yaml:"time_zone"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// Per-IP limit for the view and reaction endpoints.
	RateLimit float64 `yaml:"rate_limit"`
	RateBurst int     `yaml:"rate_burst"`
	// Number of processed article bodies kept in memory.
	ContentCacheSize int `yaml:"content_cache_size"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

type AdminConfig struct {
	Password     string        `yaml:"password"`
	JWTSecret    string        `yaml:"jwt_secret"`
	SessionTTL   time.Duration `yaml:"session_ttl"`
	SecureCookie bool          `yaml:"secure_cookie"`
}

type MediaConfig struct {
	Dir           string `yaml:"dir"`
	PublicBaseURL string `yaml:"public_base_url"`
	MaxUploadMB   int64  `yaml:"max_upload_mb"`
}

type BuildConfig struct {
	SourceDir string    `yaml:"source_dir"`
	PublicDir string    `yaml:"public_dir"`
	ThemeDir  string    `yaml:"theme_dir"`
	Now       time.Time `yaml:"-"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

func Default() Config {
	return Config{
		Site: SiteConfig{
			Name:        "Sayo's Journal",
			Title:       "Sayo's Journal | 言葉で場所・人・記憶をつなぐ",
			Description: "文章と写真で綴る、人と場所の物語。",
			Theme:       "default",
			Language:    "ja",
			Locale:      "ja_JP",
			TimeZone:    "Asia/Tokyo",
		},
		Server: ServerConfig{
			Addr:             ":8080",
			ReadTimeout:      15 * time.Second,
			WriteTimeout:     30 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			RateLimit:        1,
			RateBurst:        5,
			ContentCacheSize: 256,
		},
		Store: StoreConfig{
			Path: ".kotoba/kotoba.db",
		},
		Admin: AdminConfig{
			SessionTTL: 7 * 24 * time.Hour,
		},
		Media: MediaConfig{
			Dir:           "media",
			PublicBaseURL: "/media",
			MaxUploadMB:   10,
		},
		Build: BuildConfig{
			SourceDir: "content",
			PublicDir: "public",
			ThemeDir:  "themes",
			Now:       time.Now(),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c Config) Validate() error {
	var ve domainerr.ValidationError

	if strings.TrimSpace(c.Site.Title) == "" {
		ve.Add("site.title", "must not be empty")
	}
	if strings.TrimSpace(c.Site.SiteURL) == "" {
		ve.Add("site.site_url", "must not be empty")
	} else if !isValidAbsURL(c.Site.SiteURL) {
		ve.Add("site.site_url", "must be a valid absolute URL")
	}
	if strings.TrimSpace(c.Site.Theme) == "" {
		ve.Add("site.theme", "must not be empty")
	}
	if c.Site.TimeZone != "" {
		if _, err := time.LoadLocation(c.Site.TimeZone); err != nil {
			ve.Add("site.time_zone", "unknown time zone")
		}
	}

	if strings.TrimSpace(c.Server.Addr) == "" {
		ve.Add("server.addr", "must not be empty")
	}
	if c.Server.RateLimit <= 0 {
		ve.Add("server.rate_limit", "must be positive")
	}
	if c.Server.RateBurst <= 0 {
		ve.Add("server.rate_burst", "must be positive")
	}

	if strings.TrimSpace(c.Store.Path) == "" {
		ve.Add("store.path", "must not be empty")
	}
	if c.Admin.Password != "" && len(c.Admin.JWTSecret) < 32 {
		ve.Add("admin.jwt_secret", "must be at least 32 bytes when an admin password is set")
	}
	if c.Admin.SessionTTL <= 0 {
		ve.Add("admin.session_ttl", "must be positive")
	}

	if strings.TrimSpace(c.Media.Dir) == "" {
		ve.Add("media.dir", "must not be empty")
	}
	if c.Media.MaxUploadMB <= 0 {
		ve.Add("media.max_upload_mb", "must be positive")
	}

	if strings.TrimSpace(c.Build.PublicDir) == "" {
		ve.Add("build.public_dir", "must not be empty")
	}
	if strings.TrimSpace(c.Build.ThemeDir) == "" {
		ve.Add("build.theme_dir", "must not be empty")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		ve.Add("log.level", "must be one of debug, info, warn, error")
	}

	return ve.Err()
}

func isValidAbsURL(s string) bool {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}

// Load reads path over Default(), applies .env and KOTOBA_* overrides and
// validates. A missing file is not an error: everything can come from env.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		// 書かれたフィールドだけ既定値を上書きする
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, err
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return cfg, err
	}

	// .env は任意
	_ = godotenv.Load()
	applyEnv(&cfg, os.LookupEnv)

	if cfg.Build.Now.IsZero() {
		cfg.Build.Now = time.Now()
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("KOTOBA_SITE_URL", &cfg.Site.SiteURL)
	str("KOTOBA_ADDR", &cfg.Server.Addr)
	str("KOTOBA_STORE_PATH", &cfg.Store.Path)
	str("KOTOBA_ADMIN_PASSWORD", &cfg.Admin.Password)
	str("KOTOBA_JWT_SECRET", &cfg.Admin.JWTSecret)
	str("KOTOBA_MEDIA_DIR", &cfg.Media.Dir)
	str("KOTOBA_LOG_LEVEL", &cfg.Log.Level)
	str("KOTOBA_LOG_FILE", &cfg.Log.File)

	if v, ok := lookup("KOTOBA_SECURE_COOKIE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Admin.SecureCookie = b
		}
	}
}
