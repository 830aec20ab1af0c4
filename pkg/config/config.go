// Package config loads the console configuration from environment variables.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cesarabad/muffinmanager/pkg/constants"
	"github.com/cesarabad/muffinmanager/pkg/logger"
)

// Version is set at build time through -ldflags.
var Version = "dev"

type Config struct {
	// APIURL is the base URL of the backend, e.g. https://api.example.com/api.
	APIURL string
	// LiveURL is the websocket endpoint of the STOMP broker.
	LiveURL string
	// Token is an optional bearer token used to seed the session store.
	Token string

	Locale    string
	LogLevel  string
	LogFormat string

	PageSize          int
	HTTPTimeout       time.Duration
	ReconnectInterval time.Duration
	// Codec names the request body codec: json or cbor.
	Codec string
}

// Load reads MM_* variables. Errors name the offending variable.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	cfg.APIURL, err = getEnvRequired("MM_API_URL")
	if err != nil {
		return nil, err
	}
	api, err := url.Parse(cfg.APIURL)
	if err != nil || api.Host == "" {
		return nil, fmt.Errorf("MM_API_URL: invalid URL %q", cfg.APIURL)
	}
	if api.Scheme != constants.HTTPScheme && api.Scheme != constants.HTTPSecureScheme {
		return nil, fmt.Errorf("MM_API_URL: unsupported scheme %q", api.Scheme)
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")

	cfg.LiveURL = getEnvDefault("MM_LIVE_URL", DeriveLiveURL(api))
	live, err := url.Parse(cfg.LiveURL)
	if err != nil || (live.Scheme != constants.WebsocketScheme && live.Scheme != constants.WebsocketSecureScheme) {
		return nil, fmt.Errorf("MM_LIVE_URL: invalid websocket URL %q", cfg.LiveURL)
	}

	cfg.Token = getEnvDefault("MM_TOKEN", "")
	cfg.Locale = getEnvDefault("MM_LOCALE", constants.DefaultLocale)

	cfg.LogLevel = strings.ToLower(getEnvDefault("MM_LOG_LEVEL", "info"))
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("MM_LOG_LEVEL: invalid value %q, allowed: debug, info, warn, error", cfg.LogLevel)
	}

	cfg.LogFormat = getEnvDefault("MM_LOG_FORMAT", "json")
	switch cfg.LogFormat {
	case "json", "console", "text":
	default:
		return nil, fmt.Errorf("MM_LOG_FORMAT: invalid value %q, allowed: json, console, text", cfg.LogFormat)
	}

	cfg.PageSize, err = getEnvInt("MM_PAGE_SIZE", constants.DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("MM_PAGE_SIZE: %w", err)
	}
	if cfg.PageSize < 1 || cfg.PageSize > 1000 {
		return nil, fmt.Errorf("MM_PAGE_SIZE: value %d out of range 1-1000", cfg.PageSize)
	}

	cfg.HTTPTimeout, err = getEnvDuration("MM_HTTP_TIMEOUT", constants.DefaultHTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("MM_HTTP_TIMEOUT: %w", err)
	}

	cfg.ReconnectInterval, err = getEnvDuration("MM_RECONNECT_INTERVAL", constants.DefaultReconnectInterval)
	if err != nil {
		return nil, fmt.Errorf("MM_RECONNECT_INTERVAL: %w", err)
	}

	cfg.Codec = strings.ToLower(getEnvDefault("MM_CODEC", "json"))
	if cfg.Codec != "json" && cfg.Codec != "cbor" {
		return nil, fmt.Errorf("MM_CODEC: invalid value %q, allowed: json, cbor", cfg.Codec)
	}

	return cfg, nil
}

// DeriveLiveURL maps http(s)://host/... to ws(s)://host/ws.
func DeriveLiveURL(api *url.URL) string {
	scheme := constants.WebsocketScheme
	if api.Scheme == constants.HTTPSecureScheme {
		scheme = constants.WebsocketSecureScheme
	}
	return (&url.URL{Scheme: scheme, Host: api.Host, Path: "/ws"}).String()
}

// SetupLogger builds the logger selected by LogFormat, writing to w.
// The returned close function must be called on shutdown.
func SetupLogger(cfg *Config, w io.Writer) (logger.Logger, func() error, error) {
	if cfg.LogFormat == "text" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
			return nil, nil, fmt.Errorf("MM_LOG_LEVEL: %w", err)
		}
		h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		return logger.New(h).With("version", Version), func() error { return nil }, nil
	}

	build := logger.NewBuild().FromBuffer(w).Level(cfg.LogLevel).With("version", Version)
	if cfg.LogFormat == "console" {
		build = build.Console()
	}
	data, err := build.Make()
	if err != nil {
		return nil, nil, err
	}
	return data, data.Close, nil
}

func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: required environment variable is not set", key)
	}
	return val, nil
}

func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", val)
	}
	return n, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", val)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", d)
	}
	return d, nil
}
