package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable of the gateway process.
type Config struct {
	HTTP          *HTTPConfig          `json:"http"`
	WebSocket     *WebSocketConfig     `json:"websocket"`
	Upstream      *UpstreamConfig      `json:"upstream"`
	Collaborators *CollaboratorConfig  `json:"collaborators"`
	Archive       *ArchiveConfig       `json:"archive"`
}

type HTTPConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	WriteTimeout time.Duration `json:"write_timeout"`
}

type WebSocketConfig struct {
	// HeartbeatInterval drives the per-session keepalive loop: a ping frame
	// to the client and a silence frame upstream on every tick.
	HeartbeatInterval time.Duration `json:"heartbeat_interval"`
	HandshakeTimeout  time.Duration `json:"handshake_timeout"`
	WriteTimeout      time.Duration `json:"write_timeout"`
	SendBuffer        int           `json:"send_buffer"`
}

type UpstreamConfig struct {
	URL         string        `json:"url"`
	APIKey      string        `json:"-"` // environment only, never from file
	Model       string        `json:"model"`
	Voice       string        `json:"voice"`
	DialTimeout time.Duration `json:"dial_timeout"`
	// SettleDelay is the pause between opening a fresh backend connection
	// and forwarding the input that triggered the reconnect.
	SettleDelay time.Duration `json:"settle_delay"`
	// CancelDelay is the pause after cancelling an in-flight response
	// before issuing the next one.
	CancelDelay time.Duration `json:"cancel_delay"`
}

type CollaboratorConfig struct {
	ProfileURL string        `json:"profile_url"`
	HistoryURL string        `json:"history_url"`
	MediaURL   string        `json:"media_url"`
	TTSURL     string        `json:"tts_url"`
	Timeout    time.Duration `json:"timeout"`
}

type ArchiveConfig struct {
	Path          string        `json:"path"`
	FlushInterval time.Duration `json:"flush_interval"`
}

// DefaultConfig returns the deployment defaults. Collaborator hosts match
// the service names used in the compose topology.
func DefaultConfig() *Config {
	return &Config{
		HTTP: &HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8082,
			WriteTimeout: 30 * time.Second,
		},
		WebSocket: &WebSocketConfig{
			HeartbeatInterval: 15 * time.Second,
			HandshakeTimeout:  10 * time.Second,
			WriteTimeout:      5 * time.Second,
			SendBuffer:        100,
		},
		Upstream: &UpstreamConfig{
			URL:         "wss://dashscope.aliyuncs.com/api-ws/v1/realtime",
			APIKey:      os.Getenv("OMNIGATE_UPSTREAM_API_KEY"),
			Model:       "qwen3-omni-flash-realtime",
			Voice:       "Cherry",
			DialTimeout: 15 * time.Second,
			SettleDelay: 500 * time.Millisecond,
			CancelDelay: 100 * time.Millisecond,
		},
		Collaborators: &CollaboratorConfig{
			ProfileURL: "http://user-service:3000",
			HistoryURL: "http://history-analytics-service:3004",
			MediaURL:   "http://media-processing-service:3005",
			TTSURL:     "",
			Timeout:    10 * time.Second,
		},
		Archive: &ArchiveConfig{
			Path:          "./omnigate-archive.db",
			FlushInterval: time.Minute,
		},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP == nil {
		return fmt.Errorf("http configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.WebSocket == nil {
		return fmt.Errorf("websocket configuration is required")
	}
	if c.WebSocket.HeartbeatInterval <= 0 {
		return fmt.Errorf("websocket heartbeat interval must be positive")
	}
	if c.WebSocket.HandshakeTimeout <= 0 {
		return fmt.Errorf("websocket handshake timeout must be positive")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.Upstream == nil {
		return fmt.Errorf("upstream configuration is required")
	}
	if c.Upstream.URL == "" {
		return fmt.Errorf("upstream URL cannot be empty")
	}
	if c.Upstream.DialTimeout <= 0 {
		return fmt.Errorf("upstream dial timeout must be positive")
	}
	if c.Upstream.SettleDelay < 0 {
		return fmt.Errorf("upstream settle delay cannot be negative")
	}
	if c.Collaborators == nil {
		return fmt.Errorf("collaborator configuration is required")
	}
	if c.Collaborators.ProfileURL == "" || c.Collaborators.HistoryURL == "" || c.Collaborators.MediaURL == "" {
		return fmt.Errorf("collaborator URLs cannot be empty")
	}
	if c.Collaborators.Timeout <= 0 {
		return fmt.Errorf("collaborator timeout must be positive")
	}
	if c.Archive == nil {
		return fmt.Errorf("archive configuration is required")
	}
	if c.Archive.Path == "" {
		return fmt.Errorf("archive path cannot be empty")
	}
	if c.Archive.FlushInterval <= 0 {
		return fmt.Errorf("archive flush interval must be positive")
	}
	return nil
}

// LoadFromEnv overlays OMNIGATE_* environment variables on the defaults.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if port := os.Getenv("OMNIGATE_HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.HTTP.Port = p
		}
	}
	if host := os.Getenv("OMNIGATE_HTTP_HOST"); host != "" {
		cfg.HTTP.Host = host
	}
	if v := os.Getenv("OMNIGATE_HEARTBEAT_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.WebSocket.HeartbeatInterval = d
		}
	}
	if v := os.Getenv("OMNIGATE_UPSTREAM_URL"); v != "" {
		cfg.Upstream.URL = v
	}
	if v := os.Getenv("OMNIGATE_UPSTREAM_MODEL"); v != "" {
		cfg.Upstream.Model = v
	}
	if v := os.Getenv("OMNIGATE_UPSTREAM_VOICE"); v != "" {
		cfg.Upstream.Voice = v
	}
	if v := os.Getenv("OMNIGATE_UPSTREAM_SETTLE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Upstream.SettleDelay = d
		}
	}
	if v := os.Getenv("OMNIGATE_PROFILE_URL"); v != "" {
		cfg.Collaborators.ProfileURL = v
	}
	if v := os.Getenv("OMNIGATE_HISTORY_URL"); v != "" {
		cfg.Collaborators.HistoryURL = v
	}
	if v := os.Getenv("OMNIGATE_MEDIA_URL"); v != "" {
		cfg.Collaborators.MediaURL = v
	}
	if v := os.Getenv("OMNIGATE_TTS_URL"); v != "" {
		cfg.Collaborators.TTSURL = v
	}
	if v := os.Getenv("OMNIGATE_ARCHIVE_PATH"); v != "" {
		cfg.Archive.Path = v
	}
	if v := os.Getenv("OMNIGATE_ARCHIVE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Archive.FlushInterval = d
		}
	}

	return cfg
}

// configFile mirrors Config with string durations for JSON parsing.
type configFile struct {
	HTTP *struct {
		Host         string `json:"host"`
		Port         int    `json:"port"`
		WriteTimeout string `json:"write_timeout"`
	} `json:"http"`
	WebSocket *struct {
		HeartbeatInterval string `json:"heartbeat_interval"`
		HandshakeTimeout  string `json:"handshake_timeout"`
		WriteTimeout      string `json:"write_timeout"`
		SendBuffer        int    `json:"send_buffer"`
	} `json:"websocket"`
	Upstream *struct {
		URL         string `json:"url"`
		Model       string `json:"model"`
		Voice       string `json:"voice"`
		DialTimeout string `json:"dial_timeout"`
		SettleDelay string `json:"settle_delay"`
		CancelDelay string `json:"cancel_delay"`
	} `json:"upstream"`
	Collaborators *struct {
		ProfileURL string `json:"profile_url"`
		HistoryURL string `json:"history_url"`
		MediaURL   string `json:"media_url"`
		TTSURL     string `json:"tts_url"`
		Timeout    string `json:"timeout"`
	} `json:"collaborators"`
	Archive *struct {
		Path          string `json:"path"`
		FlushInterval string `json:"flush_interval"`
	} `json:"archive"`
}

// LoadFromFile overlays a JSON config file on the environment-derived
// configuration and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg := LoadFromEnv()

	setDuration := func(dst *time.Duration, raw string) {
		if raw == "" {
			return
		}
		if d, err := time.ParseDuration(raw); err == nil {
			*dst = d
		}
	}

	if file.HTTP != nil {
		if file.HTTP.Host != "" {
			cfg.HTTP.Host = file.HTTP.Host
		}
		if file.HTTP.Port > 0 {
			cfg.HTTP.Port = file.HTTP.Port
		}
		setDuration(&cfg.HTTP.WriteTimeout, file.HTTP.WriteTimeout)
	}
	if file.WebSocket != nil {
		setDuration(&cfg.WebSocket.HeartbeatInterval, file.WebSocket.HeartbeatInterval)
		setDuration(&cfg.WebSocket.HandshakeTimeout, file.WebSocket.HandshakeTimeout)
		setDuration(&cfg.WebSocket.WriteTimeout, file.WebSocket.WriteTimeout)
		if file.WebSocket.SendBuffer > 0 {
			cfg.WebSocket.SendBuffer = file.WebSocket.SendBuffer
		}
	}
	if file.Upstream != nil {
		if file.Upstream.URL != "" {
			cfg.Upstream.URL = file.Upstream.URL
		}
		if file.Upstream.Model != "" {
			cfg.Upstream.Model = file.Upstream.Model
		}
		if file.Upstream.Voice != "" {
			cfg.Upstream.Voice = file.Upstream.Voice
		}
		setDuration(&cfg.Upstream.DialTimeout, file.Upstream.DialTimeout)
		setDuration(&cfg.Upstream.SettleDelay, file.Upstream.SettleDelay)
		setDuration(&cfg.Upstream.CancelDelay, file.Upstream.CancelDelay)
	}
	if file.Collaborators != nil {
		if file.Collaborators.ProfileURL != "" {
			cfg.Collaborators.ProfileURL = file.Collaborators.ProfileURL
		}
		if file.Collaborators.HistoryURL != "" {
			cfg.Collaborators.HistoryURL = file.Collaborators.HistoryURL
		}
		if file.Collaborators.MediaURL != "" {
			cfg.Collaborators.MediaURL = file.Collaborators.MediaURL
		}
		if file.Collaborators.TTSURL != "" {
			cfg.Collaborators.TTSURL = file.Collaborators.TTSURL
		}
		setDuration(&cfg.Collaborators.Timeout, file.Collaborators.Timeout)
	}
	if file.Archive != nil {
		if file.Archive.Path != "" {
			cfg.Archive.Path = file.Archive.Path
		}
		setDuration(&cfg.Archive.FlushInterval, file.Archive.FlushInterval)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// LoadWithPrecedence resolves configuration as file > environment > defaults.
// File errors are ignored so environment-only deployments keep working.
func LoadWithPrecedence(path string) *Config {
	cfg := LoadFromEnv()
	if path != "" {
		if fileCfg, err := LoadFromFile(path); err == nil {
			cfg = fileCfg
		}
	}
	return cfg
}
