package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Signal struct {
		URL             string        `yaml:"url"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		DialAttempts    int           `yaml:"dial_attempts"`
		DialBackoff     time.Duration `yaml:"dial_backoff"`
		AllowedOrigins  []string      `yaml:"allowed_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"signal"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Call struct {
		FileUploadDelay time.Duration `yaml:"file_upload_delay"`
		TimeFormat      string        `yaml:"time_format"`
	} `yaml:"call"`

	Backend struct {
		BaseURL         string        `yaml:"base_url"`
		Timeout         time.Duration `yaml:"timeout"`
		RetryAttempts   int           `yaml:"retry_attempts"`
		RetryBackoff    time.Duration `yaml:"retry_backoff"`
		BreakerFailures int           `yaml:"breaker_failures"`
		BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
	} `yaml:"backend"`

	Payment struct {
		KeyID      string `yaml:"key_id"`
		Merchant   string `yaml:"merchant"`
		ThemeColor string `yaml:"theme_color"`
	} `yaml:"payment"`

	Storage struct {
		Driver string `yaml:"driver"` // memory | minio
		MinIO  struct {
			Endpoint  string        `yaml:"endpoint"`
			AccessKey string        `yaml:"access_key"`
			SecretKey string        `yaml:"secret_key"`
			Bucket    string        `yaml:"bucket"`
			UseSSL    bool          `yaml:"use_ssl"`
			URLExpiry time.Duration `yaml:"url_expiry"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Auth struct {
		Enabled        bool          `yaml:"enabled"`
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		ClientToken    string        `yaml:"client_token"`
		// IssuerKey enables the token endpoint for the application backend. Empty disables it.
		IssuerKey string `yaml:"issuer_key"`
	} `yaml:"auth"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`
		HTTP    struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"`
		} `yaml:"http"`
		WebSocket struct {
			MessagesPerSecond   float64 `yaml:"messages_per_second"`
			Burst               int     `yaml:"burst"`
			MaxMessageSizeBytes int64   `yaml:"max_message_size_bytes"`
		} `yaml:"websocket"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	if c.Signal.URL == "" {
		return fmt.Errorf("signal.url must not be empty")
	}
	if c.Signal.PingInterval <= 0 {
		return fmt.Errorf("signal.ping_interval must be > 0")
	}
	if c.Signal.PongTimeout <= c.Signal.PingInterval {
		return fmt.Errorf("signal.pong_timeout must be > signal.ping_interval")
	}
	if c.Signal.WriteTimeout <= 0 {
		return fmt.Errorf("signal.write_timeout must be > 0")
	}
	if c.Signal.DialAttempts < 0 {
		return fmt.Errorf("signal.dial_attempts must be >= 0")
	}

	if len(c.WebRTC.ICEServers) == 0 {
		return fmt.Errorf("webrtc.ice_servers must contain at least one server")
	}
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	if c.Call.FileUploadDelay < 0 {
		return fmt.Errorf("call.file_upload_delay must be >= 0")
	}
	if c.Call.TimeFormat == "" {
		return fmt.Errorf("call.time_format must not be empty")
	}

	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url must not be empty")
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("backend.timeout must be > 0")
	}
	if c.Backend.RetryAttempts < 0 {
		return fmt.Errorf("backend.retry_attempts must be >= 0")
	}
	if c.Backend.BreakerFailures <= 0 {
		return fmt.Errorf("backend.breaker_failures must be > 0")
	}

	switch c.Storage.Driver {
	case "memory":
	case "minio":
		if c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and bucket must be set when storage.driver=minio")
		}
		if c.Storage.MinIO.URLExpiry <= 0 {
			return fmt.Errorf("storage.minio.url_expiry must be > 0")
		}
	default:
		return fmt.Errorf("storage.driver must be memory or minio, got %q", c.Storage.Driver)
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret must not be empty when auth.enabled=true")
		}
		if c.Auth.AccessTokenTTL <= 0 {
			return fmt.Errorf("auth.access_token_ttl must be > 0")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.MessagesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.websocket.messages_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.WebSocket.Burst <= 0 {
			return fmt.Errorf("rate_limiting.websocket.burst must be > 0 when rate limiting is enabled")
		}
	}
	if c.RateLimiting.WebSocket.MaxMessageSizeBytes < 0 {
		return fmt.Errorf("rate_limiting.websocket.max_message_size_bytes must be >= 0")
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFirst tries each path in order and returns the first configuration that loads.
func LoadFirst(paths ...string) (*Config, string, error) {
	var lastErr error
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		cfg, err := Load(path)
		if err != nil {
			lastErr = err
			continue
		}
		return cfg, path, nil
	}
	if lastErr != nil {
		return nil, "", lastErr
	}
	cfg := DefaultConfig()
	cfg.applyEnvOverrides()
	return cfg, "", nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Server.Address = ":8081"
	cfg.Server.ReadTimeout = 30 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 30 * time.Second

	cfg.Signal.URL = "ws://localhost:8081/ws"
	cfg.Signal.PingInterval = 30 * time.Second
	cfg.Signal.PongTimeout = 60 * time.Second
	cfg.Signal.WriteTimeout = 10 * time.Second
	cfg.Signal.DialAttempts = 3
	cfg.Signal.DialBackoff = 500 * time.Millisecond
	cfg.Signal.AllowedOrigins = []string{"*"}
	cfg.Signal.ShutdownTimeout = 10 * time.Second

	cfg.WebRTC.ICEServers = []ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

	cfg.Call.FileUploadDelay = 1500 * time.Millisecond
	cfg.Call.TimeFormat = "3:04 PM"

	cfg.Backend.BaseURL = "http://localhost:5000/api"
	cfg.Backend.Timeout = 15 * time.Second
	cfg.Backend.RetryAttempts = 2
	cfg.Backend.RetryBackoff = 200 * time.Millisecond
	cfg.Backend.BreakerFailures = 5
	cfg.Backend.BreakerTimeout = 30 * time.Second

	cfg.Payment.Merchant = "LexMeet"
	cfg.Payment.ThemeColor = "#1E3A8A"

	cfg.Storage.Driver = "memory"
	cfg.Storage.MinIO.Bucket = "consultation-files"
	cfg.Storage.MinIO.URLExpiry = time.Hour

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.PoolSize = 10

	cfg.Auth.Enabled = false
	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 12 * time.Hour

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 20
	cfg.RateLimiting.HTTP.Burst = 40
	cfg.RateLimiting.HTTP.MaxConcurrent = 1000
	cfg.RateLimiting.WebSocket.MessagesPerSecond = 100
	cfg.RateLimiting.WebSocket.Burst = 200
	cfg.RateLimiting.WebSocket.MaxMessageSizeBytes = 64 * 1024

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("LEXMEET_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if url := os.Getenv("LEXMEET_SIGNAL_URL"); url != "" {
		c.Signal.URL = url
	}
	if url := os.Getenv("LEXMEET_BACKEND_URL"); url != "" {
		c.Backend.BaseURL = url
	}
	if level := os.Getenv("LEXMEET_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("LEXMEET_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if token := os.Getenv("LEXMEET_CLIENT_TOKEN"); token != "" {
		c.Auth.ClientToken = token
	}
	if key := os.Getenv("LEXMEET_ISSUER_KEY"); key != "" {
		c.Auth.IssuerKey = key
	}
	if key := os.Getenv("LEXMEET_PAYMENT_KEY_ID"); key != "" {
		c.Payment.KeyID = key
	}
}
