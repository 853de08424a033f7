package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Region identifies the massif and département the service is deployed for.
// Derivation logic is region-independent; only identity and coordinates vary.
type Region struct {
	Massif         string
	MassifSlug     string
	Department     string
	DepartmentSlug string
	Latitude       float64
	Longitude      float64
}

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	Region Region

	BRAURL          string
	MassifPageURL   string
	VigilanceURL    string
	UpstreamTimeout time.Duration
	OpenMeteoURL    string

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	RateLimitRPS   int
	RateLimitBurst int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerCooldown         time.Duration

	WarmCache    bool
	WarmInterval time.Duration

	DegradedWindow time.Duration

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Region struct {
		Massif         string  `yaml:"massif"`
		MassifSlug     string  `yaml:"massif_slug"`
		Department     string  `yaml:"department"`
		DepartmentSlug string  `yaml:"department_slug"`
		Latitude       float64 `yaml:"latitude"`
		Longitude      float64 `yaml:"longitude"`
	} `yaml:"region"`

	Upstream struct {
		BRAURL        string `yaml:"bra_url"`
		MassifPageURL string `yaml:"massif_page_url"`
		VigilanceURL  string `yaml:"vigilance_url"`
		OpenMeteoURL  string `yaml:"openmeteo_url"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"upstream"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		RateLimitRPS    int    `yaml:"rate_limit_rps"`
		RateLimitBurst  int    `yaml:"rate_limit_burst"`
		CoalesceEnabled *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout string `yaml:"coalesce_timeout"`

		CircuitBreakerEnabled          bool   `yaml:"circuit_breaker_enabled"`
		CircuitBreakerFailureThreshold int    `yaml:"circuit_breaker_failure_threshold"`
		CircuitBreakerSuccessThreshold int    `yaml:"circuit_breaker_success_threshold"`
		CircuitBreakerCooldown         string `yaml:"circuit_breaker_cooldown"`
	} `yaml:"reliability"`

	Warming struct {
		Enabled  bool   `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"warming"`

	Health struct {
		DegradedWindow string `yaml:"degraded_window"`
	} `yaml:"health"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev).
// Call from project root. PORT and CACHE_BACKEND env vars override the file.
func Load() (*Config, error) {
	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "3000"
	}

	cfg.Region = Region{
		Massif:         defaultString(fc.Region.Massif, "Vanoise"),
		MassifSlug:     defaultString(fc.Region.MassifSlug, "vanoise"),
		Department:     defaultString(fc.Region.Department, "Savoie"),
		DepartmentSlug: defaultString(fc.Region.DepartmentSlug, "savoie"),
		Latitude:       fc.Region.Latitude,
		Longitude:      fc.Region.Longitude,
	}
	if cfg.Region.Latitude == 0 && cfg.Region.Longitude == 0 {
		cfg.Region.Latitude = 45.38
		cfg.Region.Longitude = 6.82
	}

	cfg.BRAURL = defaultString(fc.Upstream.BRAURL,
		"https://donneespubliques.meteofrance.fr/donnees_libres/Pdf/BRA/BRA.VANOISE.xml")
	cfg.MassifPageURL = defaultString(fc.Upstream.MassifPageURL,
		"https://meteofrance.com/meteo-montagne/vanoise/risques-avalanche")
	cfg.VigilanceURL = defaultString(fc.Upstream.VigilanceURL,
		"https://vigilance.meteofrance.fr/fr/savoie")
	cfg.OpenMeteoURL = defaultString(fc.Upstream.OpenMeteoURL,
		"https://api.open-meteo.com/v1/forecast")
	cfg.UpstreamTimeout = parseDuration(fc.Upstream.Timeout, 10*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 25*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 6*time.Hour)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS < 0 {
		cfg.RateLimitRPS = 0
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = cfg.RateLimitRPS * 2
	}

	cfg.CoalesceEnabled = true
	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 15*time.Second)

	cfg.CircuitBreakerEnabled = fc.Reliability.CircuitBreakerEnabled
	cfg.CircuitBreakerFailureThreshold = fc.Reliability.CircuitBreakerFailureThreshold
	cfg.CircuitBreakerSuccessThreshold = fc.Reliability.CircuitBreakerSuccessThreshold
	cfg.CircuitBreakerCooldown = parseDuration(fc.Reliability.CircuitBreakerCooldown, 30*time.Second)

	cfg.WarmCache = fc.Warming.Enabled
	cfg.WarmInterval = parseDuration(fc.Warming.Interval, 0)

	cfg.DegradedWindow = parseDuration(fc.Health.DegradedWindow, 6*time.Hour)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultString(s, def string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// parseDuration parses a duration string and returns defaultVal if parsing
// fails. Zero and negative parse results pass through so callers can express
// "disabled".
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// The request timeout must leave room for the worst case of the pipeline:
// two sequential upstream calls plus parsing.
func validate(cfg *Config) error {
	if cfg.UpstreamTimeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive")
	}
	if cfg.CacheTTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}
	if cfg.RequestTimeout <= 2*cfg.UpstreamTimeout {
		cfg.RequestTimeout = 2*cfg.UpstreamTimeout + 5*time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
