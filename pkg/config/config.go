package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cirocosta/docker-hub-exporter/pkg/hub"
	"github.com/cirocosta/docker-hub-exporter/pkg/target"
)

// Keys of every setting, as environment variables.
//
const (
	KeyBindPort       = "BIND_PORT"
	KeyTelemetryPath  = "TELEMETRY_PATH"
	KeyImages         = "IMAGES"
	KeyOrgs           = "ORGS"
	KeyConfigFile     = "CONFIG_FILE"
	KeyRequestTimeout = "REQUEST_TIMEOUT"
	KeyCollectTimeout = "COLLECT_TIMEOUT"
	KeyConcurrency    = "CONCURRENCY"
	KeyMaxPages       = "MAX_PAGES"
	KeyBaseURL        = "BASE_URL"
	KeyLogLevel       = "LOG_LEVEL"
	KeyLogFormat      = "LOG_FORMAT"
)

// Config holds the exporter's configuration.
//
type Config struct {
	// BindPort is the port the metrics server listens on. Required for
	// serving, 0 when unset.
	//
	BindPort int

	TelemetryPath string

	// Images and Orgs are the raw identifiers to poll, to be resolved
	// into targets (see Targets).
	//
	Images []string
	Orgs   []string

	// ConfigFile is an optional YAML file listing more images and orgs.
	//
	ConfigFile string

	RequestTimeout time.Duration
	CollectTimeout time.Duration
	Concurrency    int
	MaxPages       int
	BaseURL        string

	LogLevel  string
	LogFormat string
}

// File is the layout of the optional targets file:
//
//	images:
//	  - acme/widget
//	orgs:
//	  - acme
//
type File struct {
	Images []string `yaml:"images"`
	Orgs   []string `yaml:"orgs"`
}

// Lookup retrieves the raw value of a setting, reporting whether it is set.
//
type Lookup func(key string) (string, bool)

// Environment returns a Lookup over the process environment, after loading
// a `.env` file from the working directory if there's one. Variables
// already set take precedence over the file.
//
func Environment() Lookup {
	_ = godotenv.Load()

	return os.LookupEnv
}

// Load reads every setting through lookup, applying defaults for the ones
// that are not set.
//
func Load(lookup Lookup) (*Config, error) {
	cfg := &Config{
		TelemetryPath:  "/metrics",
		RequestTimeout: hub.DefaultTimeout,
		CollectTimeout: time.Minute,
		Concurrency:    1,
		MaxPages:       hub.DefaultMaxPages,
		BaseURL:        hub.DefaultBaseURL,
		LogLevel:       "info",
		LogFormat:      "console",
	}

	get := func(key string) (string, bool) {
		v, found := lookup(key)
		if !found || v == "" {
			return "", false
		}

		return v, true
	}

	if v, found := get(KeyBindPort); found {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return nil, &target.ConfigurationError{
				Field:   KeyBindPort,
				Message: fmt.Sprintf("'%s' is not a valid port", v),
			}
		}

		cfg.BindPort = port
	}

	if v, found := get(KeyTelemetryPath); found {
		cfg.TelemetryPath = v
	}

	if v, found := get(KeyImages); found {
		cfg.Images = target.Split(v)
	}

	if v, found := get(KeyOrgs); found {
		cfg.Orgs = target.Split(v)
	}

	if v, found := get(KeyConfigFile); found {
		cfg.ConfigFile = v
	}

	if v, found := get(KeyBaseURL); found {
		cfg.BaseURL = v
	}

	if v, found := get(KeyLogLevel); found {
		cfg.LogLevel = v
	}

	if v, found := get(KeyLogFormat); found {
		cfg.LogFormat = v
	}

	for key, dst := range map[string]*time.Duration{
		KeyRequestTimeout: &cfg.RequestTimeout,
		KeyCollectTimeout: &cfg.CollectTimeout,
	} {
		v, found := get(key)
		if !found {
			continue
		}

		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, &target.ConfigurationError{
				Field:   key,
				Message: fmt.Sprintf("'%s' is not a positive duration", v),
			}
		}

		*dst = d
	}

	for key, dst := range map[string]*int{
		KeyConcurrency: &cfg.Concurrency,
		KeyMaxPages:    &cfg.MaxPages,
	} {
		v, found := get(key)
		if !found {
			continue
		}

		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return nil, &target.ConfigurationError{
				Field:   key,
				Message: fmt.Sprintf("'%s' is not a positive integer", v),
			}
		}

		*dst = n
	}

	return cfg, nil
}

// ListenAddress is the address the metrics server binds to.
//
func (c *Config) ListenAddress() (string, error) {
	if c.BindPort == 0 {
		return "", &target.ConfigurationError{
			Field:   KeyBindPort,
			Message: "port to bind the metrics server to is required",
		}
	}

	return ":" + strconv.Itoa(c.BindPort), nil
}

// Targets resolves the configured images and orgs, plus the ones listed in
// the targets file, if any.
//
func (c *Config) Targets() (target.Set, error) {
	images, orgs := c.Images, c.Orgs

	if c.ConfigFile != "" {
		f, err := LoadFile(c.ConfigFile)
		if err != nil {
			return target.Set{}, &target.ConfigurationError{
				Field:   KeyConfigFile,
				Message: err.Error(),
			}
		}

		images = append(append([]string{}, images...), f.Images...)
		orgs = append(append([]string{}, orgs...), f.Orgs...)
	}

	set, err := target.Resolve(images, orgs)
	if err != nil {
		return target.Set{}, fmt.Errorf("resolve targets: %w", err)
	}

	return set, nil
}

// LoadFile reads a targets file.
//
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file '%s': %w", path, err)
	}

	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse yaml '%s': %w", path, err)
	}

	return f, nil
}
