package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dpup/saferoute/server/internal/observability"
)

// Config represents the complete server configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" koanf:"server"`
	Planner       PlannerConfig       `yaml:"planner" koanf:"planner"`
	Providers     ProvidersConfig     `yaml:"providers" koanf:"providers"`
	Hazards       HazardsConfig       `yaml:"hazards" koanf:"hazards"`
	Observability ObservabilityConfig `yaml:"observability" koanf:"observability"`
}

// ServerConfig holds settings for the JSON API surface
type ServerConfig struct {
	CorsOrigins []string `yaml:"cors_origins" koanf:"cors_origins"`
}

// PlannerConfig holds route search session behaviour
type PlannerConfig struct {
	Debounce                time.Duration `yaml:"debounce" koanf:"debounce"`
	CorridorKm              float64       `yaml:"corridor_km" koanf:"corridor_km"`
	MinQueryLength          int           `yaml:"min_query_length" koanf:"min_query_length"`
	SuggestionLimit         int           `yaml:"suggestion_limit" koanf:"suggestion_limit"`
	Language                string        `yaml:"language" koanf:"language"`
	BiasDegrees             float64       `yaml:"bias_degrees" koanf:"bias_degrees"`
	ProviderTimeout         time.Duration `yaml:"provider_timeout" koanf:"provider_timeout"`
	RefetchOnHazardUpdate   bool          `yaml:"refetch_on_hazard_update" koanf:"refetch_on_hazard_update"`
	PreserveManualSelection bool          `yaml:"preserve_manual_selection" koanf:"preserve_manual_selection"`
	SessionTTL              time.Duration `yaml:"session_ttl" koanf:"session_ttl"`
	SweepInterval           time.Duration `yaml:"sweep_interval" koanf:"sweep_interval"`
	CurrentLocationAliases  []string      `yaml:"current_location_aliases" koanf:"current_location_aliases"`
}

// ProvidersConfig selects and configures the external services
type ProvidersConfig struct {
	Directions string         `yaml:"directions" koanf:"directions"` // osrm | google
	OSRM       ProviderConfig `yaml:"osrm" koanf:"osrm"`
	Google     ProviderConfig `yaml:"google" koanf:"google"`
	Photon     ProviderConfig `yaml:"photon" koanf:"photon"`
	Nominatim  ProviderConfig `yaml:"nominatim" koanf:"nominatim"`
	CacheTTL   time.Duration  `yaml:"cache_ttl" koanf:"cache_ttl"`
}

// ProviderConfig holds the connection settings of one provider
type ProviderConfig struct {
	BaseURL           string  `yaml:"base_url" koanf:"base_url"`
	APIKey            string  `yaml:"api_key" koanf:"api_key"`
	UserAgent         string  `yaml:"user_agent" koanf:"user_agent"`
	Profile           string  `yaml:"profile" koanf:"profile"`
	RequestsPerSecond float64 `yaml:"requests_per_second" koanf:"requests_per_second"`
	Burst             int     `yaml:"burst" koanf:"burst"`
}

// HazardsConfig locates the hazard report store. An empty DatabaseURL
// selects the in-memory store.
type HazardsConfig struct {
	DatabaseURL    string        `yaml:"database_url" koanf:"database_url"`
	AuthToken      string        `yaml:"auth_token" koanf:"auth_token"`
	Path           string        `yaml:"path" koanf:"path"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" koanf:"reconnect_delay"`
}

// ObservabilityConfig holds metrics and tracing settings
type ObservabilityConfig struct {
	MetricsPath string                      `yaml:"metrics_path" koanf:"metrics_path"`
	Tracing     observability.TracingConfig `yaml:"tracing" koanf:"tracing"`
}

// Sections are the top-level config keys Load reads
var Sections = []string{"server", "planner", "providers", "hazards", "observability"}

// Load unmarshals each section over the defaults and validates the result.
// unmarshal is normally prefab.Config.Unmarshal.
func Load(unmarshal func(path string, out interface{}) error) (*Config, error) {
	cfg := DefaultConfig()
	targets := map[string]interface{}{
		"server":        &cfg.Server,
		"planner":       &cfg.Planner,
		"providers":     &cfg.Providers,
		"hazards":       &cfg.Hazards,
		"observability": &cfg.Observability,
	}
	for _, section := range Sections {
		if err := unmarshal(section, targets[section]); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s section: %w", section, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the planner cannot run with
func (c *Config) Validate() error {
	var errs []error

	switch c.Providers.Directions {
	case "osrm":
	case "google":
		if c.Providers.Google.APIKey == "" {
			errs = append(errs, errors.New("providers.google.api_key is required when directions is google"))
		}
	default:
		errs = append(errs, fmt.Errorf("providers.directions must be osrm or google, got %q", c.Providers.Directions))
	}

	if c.Planner.CorridorKm <= 0 {
		errs = append(errs, errors.New("planner.corridor_km must be positive"))
	}
	if c.Planner.Debounce < 0 {
		errs = append(errs, errors.New("planner.debounce must not be negative"))
	}
	if c.Planner.MinQueryLength < 1 {
		errs = append(errs, errors.New("planner.min_query_length must be at least 1"))
	}
	if c.Planner.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("planner.provider_timeout must be positive"))
	}
	if c.Planner.SessionTTL <= 0 {
		errs = append(errs, errors.New("planner.session_ttl must be positive"))
	}

	return errors.Join(errs...)
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			CorsOrigins: []string{"*"},
		},
		Planner: PlannerConfig{
			Debounce:               400 * time.Millisecond,
			CorridorKm:             0.3,
			MinQueryLength:         2,
			SuggestionLimit:        8,
			Language:               "en",
			BiasDegrees:            0.72, // ~80km box
			ProviderTimeout:        10 * time.Second,
			SessionTTL:             30 * time.Minute,
			SweepInterval:          time.Minute,
			CurrentLocationAliases: []string{"my location", "current location"},
		},
		Providers: ProvidersConfig{
			Directions: "osrm",
			OSRM: ProviderConfig{
				BaseURL:           "https://router.project-osrm.org",
				Profile:           "driving",
				RequestsPerSecond: 1,
				Burst:             2,
			},
			Google: ProviderConfig{
				BaseURL: "https://routes.googleapis.com",
			},
			Photon: ProviderConfig{
				BaseURL:           "https://photon.komoot.io",
				RequestsPerSecond: 5,
				Burst:             5,
			},
			Nominatim: ProviderConfig{
				BaseURL:           "https://nominatim.openstreetmap.org",
				UserAgent:         "saferoute-server/1.0",
				RequestsPerSecond: 1, // public instance usage policy
				Burst:             1,
			},
			CacheTTL: time.Hour,
		},
		Hazards: HazardsConfig{
			Path:           "reports",
			ReconnectDelay: 5 * time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsPath: "/metrics",
			Tracing: observability.TracingConfig{
				ServiceName: "saferoute",
				Exporter:    "stdout",
				SampleRatio: 1,
			},
		},
	}
}
