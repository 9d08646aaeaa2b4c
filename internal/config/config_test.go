package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 400*time.Millisecond, cfg.Planner.Debounce)
	assert.Equal(t, 0.3, cfg.Planner.CorridorKm)
	assert.Equal(t, 2, cfg.Planner.MinQueryLength)
	assert.False(t, cfg.Planner.RefetchOnHazardUpdate)
	assert.False(t, cfg.Planner.PreserveManualSelection)
	assert.Equal(t, "osrm", cfg.Providers.Directions)
	assert.Empty(t, cfg.Hazards.DatabaseURL)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Providers.Directions = "google"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")

	cfg.Providers.Google.APIKey = "key"
	assert.NoError(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Providers.Directions = "mapbox"
	cfg.Planner.CorridorKm = 0
	cfg.Planner.MinQueryLength = 0
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "providers.directions")
	assert.Contains(t, err.Error(), "corridor_km")
	assert.Contains(t, err.Error(), "min_query_length")
}

func TestLoad(t *testing.T) {
	var sections []string
	cfg, err := Load(func(path string, out interface{}) error {
		sections = append(sections, path)
		if p, ok := out.(*PlannerConfig); ok {
			p.PreserveManualSelection = true
		}
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, Sections, sections)
	assert.True(t, cfg.Planner.PreserveManualSelection)
	assert.Equal(t, 400*time.Millisecond, cfg.Planner.Debounce, "defaults survive partial config")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(func(path string, out interface{}) error {
		if path == "hazards" {
			return errors.New("bad yaml")
		}
		return nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hazards")

	_, err = Load(func(path string, out interface{}) error {
		if p, ok := out.(*ProvidersConfig); ok {
			p.Directions = ""
		}
		return nil
	})
	assert.Error(t, err)
}
