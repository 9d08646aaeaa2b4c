package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/dpup/prefab"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/dpup/saferoute/server/internal/cache"
	"github.com/dpup/saferoute/server/internal/clients/firebase"
	"github.com/dpup/saferoute/server/internal/clients/google"
	"github.com/dpup/saferoute/server/internal/clients/httpx"
	"github.com/dpup/saferoute/server/internal/clients/nominatim"
	"github.com/dpup/saferoute/server/internal/clients/osrm"
	"github.com/dpup/saferoute/server/internal/clients/photon"
	"github.com/dpup/saferoute/server/internal/config"
	"github.com/dpup/saferoute/server/internal/httpapi"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/routing"
	"github.com/dpup/saferoute/server/internal/observability"
	"github.com/dpup/saferoute/server/internal/services"
)

const cacheCleanupInterval = 10 * time.Minute

func main() {
	ctx := context.Background()

	// Configuration is loaded from prefab.yaml and environment variables with PF__ prefix
	appConfig, err := config.Load(prefab.Config.Unmarshal)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	shutdownTracing, err := observability.InitTracing(ctx, appConfig.Observability.Tracing)
	if err != nil {
		log.Fatalf("Failed to initialise tracing: %v", err)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing)

	collector, err := observability.NewCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatalf("Failed to register metrics: %v", err)
	}

	cacheInstance := cache.NewCache()
	cacheInstance.StartPeriodicCleanup(ctx, cacheCleanupInterval)

	providers := appConfig.Providers
	fetcher := directionsClient(providers, collector)
	searcher := photon.NewClientWithHTTPDoer(providers.Photon.BaseURL, providerDoer("photon", providers.Photon, collector))
	geocoderClient := nominatim.NewClientWithHTTPDoer(providers.Nominatim.BaseURL, providers.Nominatim.UserAgent, providerDoer("nominatim", providers.Nominatim, collector))

	store := hazardStore(appConfig.Hazards, collector)

	plannerCfg := appConfig.Planner
	geocoder := services.NewGeocoder(geocoderClient, geocoderClient, cacheInstance, providers.CacheTTL, plannerCfg.ProviderTimeout, plannerCfg.CurrentLocationAliases)
	suggestions := services.NewSuggestionEngine(searcher, plannerCfg.MinQueryLength, plannerCfg.SuggestionLimit, plannerCfg.Language, plannerCfg.BiasDegrees, plannerCfg.ProviderTimeout)

	feed := services.NewHazardFeed(store, appConfig.Hazards.ReconnectDelay, collector)
	feed.Start(ctx)
	defer feed.Stop()

	sessions := services.NewPlanner(ctx, plannerCfg, services.SessionOptions{
		Geocoder:    geocoder,
		Suggestions: suggestions,
		Fetcher:     fetcher,
		Feed:        feed,
		Metrics:     collector,
	})
	sessions.StartSweeper(ctx, plannerCfg.SweepInterval)
	defer sessions.Shutdown()

	reports := services.NewReportService(store, geocoder, "saferoute-server/1.0")
	api := httpapi.New(sessions, reports, collector, appConfig.Server.CorsOrigins)
	apiHandler := api.Handler()

	log.Printf("SafeRoute API Server starting")
	log.Printf("Directions provider: %s", providers.Directions)
	log.Printf("Hazard corridor: %.2f km", plannerCfg.CorridorKm)

	// Server configuration (port, etc.) will be loaded from prefab.yaml/env vars
	server := prefab.New(
		prefab.WithHTTPHandlerFunc("/v1/", apiHandler.ServeHTTP),
		prefab.WithHTTPHandlerFunc(appConfig.Observability.MetricsPath, collector.Handler().ServeHTTP),
		prefab.WithHTTPHandlerFunc("/", homepageHandler),
	)

	// Start the server (blocks until shutdown)
	if err := server.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// providerDoer wraps the default transport with the provider's rate limit and
// request metrics
func providerDoer(name string, cfg config.ProviderConfig, collector *observability.Collector) httpx.HTTPDoer {
	var doer httpx.HTTPDoer = httpx.NewHTTPClient()
	if cfg.RequestsPerSecond > 0 {
		doer = httpx.RateLimited(doer, cfg.RequestsPerSecond, cfg.Burst)
	}
	return httpx.Instrumented(doer, name, collector)
}

func directionsClient(providers config.ProvidersConfig, collector *observability.Collector) routing.Fetcher {
	if providers.Directions == "google" {
		return google.NewClientWithHTTPDoer(providers.Google.APIKey, providers.Google.BaseURL, providerDoer("google", providers.Google, collector))
	}
	return osrm.NewClientWithHTTPDoer(providers.OSRM.BaseURL, providers.OSRM.Profile, providerDoer("osrm", providers.OSRM, collector))
}

func hazardStore(cfg config.HazardsConfig, collector *observability.Collector) hazard.Store {
	if cfg.DatabaseURL == "" {
		log.Printf("No hazard database configured; using in-memory report store")
		return hazard.NewMemoryStore()
	}
	log.Printf("Hazard reports: %s/%s", cfg.DatabaseURL, cfg.Path)
	client := firebase.NewClientWithHTTPDoer(cfg.DatabaseURL, cfg.Path, cfg.AuthToken, httpx.Instrumented(httpx.NewHTTPClient(), "firebase", collector))
	// Streams stay open indefinitely, so they skip the request timeout
	return client.WithStreamDoer(&http.Client{})
}

// homepageHandler serves a simple HTML homepage at the server root
func homepageHandler(w http.ResponseWriter, r *http.Request) {
	// Only handle the root path
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	html := `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <title>SafeRoute</title>
    <style>
        body {
            font-family: 'Courier New', Consolas, monospace;
            background: #000;
            color: #0f0;
            padding: 20px;
            line-height: 1.4;
        }
        a { color: #0ff; text-decoration: none; }
        a:hover { text-decoration: underline; }
        pre { margin: 0; }
        .header { color: #ff0; }
    </style>
</head>
<body>
<pre>
<span class="header">SafeRoute</span>

Hazard-aware route planning. Routes between two places are ranked by the
number of user-reported hazards along them, then by travel time.

<span class="header">API Endpoints:</span>

Sessions:
  POST   /v1/sessions                                Start a route search session
  GET    /v1/sessions/{id}                           Session state, routes, and errors
  PUT    /v1/sessions/{id}/location                  Report device location
  PUT    /v1/sessions/{id}/endpoints/{from|to}       Set endpoint text
  GET    /v1/sessions/{id}/endpoints/{field}/suggestions
  POST   /v1/sessions/{id}/endpoints/{field}/select  Pick a suggestion
  POST   /v1/sessions/{id}/search                    Search and rank routes
  POST   /v1/sessions/{id}/routes/select             Select a route
  POST   /v1/sessions/{id}/close                     Close the search
  GET    /v1/sessions/{id}/kml                       Export routes as KML
  DELETE /v1/sessions/{id}

Hazards:
  <a href="/v1/reports">GET /v1/reports</a>          Reports, newest first
  POST /v1/reports                                   Submit a report
  <a href="/v1/categories">GET /v1/categories</a>       Categories and map styles

<span class="header">Data Sources:</span>
  • OSRM / Google Routes  - Alternative routes
  • Photon                - Place suggestions
  • Nominatim             - Geocoding and place names
</pre>
</body>
</html>`

	if _, err := fmt.Fprint(w, html); err != nil {
		slog.Error("Failed to write homepage HTML", "error", err)
	}
}
