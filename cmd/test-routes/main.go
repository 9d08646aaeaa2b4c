package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/dpup/saferoute/server/internal/clients/firebase"
	"github.com/dpup/saferoute/server/internal/clients/google"
	"github.com/dpup/saferoute/server/internal/clients/osrm"
	"github.com/dpup/saferoute/server/internal/httpapi"
	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
	"github.com/dpup/saferoute/server/internal/lib/routing"
)

func main() {
	var (
		provider    = flag.String("provider", "osrm", "Directions provider: osrm or google")
		osrmURL     = flag.String("osrm-url", "https://router.project-osrm.org", "OSRM base URL")
		apiKey      = flag.String("api-key", "", "Google Routes API key (or set GOOGLE_ROUTES_API_KEY env var)")
		originStr   = flag.String("origin", "13.006700,80.220600", "Origin coordinates (lat,lon)")
		destStr     = flag.String("dest", "13.050000,80.282400", "Destination coordinates (lat,lon)")
		databaseURL = flag.String("hazards", "", "Hazard database URL; empty scores against no hazards")
		corridorKm  = flag.Float64("corridor", 0.3, "Hazard corridor half-width in km")
		kmlOut      = flag.String("kml", "", "Write the ranked routes to this KML file")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		fmt.Printf("Route Ranking Test Tool\n\n")
		fmt.Printf("Fetches alternative routes, scores them against hazard reports, and prints the ranking.\n\n")
		fmt.Printf("Usage: %s [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -origin=\"13.0067,80.2206\" -dest=\"13.05,80.2824\"\n", os.Args[0])
		fmt.Printf("  %s -provider=google -api-key=YOUR_KEY -kml=routes.kml\n", os.Args[0])
		fmt.Printf("  %s -hazards=https://example-default-rtdb.firebaseio.com\n", os.Args[0])
		return
	}

	origin, err := parsePoint(*originStr)
	if err != nil {
		log.Fatalf("Invalid origin coordinates: %v", err)
	}
	destination, err := parsePoint(*destStr)
	if err != nil {
		log.Fatalf("Invalid destination coordinates: %v", err)
	}

	var fetcher routing.Fetcher
	switch *provider {
	case "osrm":
		fetcher = osrm.NewClient(*osrmURL, "driving")
	case "google":
		key := *apiKey
		if key == "" {
			key = os.Getenv("GOOGLE_ROUTES_API_KEY")
		}
		if key == "" {
			log.Fatal("Google Routes API key required. Use -api-key flag or GOOGLE_ROUTES_API_KEY env var")
		}
		fetcher = google.NewClient(key)
	default:
		log.Fatalf("Unknown provider %q", *provider)
	}

	fmt.Printf("Route Ranking Test\n")
	fmt.Printf("==================\n")
	fmt.Printf("Provider: %s\n", *provider)
	fmt.Printf("Origin: %.6f, %.6f\n", origin.Latitude, origin.Longitude)
	fmt.Printf("Destination: %.6f, %.6f\n", destination.Latitude, destination.Longitude)
	fmt.Printf("\n")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var hazards []hazard.Report
	if *databaseURL != "" {
		snap, err := firebase.NewClient(*databaseURL, "reports", "").Snapshot(ctx)
		if err != nil {
			log.Fatalf("Hazard snapshot failed: %v", err)
		}
		hazards = snap.Hazards()
		fmt.Printf("Loaded %d hazard reports\n", len(hazards))
	}

	routes, err := fetcher.FetchRoutes(ctx, origin, destination)
	if err != nil {
		log.Fatalf("FetchRoutes failed: %v", err)
	}

	set := routing.NewRouteSet(routing.NewScorer(*corridorKm).Score(routes, hazards))
	fmt.Printf("✅ %d routes ranked\n", len(set.Routes))
	for i, r := range set.Routes {
		fmt.Printf("  %d. %d hazards, %d min, %.1f km (%d points)\n", i+1, r.HazardCount, r.DurationMin, r.DistanceKm, len(r.Polyline))
		for _, h := range r.Hazards {
			fmt.Printf("       %s %s at %.5f,%.5f\n", h.Category.Style().Glyph, h.Category, h.Location.Latitude, h.Location.Longitude)
		}
	}

	if *kmlOut != "" {
		f, err := os.Create(*kmlOut)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", *kmlOut, err)
		}
		defer f.Close()
		if err := httpapi.RoutesKML(set).WriteIndent(f, "", "  "); err != nil {
			log.Fatalf("Failed to write KML: %v", err)
		}
		fmt.Printf("Wrote %s\n", *kmlOut)
	}
}

func parsePoint(s string) (geo.Point, error) {
	var lat, lon float64
	if _, err := fmt.Sscanf(s, "%f,%f", &lat, &lon); err != nil {
		return geo.Point{}, err
	}
	return geo.NewPoint(lat, lon)
}
