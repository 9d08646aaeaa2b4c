package services

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/dpup/prefab/logging"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/dpup/saferoute/server/internal/lib/geo"
	"github.com/dpup/saferoute/server/internal/lib/hazard"
)

// NewValidator returns a validator that reports json field names and knows
// the hazard_category tag
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("hazard_category", func(fl validator.FieldLevel) bool {
		return hazard.ParseCategory(fl.Field().String()).Known()
	})
	return v
}

// ReportInput is a hazard report as submitted by a user
type ReportInput struct {
	Category          string   `json:"category" validate:"required,hazard_category"`
	Latitude          *float64 `json:"latitude" validate:"required,latitude"`
	Longitude         *float64 `json:"longitude" validate:"required,longitude"`
	PlaceName         string   `json:"place_name" validate:"max=200"`
	EstimatedTimeText string   `json:"estimated_time_text" validate:"max=100"`
	Comment           string   `json:"comment" validate:"max=1000"`
	UserID            string   `json:"user_id" validate:"max=128"`
}

// ReportService writes and lists hazard reports
type ReportService struct {
	store      hazard.Store
	geocoder   *Geocoder
	validate   *validator.Validate
	appVersion string
	now        func() time.Time
}

// NewReportService creates a report service. geocoder may be nil, in which
// case reports without a place name are stored without one.
func NewReportService(store hazard.Store, geocoder *Geocoder, appVersion string) *ReportService {
	return &ReportService{
		store:      store,
		geocoder:   geocoder,
		validate:   NewValidator(),
		appVersion: appVersion,
		now:        time.Now,
	}
}

// Submit validates and stores a new report
func (r *ReportService) Submit(ctx context.Context, in ReportInput) (hazard.Report, error) {
	if err := r.validate.Struct(in); err != nil {
		return hazard.Report{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	sub := hazard.Submission{
		ID:                uuid.NewString(),
		Location:          geo.Point{Latitude: *in.Latitude, Longitude: *in.Longitude},
		Category:          hazard.ParseCategory(in.Category),
		PlaceName:         strings.TrimSpace(in.PlaceName),
		Timestamp:         r.now().UTC(),
		EstimatedTimeText: in.EstimatedTimeText,
		Comment:           in.Comment,
		UserID:            in.UserID,
		AppVersion:        r.appVersion,
	}
	if sub.PlaceName == "" && r.geocoder != nil {
		sub.PlaceName = r.geocoder.PlaceLabel(ctx, sub.Location)
	}

	if err := r.store.Submit(ctx, sub); err != nil {
		logging.Errorw(ctx, "Reports: submit failed", "report", sub.ID, "error", err)
		return hazard.Report{}, fmt.Errorf("failed to submit report: %w", err)
	}
	logging.Infow(ctx, "Reports: report submitted", "report", sub.ID, "category", sub.Category)

	return hazard.Report{
		ID:                sub.ID,
		Location:          sub.Location,
		Category:          sub.Category,
		PlaceName:         sub.PlaceName,
		Timestamp:         sub.Timestamp,
		EstimatedTimeText: sub.EstimatedTimeText,
		Comment:           sub.Comment,
		UserID:            sub.UserID,
	}, nil
}

// List returns every report, newest first
func (r *ReportService) List(ctx context.Context) ([]hazard.Report, error) {
	snap, err := r.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return snap.Newest(), nil
}
