package activity

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/schema"
)

// CapabilityProbe is the slice of the schema probe the recorder needs.
type CapabilityProbe interface {
	Has(ctx context.Context, cap schema.Capability) bool
}

// Recorder appends auth-relevant events and runs the anomaly detector
// inside the write path. It never fails the caller: a missing table is
// a silent no-op and store errors are logged.
type Recorder struct {
	store    model.ActivityStore
	probe    CapabilityProbe
	detector *Detector
	log      *logger.Logger
}

func NewRecorder(store model.ActivityStore, alerts model.AlertStore, probe CapabilityProbe, log *logger.Logger) *Recorder {
	return &Recorder{
		store:    store,
		probe:    probe,
		detector: NewDetector(store, alerts, log),
		log:      log,
	}
}

// Record derives the client fields, appends the event, and feeds it to
// the detector. Safe to call on every auth branch.
func (r *Recorder) Record(ctx context.Context, event model.ActivityEvent) {
	if !r.probe.Has(ctx, schema.CapActivityLog) {
		return
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.Device, event.Browser, event.OS = deriveClient(event.UserAgent)
	event.Location = deriveLocation(event.IP)

	if err := r.store.InsertEvent(ctx, event); err != nil {
		r.log.Error("failed to record activity event", "kind", event.Kind, "error", err)
		return
	}

	r.detector.Inspect(ctx, event)
}

// HistoryFor reads a user's event history.
func (r *Recorder) HistoryFor(ctx context.Context, userID uuid.UUID, query model.HistoryQuery) ([]model.ActivityEvent, error) {
	if !r.probe.Has(ctx, schema.CapActivityLog) {
		return []model.ActivityEvent{}, nil
	}
	return r.store.HistoryFor(ctx, userID, query)
}

// RecentFailures counts failed logins within the window, optionally
// narrowed to an origin and/or a user.
func (r *Recorder) RecentFailures(ctx context.Context, ip string, userID *uuid.UUID, window time.Duration) (int, error) {
	if !r.probe.Has(ctx, schema.CapActivityLog) {
		return 0, nil
	}
	return r.store.CountFailures(ctx, ip, userID, time.Now().UTC().Add(-window))
}
