package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/metrics"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

const (
	multipleIPWindow    = 24 * time.Hour
	multipleIPThreshold = 3
	failureWindow       = 15 * time.Minute
	failureThreshold    = 5
	alertDedupWindow    = time.Hour
)

// Detector evaluates anomaly rules against the just-written event and
// recent log slices. Its failures are logged, never propagated.
type Detector struct {
	store  model.ActivityStore
	alerts model.AlertStore
	log    *logger.Logger
}

func NewDetector(store model.ActivityStore, alerts model.AlertStore, log *logger.Logger) *Detector {
	return &Detector{store: store, alerts: alerts, log: log}
}

// Inspect runs the rules appropriate to the event kind.
func (d *Detector) Inspect(ctx context.Context, event model.ActivityEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.Error("anomaly detector panic", "panic", rec)
		}
	}()

	if event.UserID == nil {
		return
	}
	userID := *event.UserID

	switch {
	case event.Kind == model.EventLogin && event.Success:
		d.checkMultipleIPs(ctx, userID, event)
		d.checkSuspiciousLocation(ctx, userID, event)
	case event.Kind == model.EventFailedLogin:
		d.checkFailedAttempts(ctx, userID, event)
	}
}

func (d *Detector) checkMultipleIPs(ctx context.Context, userID uuid.UUID, event model.ActivityEvent) {
	ips, err := d.store.DistinctLoginIPs(ctx, userID, time.Now().UTC().Add(-multipleIPWindow))
	if err != nil {
		d.log.Error("multiple_ips rule query failed", "error", err)
		return
	}
	if len(ips) <= multipleIPThreshold {
		return
	}
	data, _ := json.Marshal(map[string]any{"ips": ips, "current_ip": event.IP})
	d.createOrUpdateAlert(ctx, model.Alert{
		UserID:       userID,
		Kind:         model.AlertMultipleIPs,
		Description:  fmt.Sprintf("Successful logins from %d distinct addresses in 24h: %s", len(ips), strings.Join(ips, ", ")),
		Severity:     model.SeverityMedium,
		ActivityData: data,
	})
}

func (d *Detector) checkFailedAttempts(ctx context.Context, userID uuid.UUID, event model.ActivityEvent) {
	// The rule counts failures from one origin; without an origin the
	// count would span every address the user failed from.
	if event.IP == "" {
		return
	}
	count, err := d.store.CountFailures(ctx, event.IP, &userID, time.Now().UTC().Add(-failureWindow))
	if err != nil {
		d.log.Error("failed_attempts rule query failed", "error", err)
		return
	}
	if count < failureThreshold {
		return
	}
	data, _ := json.Marshal(map[string]any{"ip": event.IP, "failures": count})
	d.createOrUpdateAlert(ctx, model.Alert{
		UserID:       userID,
		Kind:         model.AlertFailedAttempts,
		Description:  fmt.Sprintf("%d failed login attempts from %s within 15 minutes", count, event.IP),
		Severity:     model.SeverityHigh,
		ActivityData: data,
	})
}

func (d *Detector) checkSuspiciousLocation(ctx context.Context, userID uuid.UUID, event model.ActivityEvent) {
	previous, err := d.store.LastLoginFromOtherIP(ctx, userID, event.IP)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			d.log.Error("suspicious_location rule query failed", "error", err)
		}
		return
	}
	if previous.Location == "" {
		return
	}
	data, _ := json.Marshal(map[string]any{
		"current_ip":        event.IP,
		"current_location":  event.Location,
		"previous_ip":       previous.IP,
		"previous_location": previous.Location,
	})
	d.createOrUpdateAlert(ctx, model.Alert{
		UserID:       userID,
		Kind:         model.AlertSuspiciousLocation,
		Description:  fmt.Sprintf("Login from %s (%s) after previous login from %s (%s)", event.IP, event.Location, previous.IP, previous.Location),
		Severity:     model.SeverityMedium,
		ActivityData: data,
	})
}

// createOrUpdateAlert deduplicates per (user, kind): an unresolved
// alert created within the last hour is refreshed instead of a new row
// being inserted.
func (d *Detector) createOrUpdateAlert(ctx context.Context, alert model.Alert) {
	now := time.Now().UTC()
	existing, err := d.alerts.FindOpenAlert(ctx, alert.UserID, alert.Kind, now.Add(-alertDedupWindow))
	if err == nil {
		existing.Description = alert.Description
		existing.Severity = alert.Severity
		existing.ActivityData = alert.ActivityData
		existing.UpdatedAt = now
		if err := d.alerts.UpdateAlert(ctx, existing); err != nil {
			d.log.Error("failed to update alert", "kind", alert.Kind, "error", err)
		}
		return
	}
	if !errors.Is(err, model.ErrNotFound) {
		d.log.Error("alert lookup failed", "kind", alert.Kind, "error", err)
		return
	}

	alert.ID = uuid.New()
	alert.CreatedAt = now
	alert.UpdatedAt = now
	if err := d.alerts.InsertAlert(ctx, alert); err != nil {
		d.log.Error("failed to insert alert", "kind", alert.Kind, "error", err)
		return
	}
	metrics.AlertsRaised.WithLabelValues(alert.Kind).Inc()
}
