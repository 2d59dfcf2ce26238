package schema

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
)

// Capability names an optional column or table the deployment may or
// may not have migrated yet.
type Capability string

const (
	CapLockout         Capability = "lockout"
	CapTwoFactor       Capability = "two_factor"
	CapActivityLog     Capability = "activity_log"
	CapExtendedProfile Capability = "extended_profile"
)

// Querier is the slice of pgxpool.Pool the probe needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Probe detects optional schema capabilities once per process and
// serves them from memory afterwards. Has never returns an error: a
// failed detection query is logged and cached as absent.
type Probe struct {
	db  Querier
	log *logger.Logger

	once sync.Once
	caps map[Capability]bool
}

func NewProbe(db Querier, log *logger.Logger) *Probe {
	return &Probe{db: db, log: log}
}

// Has reports whether the capability is present. The first call runs
// the detection queries; later calls are memory reads. The first
// writer is the first reader, so no lock is needed after init.
func (p *Probe) Has(ctx context.Context, cap Capability) bool {
	p.once.Do(func() { p.detect(ctx) })
	return p.caps[cap]
}

func (p *Probe) detect(ctx context.Context) {
	p.caps = map[Capability]bool{
		CapLockout:         p.hasColumn(ctx, "users", "locked_until") && p.hasColumn(ctx, "users", "failed_login_attempts"),
		CapTwoFactor:       p.hasColumn(ctx, "users", "is_2fa_enabled"),
		CapActivityLog:     p.hasTable(ctx, "activity_logs"),
		CapExtendedProfile: p.hasColumn(ctx, "users", "specialties"),
	}
}

func (p *Probe) hasColumn(ctx context.Context, table, column string) bool {
	var exists bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = $1 AND column_name = $2
		)
	`, table, column).Scan(&exists)
	if err != nil {
		p.log.Warn("schema probe query failed, caching capability as absent",
			"table", table, "column", column, "error", err)
		return false
	}
	return exists
}

func (p *Probe) hasTable(ctx context.Context, table string) bool {
	var exists bool
	err := p.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables WHERE table_name = $1
		)
	`, table).Scan(&exists)
	if err != nil {
		p.log.Warn("schema probe query failed, caching capability as absent",
			"table", table, "error", err)
		return false
	}
	return exists
}
