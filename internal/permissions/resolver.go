package permissions

import (
	"context"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

// Resolver maps an authenticated role to its effective permission set.
// Admins get the whole catalog; a missing catalog yields an empty set
// rather than an error so deployments behind on migrations keep
// serving requests.
type Resolver struct {
	store model.PermissionStore
	log   *logger.Logger
}

func NewResolver(store model.PermissionStore, log *logger.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns the permission keys for the role.
func (r *Resolver) Resolve(ctx context.Context, role string) []string {
	var (
		keys []string
		err  error
	)
	if role == model.RoleAdmin {
		keys, err = r.store.AllPermissions(ctx)
	} else {
		keys, err = r.store.RolePermissions(ctx, role)
	}
	if err != nil {
		r.log.Warn("permission lookup failed, resolving to empty set", "role", role, "error", err)
		return []string{}
	}
	if keys == nil {
		keys = []string{}
	}
	return keys
}
