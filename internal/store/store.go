// Package store is the persistence boundary of the RADIUS core. Handlers
// speak this interface only; the query language lives in the GORM
// implementation. Subscriber lookups and FindActiveSessionByUsername are
// tenant-scoped. FindNasByAddress (from which a datagram's tenant is taken),
// FindNasByID and CountActiveSessions take no tenant and span all tenants;
// session writes are keyed by the NAS-reported session id alone.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/easyisp/backend/internal/models"
)

// ErrNotFound is returned when no row matches a lookup
var ErrNotFound = errors.New("store: not found")

// Store is the adapter the RADIUS handlers are constructed with
type Store interface {
	// FindNasByAddress resolves a NAS whose primary or VPN address equals host
	FindNasByAddress(ctx context.Context, host string) (*models.Nas, error)

	// FindNasByID loads a NAS row; used by out-of-band CoA triggers
	FindNasByID(ctx context.Context, id uint) (*models.Nas, error)

	// FindSubscriberByUsername resolves a non-deleted subscriber within a tenant
	FindSubscriberByUsername(ctx context.Context, tenantID uint, username string) (*models.Subscriber, error)

	// TouchSubscriberSeen records the last-seen network address and MAC
	TouchSubscriberSeen(ctx context.Context, id uint, ip, mac string) error

	// UpsertSessionStart creates or re-opens the session row for s.SessionID.
	// Re-opening clears the stop time (NAS reconnect re-emitting Start).
	UpsertSessionStart(ctx context.Context, s *models.Session) error

	// UpdateSessionInterim updates counters on the active row for sessionID.
	// Returns false when no active row exists; never touches a stopped row.
	UpdateSessionInterim(ctx context.Context, sessionID, framedIP string, in, out, seconds int64) (bool, error)

	// CloseSession stops the active row in a single write
	CloseSession(ctx context.Context, sessionID string, stop time.Time, in, out, seconds int64, cause string) (bool, error)

	// CloseAllSessionsForNas sweeps every active session on a NAS
	CloseAllSessionsForNas(ctx context.Context, nasID uint, stop time.Time, cause string) (int64, error)

	// TouchNas marks a NAS online and records last-seen
	TouchNas(ctx context.Context, id uint) error

	// CountActiveSessions returns the number of rows with a null stop time
	CountActiveSessions(ctx context.Context) (int64, error)

	// FindActiveSessionByUsername locates the user's live session within a tenant
	FindActiveSessionByUsername(ctx context.Context, tenantID uint, username string) (*models.Session, error)
}
