// Package persist stores and restores whole-store snapshots. The scheduler
// mutates in memory; the host saves a snapshot after every successful write
// and loads one at boot. Durability beyond that is out of scope.
package persist

import (
	"context"
	"errors"

	"github.com/careops/priority-token-scheduling/internal/token"
)

// ErrNoSnapshot is returned by Load when nothing has been persisted yet.
var ErrNoSnapshot = errors.New("no snapshot found")

type Persister interface {
	Load(ctx context.Context) (*token.Snapshot, error)
	Save(ctx context.Context, snap *token.Snapshot) error
}
