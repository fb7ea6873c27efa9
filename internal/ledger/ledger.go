// Package ledger records which devices have been provisioned so the one-time
// setup command runs at most once successfully per device.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	runerrors "github.com/droidrun-stack/droidrun-runner/internal/errors"
	"github.com/droidrun-stack/droidrun-runner/internal/supervisor"
)

// SetupStatus reports how Ensure satisfied a device.
type SetupStatus int

const (
	// AlreadyProvisioned means a marker existed and no process was spawned.
	AlreadyProvisioned SetupStatus = iota + 1
	// Provisioned means the setup action ran and succeeded just now.
	Provisioned
)

// String returns a human-readable status name.
func (s SetupStatus) String() string {
	switch s {
	case AlreadyProvisioned:
		return "already_provisioned"
	case Provisioned:
		return "provisioned"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// MarkerStore persists one boolean marker per device.
// Presence means provisioned; content is not interpreted.
type MarkerStore interface {
	Has(ctx context.Context, device string) (bool, error)
	Put(ctx context.Context, device string) error
}

// SetupAction runs the provisioning command for a device.
type SetupAction func(ctx context.Context) (supervisor.ExitResult, error)

// Ledger guards the setup action with a per-device marker.
//
// The check-then-act sequence in Ensure is not safe when two ledgers
// provision the same device concurrently; only one runner may drive a
// device at a time.
type Ledger struct {
	store  MarkerStore
	logger *slog.Logger
}

// New creates a Ledger backed by store.
func New(store MarkerStore, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{store: store, logger: logger}
}

// IsProvisioned reports whether a marker exists for device.
func (l *Ledger) IsProvisioned(ctx context.Context, device string) (bool, error) {
	return l.store.Has(ctx, device)
}

// Ensure makes sure device has been provisioned. If the marker exists it
// returns AlreadyProvisioned without calling setup. Otherwise it runs setup;
// the marker is written only when setup exits 0. A non-zero exit is returned
// as a SETUP_001 error carrying the captured output, and launch errors are
// returned as-is.
func (l *Ledger) Ensure(ctx context.Context, device string, setup SetupAction) (SetupStatus, error) {
	ok, err := l.store.Has(ctx, device)
	if err != nil {
		return 0, fmt.Errorf("checking setup marker for %s: %w", device, err)
	}
	if ok {
		l.logger.Debug("device already provisioned", "device", device)
		return AlreadyProvisioned, nil
	}

	l.logger.Info("provisioning device", "device", device)
	res, err := setup(ctx)
	if err != nil {
		return 0, err
	}
	if !res.Success() {
		return 0, runerrors.SetupFailed(device, res.ExitCode, res.Output)
	}

	if err := l.store.Put(ctx, device); err != nil {
		return 0, fmt.Errorf("recording setup marker for %s: %w", device, err)
	}
	l.logger.Info("device provisioned", "device", device)
	return Provisioned, nil
}
