package device

import (
	"context"
	"fmt"
)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the read-only device registry client.
//
// It keeps no cache: every call goes to the repository, so devices added or
// removed externally are seen by the next discovery request.
type Registry struct {
	repo   Repository
	logger Logger
}

// NewRegistry creates a registry client over repo.
func NewRegistry(repo Repository) *Registry {
	return &Registry{repo: repo, logger: noopLogger{}}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// ListDevices returns the devices owned by owner. Rows reported by the
// repository for any other owner are discarded. Store failures are wrapped
// in ErrRegistryUnavailable.
func (r *Registry) ListDevices(ctx context.Context, owner string) ([]Device, error) {
	rows, err := r.repo.ListByOwner(ctx, owner)
	if err != nil {
		r.logger.Warn("registry read failed", "owner", owner, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrRegistryUnavailable, err)
	}

	devices := make([]Device, 0, len(rows))
	for _, d := range rows {
		if d.Owner != owner {
			r.logger.Error("registry returned foreign device", "owner", owner, "device_id", d.ID)
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// OwnedIDs returns the set of device IDs belonging to owner.
func (r *Registry) OwnedIDs(ctx context.Context, owner string) (IDSet, error) {
	devices, err := r.ListDevices(ctx, owner)
	if err != nil {
		return nil, err
	}
	return IDs(devices), nil
}
