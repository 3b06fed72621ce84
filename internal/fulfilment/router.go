package fulfilment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/lumina-bridge/internal/audit"
	"github.com/nerrad567/lumina-bridge/internal/bus"
	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/metrics"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// Registry lists an owner's devices.
type Registry interface {
	ListDevices(ctx context.Context, owner string) ([]device.Device, error)
	OwnedIDs(ctx context.Context, owner string) (device.IDSet, error)
}

// StateCache reads and writes last known device state.
type StateCache interface {
	Get(ctx context.Context, ids []string) (map[string]state.State, error)
	Put(ctx context.Context, deviceID string, s state.State, ts time.Time, src state.Source) (bool, error)
}

// AuditRecorder stores audit entries.
type AuditRecorder interface {
	Create(ctx context.Context, e *audit.Entry) error
}

// CommandRecorder keeps a history of command outcomes.
type CommandRecorder interface {
	RecordCommand(deviceID string, on bool, outcome string, at time.Time)
}

// Logger is the logging interface used by the router.
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

// Config holds the metadata reported in discovery.
type Config struct {
	Manufacturer string
	DefaultModel string
	// ExecuteParallelism bounds concurrent device commands within one
	// execute request.
	ExecuteParallelism int
}

const defaultExecuteParallelism = 8

// Router dispatches intent envelopes for an authenticated owner.
type Router struct {
	registry Registry
	cache    StateCache
	commands bus.Commander
	audit    AuditRecorder
	history  CommandRecorder
	cfg      Config
	logger   Logger
	now      func() time.Time
}

// NewRouter creates a router.
func NewRouter(registry Registry, cache StateCache, commands bus.Commander, cfg Config) *Router {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "switch-1"
	}
	if cfg.ExecuteParallelism <= 0 {
		cfg.ExecuteParallelism = defaultExecuteParallelism
	}
	return &Router{
		registry: registry,
		cache:    cache,
		commands: commands,
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the router.
func (r *Router) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// SetAudit enables audit entries for executed commands and discovery.
func (r *Router) SetAudit(rec AuditRecorder) {
	r.audit = rec
}

// SetCommandRecorder enables command history for executed commands.
func (r *Router) SetCommandRecorder(rec CommandRecorder) {
	r.history = rec
}

// Handle routes req for owner.
//
// The returned Response is always well formed. A non-nil error is either
// ErrBadRequest (the envelope is unusable) or ErrInternal (the payload
// carries internalError); the transport chooses the status from it.
// Unknown intents are answered with notSupported and no error. A missing
// requestId is replaced with the current time in Unix milliseconds.
func (r *Router) Handle(ctx context.Context, owner string, req Request) (Response, error) {
	resp := Response{RequestID: req.RequestID}
	if resp.RequestID == "" {
		resp.RequestID = strconv.FormatInt(r.now().UnixMilli(), 10)
	}

	if len(req.Inputs) == 0 || req.Inputs[0].Intent == "" {
		resp.Payload = ErrorPayload{ErrorCode: ErrorProtocol}
		return resp, fmt.Errorf("%w: no intent", ErrBadRequest)
	}
	input := req.Inputs[0]

	start := time.Now()
	name := intentLabel(input.Intent)

	payload, err := r.dispatch(ctx, owner, input)
	if err == nil && ctx.Err() != nil {
		err = fmt.Errorf("%w: %w", ErrInternal, ctx.Err())
	}

	switch {
	case err == nil:
		resp.Payload = payload
		metrics.ObserveIntent(name, metrics.ResultSuccess, time.Since(start))
	case errors.Is(err, ErrBadRequest):
		resp.Payload = ErrorPayload{ErrorCode: ErrorProtocol}
		metrics.ObserveIntent(name, metrics.ResultError, time.Since(start))
	default:
		if !errors.Is(err, ErrInternal) {
			err = fmt.Errorf("%w: %w", ErrInternal, err)
		}
		resp.Payload = ErrorPayload{ErrorCode: ErrorInternal}
		metrics.ObserveIntent(name, metrics.ResultError, time.Since(start))
		r.logger.Error("intent failed",
			"intent", input.Intent, "owner", owner,
			"request_id", resp.RequestID, "error", err)
	}
	return resp, err
}

func (r *Router) dispatch(ctx context.Context, owner string, input Input) (any, error) {
	switch input.Intent {
	case IntentSync:
		return r.Sync(ctx, owner)

	case IntentQuery:
		var p QueryRequest
		if err := decodePayload(input.Payload, &p); err != nil {
			return nil, err
		}
		return r.Query(ctx, owner, refIDs(p.Devices))

	case IntentExecute:
		var p ExecuteRequest
		if err := decodePayload(input.Payload, &p); err != nil {
			return nil, err
		}
		return r.Execute(ctx, owner, p.Commands)

	case IntentDisconnect:
		r.logger.Info("owner unlinked", "owner", owner)
		return EmptyPayload{}, nil

	default:
		r.logger.Debug("unsupported intent", "intent", input.Intent)
		return ErrorPayload{ErrorCode: ErrorNotSupported}, nil
	}
}

// Sync lists the owner's devices in the platform schema. An owner with no
// devices gets an empty, non-nil list.
func (r *Router) Sync(ctx context.Context, owner string) (SyncPayload, error) {
	devices, err := r.registry.ListDevices(ctx, owner)
	if err != nil {
		return SyncPayload{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	out := SyncPayload{AgentUserID: owner, Devices: make([]SyncDevice, 0, len(devices))}
	for _, d := range devices {
		out.Devices = append(out.Devices, r.describe(d))
	}

	r.record(ctx, &audit.Entry{
		Action:  audit.ActionSync,
		Owner:   owner,
		Source:  "sync",
		Details: map[string]any{"devices": len(out.Devices)},
	})
	return out, nil
}

func (r *Router) describe(d device.Device) SyncDevice {
	model := d.Model
	if model == "" {
		model = r.cfg.DefaultModel
	}
	name := d.Name
	if strings.TrimSpace(name) == "" {
		name = d.ID
	}
	return SyncDevice{
		ID:              d.ID,
		Type:            DeviceTypeSwitch,
		Traits:          []string{TraitOnOff},
		Name:            DeviceName{Name: name},
		WillReportState: false,
		DeviceInfo:      DeviceInfo{Manufacturer: r.cfg.Manufacturer, Model: model},
	}
}

// Query reports the last known state of each requested id. Ids the owner
// does not own are reported as deviceNotFound; owned ids without recorded
// state get the default.
func (r *Router) Query(ctx context.Context, owner string, ids []string) (QueryPayload, error) {
	owned, err := r.registry.OwnedIDs(ctx, owner)
	if err != nil {
		return QueryPayload{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	lookup := make([]string, 0, len(ids))
	for _, id := range ids {
		if owned.Has(id) {
			lookup = append(lookup, id)
		}
	}

	states, err := r.cache.Get(ctx, lookup)
	if err != nil {
		return QueryPayload{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	out := QueryPayload{Devices: make(map[string]DeviceStatus, len(ids))}
	for _, id := range ids {
		s, ok := states[id]
		if !ok {
			out.Devices[id] = DeviceStatus{Status: StatusError, ErrorCode: ErrorDeviceNotFound}
			continue
		}
		online, on := s.Online, s.On
		out.Devices[id] = DeviceStatus{Online: &online, On: &on, Status: StatusSuccess}
	}
	return out, nil
}

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: missing payload", ErrBadRequest)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	return nil
}

func refIDs(refs []DeviceRef) []string {
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids
}

func intentLabel(intent string) string {
	switch intent {
	case IntentSync:
		return "sync"
	case IntentQuery:
		return "query"
	case IntentExecute:
		return "execute"
	case IntentDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// record writes an audit entry. Failures are logged and never affect the
// response.
func (r *Router) record(ctx context.Context, e *audit.Entry) {
	if r.audit == nil {
		return
	}
	if err := r.audit.Create(ctx, e); err != nil {
		r.logger.Warn("audit write failed", "action", e.Action, "owner", e.Owner, "error", err)
	}
}
