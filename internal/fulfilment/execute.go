package fulfilment

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lumina-bridge/internal/audit"
	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/metrics"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// Execute runs each command against its device group and returns one
// result per device per execution. Failures are scoped to the device (or,
// for an unsupported command, to the group); siblings always run.
func (r *Router) Execute(ctx context.Context, owner string, commands []ExecuteCommand) (ExecutePayload, error) {
	owned, err := r.registry.OwnedIDs(ctx, owner)
	if err != nil {
		return ExecutePayload{}, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	out := ExecutePayload{Commands: []CommandResult{}}
	for _, cmd := range commands {
		ids := refIDs(cmd.Devices)
		if len(ids) == 0 {
			continue
		}
		if len(cmd.Execution) == 0 {
			out.Commands = append(out.Commands, groupError(ids, ErrorProtocol))
			continue
		}

		for _, exec := range cmd.Execution {
			on, code := parseOnOff(exec)
			if code != "" {
				out.Commands = append(out.Commands, groupError(ids, code))
				continue
			}
			out.Commands = append(out.Commands, r.executeGroup(ctx, owner, owned, ids, on)...)
		}
	}
	return out, nil
}

// parseOnOff returns the desired state, or an error code for an execution
// that cannot be run.
func parseOnOff(exec Execution) (bool, string) {
	if exec.Command != CommandOnOff {
		return false, ErrorNotSupported
	}
	var p OnOffParams
	if len(exec.Params) == 0 || json.Unmarshal(exec.Params, &p) != nil || p.On == nil {
		return false, ErrorProtocol
	}
	return *p.On, ""
}

func groupError(ids []string, code string) CommandResult {
	for range ids {
		metrics.IncCommandResult(StatusError, code)
	}
	return CommandResult{IDs: ids, Status: StatusError, ErrorCode: code}
}

// executeGroup runs one command for every id with bounded parallelism and
// returns the results in request order.
func (r *Router) executeGroup(ctx context.Context, owner string, owned device.IDSet, ids []string, on bool) []CommandResult {
	results := make([]CommandResult, len(ids))

	var g errgroup.Group
	g.SetLimit(r.cfg.ExecuteParallelism)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = r.executeOne(ctx, owner, owned, id, on)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // workers never return errors

	return results
}

func (r *Router) executeOne(ctx context.Context, owner string, owned device.IDSet, id string, on bool) CommandResult {
	res := r.runCommand(ctx, owned, id, on)

	metrics.IncCommandResult(res.Status, res.ErrorCode)
	details := map[string]any{"on": on, "status": res.Status}
	if res.ErrorCode != "" {
		details["error_code"] = res.ErrorCode
	}
	if r.history != nil {
		outcome := res.Status
		if res.ErrorCode != "" {
			outcome = res.ErrorCode
		}
		r.history.RecordCommand(id, on, outcome, r.now())
	}
	r.record(ctx, &audit.Entry{
		Action:   audit.ActionCommand,
		Owner:    owner,
		DeviceID: id,
		Source:   "execute",
		Details:  details,
	})
	return res
}

func (r *Router) runCommand(ctx context.Context, owned device.IDSet, id string, on bool) CommandResult {
	ids := []string{id}

	if !owned.Has(id) {
		return CommandResult{IDs: ids, Status: StatusError, ErrorCode: ErrorDeviceNotFound}
	}

	if err := r.commands.PublishCommand(ctx, id, on); err != nil {
		r.logger.Warn("command publish failed", "device_id", id, "on", on, "error", err)
		return CommandResult{IDs: ids, Status: StatusError, ErrorCode: ErrorHard}
	}

	// Optimistic write. It loses to any telemetry already stamped later.
	desired := state.State{Online: true, On: on}
	if _, err := r.cache.Put(ctx, id, desired, r.now(), state.SourceCommand); err != nil {
		r.logger.Warn("optimistic state write failed", "device_id", id, "error", err)
		return CommandResult{IDs: ids, Status: StatusError, ErrorCode: ErrorTransient}
	}

	states, err := r.cache.Get(ctx, ids)
	if err != nil {
		r.logger.Warn("state read-back failed", "device_id", id, "error", err)
		return CommandResult{IDs: ids, Status: StatusError, ErrorCode: ErrorTransient}
	}
	current := states[id]

	return CommandResult{
		IDs:    ids,
		Status: StatusSuccess,
		States: &StateReport{Online: current.Online, On: current.On},
	}
}
