package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/address"
	"github.com/evanofslack/dh-dyn-update/internal/logger"
	"github.com/evanofslack/dh-dyn-update/internal/metrics"
	"github.com/evanofslack/dh-dyn-update/internal/provider"
	"github.com/evanofslack/dh-dyn-update/internal/state"
)

const DefaultComment = "Automated DNS update by dh-dyn-update"

// ErrUnknownFamily means a local address could not be mapped to a record
// type. The caller must stop rather than publish it.
var ErrUnknownFamily = errors.New("unknown address family")

type Observer interface {
	Observe(ctx context.Context) address.Set
}

// Reconciler keeps the address records of one hostname in line with the
// addresses observed locally. Calls must not overlap.
type Reconciler struct {
	hostname string
	observer Observer
	provider provider.Provider
	state    state.Manager
	metrics  *metrics.Metrics
	dryRun   bool
	comment  string
}

type Option func(*Reconciler)

func WithDryRun(dryRun bool) Option {
	return func(r *Reconciler) { r.dryRun = dryRun }
}

func WithComment(comment string) Option {
	return func(r *Reconciler) {
		if comment != "" {
			r.comment = comment
		}
	}
}

func New(hostname string, obs Observer, p provider.Provider, sm state.Manager, m *metrics.Metrics, opts ...Option) (*Reconciler, error) {
	if hostname == "" {
		return nil, fmt.Errorf("hostname required")
	}
	if obs == nil || p == nil || sm == nil {
		return nil, fmt.Errorf("observer, provider and state manager required")
	}
	r := &Reconciler{
		hostname: normalizeName(hostname),
		observer: obs,
		provider: p,
		state:    sm,
		metrics:  m,
		comment:  DefaultComment,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Observe returns the current local addresses without touching the provider.
func (r *Reconciler) Observe(ctx context.Context) address.Set {
	return r.observer.Observe(ctx)
}

// Poll observes the local addresses and reconciles the provider only when an
// address family changed since the previous poll. The new snapshot is kept
// even when reconciliation fails, so a failed update is not retried until the
// address changes again.
func (r *Reconciler) Poll(ctx context.Context) (Results, error) {
	start := time.Now()
	defer func() { r.metrics.SetPollDuration(time.Since(start)) }()

	current := r.observer.Observe(ctx)

	previous, err := r.state.Load(ctx)
	if err != nil {
		r.metrics.IncPollRun("failure")
		return Results{}, fmt.Errorf("load state: %w", err)
	}

	changes := state.Compare(current, previous)
	slog.Debug("State comparison", "changed", len(changes.Changed), "unchanged", len(changes.Unchanged))
	if changes.IsEmpty() {
		slog.Debug("No address changes, skipping update")
		r.metrics.IncPollRun("unchanged")
		return Results{}, nil
	}
	for _, f := range changes.Changed {
		prev, _ := previous.Lookup(f)
		cur, _ := current.Lookup(f)
		slog.Info("Address changed", "family", f.String(), "previous", prev.String(), "current", cur.String())
		r.metrics.IncAddressChange(f.String())
	}

	if err := r.state.Save(ctx, current); err != nil {
		r.metrics.IncPollRun("failure")
		return Results{}, fmt.Errorf("save state: %w", err)
	}

	results, err := r.Reconcile(ctx, current.Clone())
	if err != nil || len(results.Failures) > 0 {
		r.metrics.IncPollRun("failure")
	} else {
		r.metrics.IncPollRun("success")
	}
	return results, err
}

// Reconcile brings the provider's address records for the hostname in line
// with local. It fails only when the records cannot be fetched or local holds
// an address of unknown family; rejected adds and removes are reported in
// Results.Failures.
func (r *Reconciler) Reconcile(ctx context.Context, local address.Set) (Results, error) {
	results := Results{}
	local = local.Clone()

	targets, err := r.fetchTargetRecords(ctx, &local, &results)
	if err != nil {
		logger.Critical("Failed to fetch DNS records", "hostname", r.hostname, "error", err)
		return results, fmt.Errorf("fetch records: %w", err)
	}

	matched := make(map[int]bool)
	for _, record := range targets {
		current, err := address.Parse(record.Value)
		if err != nil {
			slog.Warn("Skipping address record with unparseable value", "record", record.Name, "type", record.Type, "value", record.Value)
			continue
		}

		found, stale := false, false
		for i, a := range local {
			if a.Family() != current.Family() {
				continue
			}
			if a.Equal(current) {
				matched[i] = true
				found = true
				break
			}
			stale = true
		}

		switch {
		case found:
			slog.Info("DNS record already up to date", "record", record.Name, "type", record.Type, "value", record.Value)
			results.Skipped = append(results.Skipped, record)
			r.metrics.IncDNSOperation("skip", record.Type)
		case stale:
			r.remove(ctx, record, &results)
		default:
			slog.Debug("Ignoring record for unobserved family", "record", record.Name, "type", record.Type, "value", record.Value)
		}
	}

	// highest index first so earlier positions stay valid
	indices := slices.Sorted(maps.Keys(matched))
	for i := len(indices) - 1; i >= 0; i-- {
		local = slices.Delete(local, indices[i], indices[i]+1)
	}

	for _, a := range local {
		if _, ok := a.Family().RecordType(); !ok {
			logger.Critical("Local address has unknown family", "address", a.String())
			return results, fmt.Errorf("%w: %q", ErrUnknownFamily, a.String())
		}
	}
	for _, a := range local {
		recordType, _ := a.Family().RecordType()
		r.add(ctx, provider.Record{
			Name:    r.hostname,
			Type:    recordType,
			Value:   a.String(),
			Comment: r.comment,
		}, &results)
	}

	slog.Info("Reconciliation complete", "added", len(results.Added), "removed", len(results.Removed),
		"skipped", len(results.Skipped), "failures", len(results.Failures))
	return results, nil
}

// fetchTargetRecords returns the editable address records for the hostname.
// Read-only address records consume the local address of their family.
func (r *Reconciler) fetchTargetRecords(ctx context.Context, local *address.Set, results *Results) ([]provider.Record, error) {
	records, err := r.provider.ListRecords(ctx)
	if err != nil {
		return nil, err
	}

	var targets []provider.Record
	for _, record := range records {
		if normalizeName(record.Name) != r.hostname {
			continue
		}
		slog.Debug("Got record", "record", record.Name, "type", record.Type, "value", record.Value, "editable", record.Editable)

		if !record.Editable {
			a, err := address.Parse(record.Value)
			if err != nil {
				slog.Debug("Ignoring read-only record", "record", record.Name, "type", record.Type, "value", record.Value)
				continue
			}
			i := slices.IndexFunc(*local, func(l address.Address) bool { return l.Family() == a.Family() })
			if i < 0 {
				continue
			}
			slog.Info("Read-only record covers local address, not updating",
				"record", record.Name, "type", record.Type, "value", record.Value, "local", (*local)[i].String())
			*local = slices.Delete(*local, i, i+1)
			results.Skipped = append(results.Skipped, record)
			if rt, ok := a.Family().RecordType(); ok {
				r.metrics.IncDNSOperation("skip", rt)
			}
			continue
		}

		if !record.IsAddress() {
			slog.Debug("Ignoring non-address record", "record", record.Name, "type", record.Type)
			continue
		}
		targets = append(targets, record)
	}
	return targets, nil
}

func (r *Reconciler) remove(ctx context.Context, record provider.Record, results *Results) {
	if r.dryRun {
		slog.Info("Dry run mode - would remove record", "record", record.Name, "type", record.Type, "value", record.Value)
		results.Removed = append(results.Removed, record)
		return
	}

	slog.Debug("Start remove record", "record", record.Name, "type", record.Type, "value", record.Value)
	if err := r.provider.RemoveRecord(ctx, record); err != nil {
		r.failed(record, "delete", err, results)
		return
	}
	r.metrics.IncDNSOperation("delete", record.Type)
	results.Removed = append(results.Removed, record)
}

func (r *Reconciler) add(ctx context.Context, record provider.Record, results *Results) {
	if r.dryRun {
		slog.Info("Dry run mode - would add record", "record", record.Name, "type", record.Type, "value", record.Value)
		results.Added = append(results.Added, record)
		return
	}

	slog.Debug("Start add record", "record", record.Name, "type", record.Type, "value", record.Value)
	if err := r.provider.AddRecord(ctx, record); err != nil {
		r.failed(record, "create", err, results)
		return
	}
	r.metrics.IncDNSOperation("create", record.Type)
	results.Added = append(results.Added, record)
}

func (r *Reconciler) failed(record provider.Record, op string, err error, results *Results) {
	var rejected *provider.RejectedError
	if errors.As(err, &rejected) {
		slog.Error("DNS provider rejected request", "op", op, "record", record.Name, "type", record.Type,
			"value", record.Value, "result", rejected.Result, "reason", rejected.Reason)
	} else {
		logger.Critical("DNS request failed", "op", op, "record", record.Name, "type", record.Type,
			"value", record.Value, "error", err)
	}
	results.Failures = append(results.Failures, OperationResult{
		Record: record,
		Op:     op,
		Error:  err.Error(),
	})
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSuffix(name, "."))
}
