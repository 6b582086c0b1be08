// Package libdnszone adapts any libdns provider into a provider.Provider
// scoped to a single zone.
package libdnszone

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evanofslack/dh-dyn-update/internal/metrics"
	"github.com/evanofslack/dh-dyn-update/internal/provider"
	"github.com/libdns/libdns"
)

type Backend interface {
	libdns.RecordGetter
	libdns.RecordAppender
	libdns.RecordDeleter
}

type Zone struct {
	backend Backend
	zone    string
	ttl     time.Duration
	metrics *metrics.Metrics
}

func New(backend Backend, zone string, ttl time.Duration, metrics *metrics.Metrics) (*Zone, error) {
	if backend == nil {
		return nil, fmt.Errorf("libdns backend required")
	}
	if zone == "" {
		return nil, fmt.Errorf("zone required")
	}
	if !strings.HasSuffix(zone, ".") {
		zone += "."
	}
	return &Zone{backend: backend, zone: zone, ttl: ttl, metrics: metrics}, nil
}

func (z *Zone) ListRecords(ctx context.Context) ([]provider.Record, error) {
	slog.Info("Getting DNS records", "zone", z.zone)

	records, err := z.backend.GetRecords(ctx, z.zone)
	if err != nil {
		z.metrics.IncDNSRequest("read", false)
		return nil, fmt.Errorf("get records for zone %s: %w", z.zone, err)
	}

	result := make([]provider.Record, 0, len(records))
	for _, r := range records {
		result = append(result, provider.FromLibdns(r, z.zone))
	}
	z.metrics.IncDNSRequest("read", true)
	return result, nil
}

func (z *Zone) AddRecord(ctx context.Context, record provider.Record) error {
	slog.Info("Creating DNS record", "zone", z.zone, "name", record.Name, "type", record.Type, "value", record.Value)

	if record.TTL == 0 {
		record.TTL = z.ttl
	}
	r, err := provider.ToLibdns(record, z.zone)
	if err != nil {
		z.metrics.IncDNSRequest("create", false)
		return err
	}

	if _, err := z.backend.AppendRecords(ctx, z.zone, []libdns.Record{r}); err != nil {
		z.metrics.IncDNSRequest("create", false)
		return fmt.Errorf("append record: %w", err)
	}
	z.metrics.IncDNSRequest("create", true)
	return nil
}

func (z *Zone) RemoveRecord(ctx context.Context, record provider.Record) error {
	slog.Info("Deleting DNS record", "zone", z.zone, "name", record.Name, "type", record.Type, "value", record.Value)

	r, err := provider.ToLibdns(record, z.zone)
	if err != nil {
		z.metrics.IncDNSRequest("delete", false)
		return err
	}

	if _, err := z.backend.DeleteRecords(ctx, z.zone, []libdns.Record{r}); err != nil {
		z.metrics.IncDNSRequest("delete", false)
		return fmt.Errorf("delete record: %w", err)
	}
	z.metrics.IncDNSRequest("delete", true)
	return nil
}
