package cloudflare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudflare/cloudflare-go"
	"github.com/evanofslack/dh-dyn-update/internal/config"
	"github.com/evanofslack/dh-dyn-update/internal/metrics"
	"github.com/evanofslack/dh-dyn-update/internal/provider"
)

// CloudflareProvider manages the records of one hostname in one zone.
// Locked records are reported as read-only.
type CloudflareProvider struct {
	client   *cloudflare.API
	metrics  *metrics.Metrics
	hostname string
	zoneID   string
	ttl      int
}

func New(cfg config.Cloudflare, hostname string, metrics *metrics.Metrics, opts ...cloudflare.Option) (*CloudflareProvider, error) {
	token := cfg.Token
	if token == "" {
		return nil, fmt.Errorf("cloudflare API token required")
	}

	client, err := cloudflare.NewWithAPIToken(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Cloudflare client: %w", err)
	}

	zoneID := cfg.ZoneID
	if zoneID == "" {
		if cfg.Zone == "" {
			return nil, fmt.Errorf("cloudflare zone or zone id required")
		}
		zoneID, err = client.ZoneIDByName(cfg.Zone)
		if err != nil {
			return nil, fmt.Errorf("failed to get zone ID for %s: %w", cfg.Zone, err)
		}
	}

	return &CloudflareProvider{
		client:   client,
		metrics:  metrics,
		hostname: strings.ToLower(strings.TrimSuffix(hostname, ".")),
		zoneID:   zoneID,
		ttl:      cfg.TTL,
	}, nil
}

func (p *CloudflareProvider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	slog.Info("Getting DNS records", "zone", p.zoneID, "name", p.hostname)
	start := time.Now()

	var allRecords []cloudflare.DNSRecord
	page := 1
	for {
		rc := cloudflare.ZoneIdentifier(p.zoneID)
		params := cloudflare.ListDNSRecordsParams{
			Name: p.hostname,
			ResultInfo: cloudflare.ResultInfo{
				Page:    page,
				PerPage: 100,
			},
		}

		records, resultInfo, err := p.client.ListDNSRecords(ctx, rc, params)
		if err != nil {
			p.metrics.IncDNSRequest("read", false)
			return nil, fmt.Errorf("failed to list DNS records: %w", err)
		}

		allRecords = append(allRecords, records...)
		if resultInfo == nil || page >= resultInfo.TotalPages {
			break
		}
		page++
	}

	result := make([]provider.Record, 0, len(allRecords))
	for _, r := range allRecords {
		result = append(result, provider.Record{
			ID:       r.ID,
			Name:     r.Name,
			Type:     r.Type,
			Value:    r.Content,
			Comment:  r.Comment,
			Editable: !r.Locked,
			TTL:      time.Duration(r.TTL) * time.Second,
		})
	}

	p.metrics.IncDNSRequest("read", true)
	slog.Debug("Retrieved DNS records", "zone", p.zoneID, "count", len(result), "duration", time.Since(start))
	return result, nil
}

func (p *CloudflareProvider) AddRecord(ctx context.Context, record provider.Record) error {
	slog.Info("Creating DNS record", "zone", p.zoneID, "name", record.Name, "type", record.Type, "value", record.Value)
	start := time.Now()

	ttl := int(record.TTL.Seconds())
	if ttl == 0 {
		ttl = p.ttl
	}
	params := cloudflare.CreateDNSRecordParams{
		Type:    record.Type,
		Name:    record.Name,
		Content: record.Value,
		Comment: record.Comment,
		TTL:     ttl,
	}

	_, err := p.client.CreateDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), params)
	if err != nil {
		p.metrics.IncDNSRequest("create", false)
		return fmt.Errorf("failed to create DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("create", true)
	slog.Debug("Created DNS record", "zone", p.zoneID, "name", record.Name, "type", record.Type, "duration", time.Since(start))
	return nil
}

func (p *CloudflareProvider) RemoveRecord(ctx context.Context, record provider.Record) error {
	slog.Info("Deleting DNS record", "zone", p.zoneID, "name", record.Name, "type", record.Type, "value", record.Value)
	start := time.Now()

	if record.ID == "" {
		return fmt.Errorf("cloudflare record id required to delete %s %s", record.Type, record.Value)
	}

	err := p.client.DeleteDNSRecord(ctx, cloudflare.ZoneIdentifier(p.zoneID), record.ID)
	if err != nil {
		p.metrics.IncDNSRequest("delete", false)
		return fmt.Errorf("failed to delete DNS record: %w", err)
	}

	p.metrics.IncDNSRequest("delete", true)
	slog.Debug("Deleted DNS record", "zone", p.zoneID, "name", record.Name, "type", record.Type, "duration", time.Since(start))
	return nil
}
