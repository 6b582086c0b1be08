package dreamhost

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/evanofslack/dh-dyn-update/internal/provider"
)

// Requester is satisfied by *Client.
type Requester interface {
	Request(ctx context.Context, cmd Command) (*Response, error)
}

// Provider exposes the DreamHost API as a provider.Provider. Transport
// failures surface as *TransportError, rejections as *provider.RejectedError.
type Provider struct {
	client Requester
}

func NewProvider(client Requester) *Provider {
	return &Provider{client: client}
}

func (p *Provider) ListRecords(ctx context.Context) ([]provider.Record, error) {
	slog.Info("Connecting to DreamHost API to obtain current DNS records")

	resp, err := p.client.Request(ctx, ListRecords{})
	if err != nil {
		return nil, err
	}
	if !resp.Success() {
		return nil, &provider.RejectedError{Op: CmdListRecords, Result: resp.Result, Reason: resp.Detail()}
	}

	records, err := resp.Records()
	if err != nil {
		return nil, &TransportError{Cmd: CmdListRecords, Err: err}
	}

	result := make([]provider.Record, 0, len(records))
	for _, r := range records {
		result = append(result, provider.Record{
			Name:     r.Record,
			Type:     r.Type,
			Value:    r.Value,
			Comment:  r.Comment,
			Editable: bool(r.Editable),
		})
	}
	slog.Debug("Retrieved DNS records", "count", len(result))
	return result, nil
}

func (p *Provider) AddRecord(ctx context.Context, record provider.Record) error {
	cmd, err := NewAddRecord(record.Name, record.Type, record.Value, record.Comment)
	if err != nil {
		return err
	}
	slog.Info("Adding DNS entry", "record", cmd.Record, "type", cmd.Type, "value", cmd.Value)
	return p.do(ctx, cmd)
}

func (p *Provider) RemoveRecord(ctx context.Context, record provider.Record) error {
	cmd, err := NewRemoveRecord(record.Name, record.Type, record.Value)
	if err != nil {
		return err
	}
	slog.Info("Removing DNS entry", "record", cmd.Record, "type", cmd.Type, "value", cmd.Value)
	return p.do(ctx, cmd)
}

func (p *Provider) do(ctx context.Context, cmd Command) error {
	resp, err := p.client.Request(ctx, cmd)
	if err != nil {
		return fmt.Errorf("request %s: %w", cmd.Cmd(), err)
	}
	if !resp.Success() {
		return &provider.RejectedError{Op: cmd.Cmd(), Result: resp.Result, Reason: resp.Detail()}
	}
	return nil
}
