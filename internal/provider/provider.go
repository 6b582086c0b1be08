package provider

import (
	"context"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/libdns/libdns"
)

// Provider is a DNS backend holding the records for the managed hostname.
type Provider interface {
	ListRecords(ctx context.Context) ([]Record, error)
	AddRecord(ctx context.Context, record Record) error
	RemoveRecord(ctx context.Context, record Record) error
}

type Record struct {
	ID       string
	Name     string
	Type     string
	Value    string
	Comment  string
	Editable bool
	TTL      time.Duration
}

// IsAddress reports whether the record carries an address (A or AAAA).
func (r Record) IsAddress() bool {
	switch strings.ToUpper(r.Type) {
	case "A", "AAAA":
		return true
	}
	return false
}

// RejectedError is returned when the provider answered but refused the
// request. It is distinct from transport failures.
type RejectedError struct {
	Op     string
	Result string
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s rejected by provider, result=%s", e.Op, e.Result)
	}
	return fmt.Sprintf("%s rejected by provider, result=%s reason=%s", e.Op, e.Result, e.Reason)
}

// FromLibdns converts a libdns record relative to zone into a Record with a
// fully qualified name (without trailing dot).
func FromLibdns(r libdns.Record, zone string) Record {
	rr := r.RR()
	return Record{
		Name:     strings.TrimSuffix(libdns.AbsoluteName(rr.Name, zone), "."),
		Type:     rr.Type,
		Value:    rr.Data,
		TTL:      rr.TTL,
		Editable: true,
	}
}

// ToLibdns converts an address record into its libdns form relative to zone.
func ToLibdns(r Record, zone string) (libdns.Record, error) {
	switch strings.ToUpper(r.Type) {
	case "A", "AAAA":
		addr, err := netip.ParseAddr(r.Value)
		if err != nil {
			return nil, fmt.Errorf("fail parse ip addr %s, err=%w", r.Value, err)
		}
		out := &libdns.Address{
			Name: libdns.RelativeName(fqdn(r.Name), fqdn(zone)),
			IP:   addr,
			TTL:  r.TTL,
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported record type %s", r.Type)
	}
}

func fqdn(name string) string {
	if strings.HasSuffix(name, ".") {
		return name
	}
	return name + "."
}
