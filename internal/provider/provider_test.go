package provider

import (
	"errors"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/libdns/libdns"
)

func TestIsAddress(t *testing.T) {
	tests := []struct {
		recordType string
		want       bool
	}{
		{"A", true},
		{"AAAA", true},
		{"aaaa", true},
		{"CNAME", false},
		{"TXT", false},
		{"NAPTR", false},
	}
	for _, tt := range tests {
		if got := (Record{Type: tt.recordType}).IsAddress(); got != tt.want {
			t.Errorf("IsAddress(%s): got %v, want %v", tt.recordType, got, tt.want)
		}
	}
}

func TestRejectedError(t *testing.T) {
	var err error = &RejectedError{Op: "dns-add_record", Result: "error", Reason: "record_already_exists_remove_first"}
	if !strings.Contains(err.Error(), "record_already_exists_remove_first") {
		t.Errorf("expected reason in error message, got %q", err.Error())
	}

	wrapped := errors.Join(errors.New("context"), err)
	var rejected *RejectedError
	if !errors.As(wrapped, &rejected) {
		t.Fatal("expected errors.As to find RejectedError")
	}
	if rejected.Op != "dns-add_record" {
		t.Errorf("expected op dns-add_record, got %q", rejected.Op)
	}
}

func TestToLibdns(t *testing.T) {
	r := Record{Name: "home.example.com", Type: "AAAA", Value: "2001:db8::1", TTL: 5 * time.Minute}
	out, err := ToLibdns(r, "example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	addr, ok := out.(*libdns.Address)
	if !ok {
		t.Fatalf("expected *libdns.Address, got %T", out)
	}
	if addr.Name != "home" {
		t.Errorf("expected relative name home, got %q", addr.Name)
	}
	if addr.IP != netip.MustParseAddr("2001:db8::1") {
		t.Errorf("unexpected ip %s", addr.IP)
	}
	if addr.TTL != 5*time.Minute {
		t.Errorf("unexpected ttl %s", addr.TTL)
	}
}

func TestToLibdnsErrors(t *testing.T) {
	if _, err := ToLibdns(Record{Name: "home.example.com", Type: "TXT", Value: "hello"}, "example.com"); err == nil {
		t.Error("expected error for TXT record, got nil")
	}
	if _, err := ToLibdns(Record{Name: "home.example.com", Type: "A", Value: "bogus"}, "example.com"); err == nil {
		t.Error("expected error for invalid address, got nil")
	}
}

func TestFromLibdns(t *testing.T) {
	in := &libdns.Address{Name: "home", IP: netip.MustParseAddr("198.51.100.5"), TTL: time.Minute}
	got := FromLibdns(in, "example.com.")
	if got.Name != "home.example.com" {
		t.Errorf("expected name home.example.com, got %q", got.Name)
	}
	if got.Type != "A" || got.Value != "198.51.100.5" {
		t.Errorf("unexpected record %+v", got)
	}
	if !got.Editable {
		t.Error("expected libdns records to be editable")
	}
}
