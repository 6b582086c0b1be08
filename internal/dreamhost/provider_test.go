package dreamhost

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/evanofslack/dh-dyn-update/internal/provider"
)

type MockRequester struct {
	responses map[string]*Response
	err       error
	commands  []Command
}

func (m *MockRequester) Request(ctx context.Context, cmd Command) (*Response, error) {
	m.commands = append(m.commands, cmd)
	if m.err != nil {
		return nil, m.err
	}
	return m.responses[cmd.Cmd()], nil
}

func TestProviderListRecords(t *testing.T) {
	data, _ := json.Marshal([]map[string]string{
		{"record": "home.example.com", "type": "A", "value": "203.0.113.9", "editable": "1", "comment": "old"},
		{"record": "home.example.com", "type": "AAAA", "value": "2001:db8::9", "editable": "0"},
	})
	mock := &MockRequester{responses: map[string]*Response{
		CmdListRecords: {Result: "success", Data: data},
	}}

	records, err := NewProvider(mock).ListRecords(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []provider.Record{
		{Name: "home.example.com", Type: "A", Value: "203.0.113.9", Comment: "old", Editable: true},
		{Name: "home.example.com", Type: "AAAA", Value: "2001:db8::9", Editable: false},
	}
	if len(records) != len(want) {
		t.Fatalf("expected %d records, got %d", len(want), len(records))
	}
	for i := range want {
		if records[i] != want[i] {
			t.Errorf("record %d: got %+v, want %+v", i, records[i], want[i])
		}
	}
}

func TestProviderListRecordsRejected(t *testing.T) {
	mock := &MockRequester{responses: map[string]*Response{
		CmdListRecords: {Result: "error", Data: []byte(`"invalid_api_key"`)},
	}}
	_, err := NewProvider(mock).ListRecords(context.Background())
	var rejected *provider.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}
	if rejected.Reason != "invalid_api_key" {
		t.Errorf("expected reason invalid_api_key, got %q", rejected.Reason)
	}
}

func TestProviderTransportErrorPropagates(t *testing.T) {
	mock := &MockRequester{err: &TransportError{Cmd: CmdListRecords, Err: errors.New("timeout")}}
	_, err := NewProvider(mock).ListRecords(context.Background())
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestProviderAddAndRemove(t *testing.T) {
	mock := &MockRequester{responses: map[string]*Response{
		CmdAddRecord:    {Result: "success"},
		CmdRemoveRecord: {Result: "error", Data: []byte(`"no_such_record"`)},
	}}
	p := NewProvider(mock)

	err := p.AddRecord(context.Background(), provider.Record{Name: "home.example.com", Type: "AAAA", Value: "2001:db8::1", Comment: "managed"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err = p.RemoveRecord(context.Background(), provider.Record{Name: "home.example.com", Type: "A", Value: "203.0.113.9"})
	var rejected *provider.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected RejectedError, got %v", err)
	}

	if len(mock.commands) != 2 {
		t.Fatalf("expected 2 commands, got %d", len(mock.commands))
	}
	add, ok := mock.commands[0].(AddRecord)
	if !ok {
		t.Fatalf("expected AddRecord, got %T", mock.commands[0])
	}
	if add.Type != "AAAA" || add.Comment != "managed" {
		t.Errorf("unexpected add command %+v", add)
	}
	remove, ok := mock.commands[1].(RemoveRecord)
	if !ok {
		t.Fatalf("expected RemoveRecord, got %T", mock.commands[1])
	}
	if remove.Value != "203.0.113.9" {
		t.Errorf("unexpected remove command %+v", remove)
	}
}
