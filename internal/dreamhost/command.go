package dreamhost

import (
	"fmt"
	"net/url"
)

const (
	CmdListRecords  = "dns-list_records"
	CmdAddRecord    = "dns-add_record"
	CmdRemoveRecord = "dns-remove_record"
)

// Command is one DreamHost API call. Each kind carries its own parameters,
// so a request can only be built from a known command.
type Command interface {
	Cmd() string
	validate() error
	encode(url.Values)
}

type ListRecords struct{}

func (ListRecords) Cmd() string { return CmdListRecords }

func (ListRecords) validate() error { return nil }

func (ListRecords) encode(url.Values) {}

type AddRecord struct {
	Record  string
	Type    string
	Value   string
	Comment string
}

// NewAddRecord builds a validated dns-add_record command.
func NewAddRecord(record, recordType, value, comment string) (AddRecord, error) {
	c := AddRecord{Record: record, Type: recordType, Value: value, Comment: comment}
	if err := c.validate(); err != nil {
		return AddRecord{}, err
	}
	return c, nil
}

func (AddRecord) Cmd() string { return CmdAddRecord }

func (c AddRecord) validate() error {
	if c.Record == "" || c.Value == "" {
		return fmt.Errorf("%s: record and value required", CmdAddRecord)
	}
	switch c.Type {
	case "A", "AAAA":
	default:
		return fmt.Errorf("%s: unsupported record type %q", CmdAddRecord, c.Type)
	}
	return nil
}

func (c AddRecord) encode(v url.Values) {
	v.Set("record", c.Record)
	v.Set("type", c.Type)
	v.Set("value", c.Value)
	v.Set("comment", c.Comment)
}

type RemoveRecord struct {
	Record string
	Type   string
	Value  string
}

// NewRemoveRecord builds a validated dns-remove_record command.
func NewRemoveRecord(record, recordType, value string) (RemoveRecord, error) {
	c := RemoveRecord{Record: record, Type: recordType, Value: value}
	if err := c.validate(); err != nil {
		return RemoveRecord{}, err
	}
	return c, nil
}

func (RemoveRecord) Cmd() string { return CmdRemoveRecord }

func (c RemoveRecord) validate() error {
	if c.Record == "" || c.Type == "" || c.Value == "" {
		return fmt.Errorf("%s: record, type and value required", CmdRemoveRecord)
	}
	return nil
}

func (c RemoveRecord) encode(v url.Values) {
	v.Set("record", c.Record)
	v.Set("type", c.Type)
	v.Set("value", c.Value)
}
