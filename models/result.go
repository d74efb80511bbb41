package models

import (
	"encoding/json"
	"fmt"
)

// StatusMessage is a progress line emitted by a worker while it runs,
// e.g. {"status":"waiting_verification","message":"check your inbox"}.
// It is informational only and never part of the final result.
type StatusMessage struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`

	// Raw is the original line, including platform-specific fields.
	Raw json.RawMessage `json:"-"`
}

// MarshalJSON emits the original line so platform fields survive relaying.
func (m StatusMessage) MarshalJSON() ([]byte, error) {
	if len(m.Raw) > 0 {
		return m.Raw, nil
	}
	type plain StatusMessage
	return json.Marshal(plain(m))
}

// ResultKind tags which shape the worker's final line had.
type ResultKind int

const (
	// ResultObject is {"success":...,"data":[...],"count":...,"message":...}.
	ResultObject ResultKind = iota
	// ResultLegacy is a bare array of records.
	ResultLegacy
)

func (k ResultKind) String() string {
	switch k {
	case ResultObject:
		return "object"
	case ResultLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Record is one scraped row. Field sets differ per platform; the common
// columns are title, company, date, status and link.
type Record map[string]any

// Field returns the named column as a string, or "" when absent.
func (r Record) Field(name string) string {
	v, ok := r[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ScrapeResult is the terminal payload of a successful worker run.
type ScrapeResult struct {
	Kind    ResultKind
	Success bool
	Data    []Record
	Count   *int
	Message string

	// Raw is the worker's final line, relayed verbatim to clients.
	Raw json.RawMessage
}

// Len is the number of records, preferring the worker's own count.
func (r *ScrapeResult) Len() int {
	if r.Count != nil {
		return *r.Count
	}
	return len(r.Data)
}

// MarshalJSON relays the worker's line unchanged.
func (r *ScrapeResult) MarshalJSON() ([]byte, error) {
	if len(r.Raw) > 0 {
		return r.Raw, nil
	}
	if r.Kind == ResultLegacy {
		data := r.Data
		if data == nil {
			data = []Record{}
		}
		return json.Marshal(data)
	}
	return json.Marshal(struct {
		Success bool     `json:"success"`
		Data    []Record `json:"data,omitempty"`
		Count   *int     `json:"count,omitempty"`
		Message string   `json:"message,omitempty"`
	}{r.Success, r.Data, r.Count, r.Message})
}
