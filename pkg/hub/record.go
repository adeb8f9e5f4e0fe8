package hub

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// LastUpdatedLayout is the format Docker Hub uses for `last_updated`: UTC
// with microsecond precision.
//
//	2020-01-15T10:30:00.000000Z
//
const LastUpdatedLayout = "2006-01-02T15:04:05.000000Z"

// Record is the typed view of a repository document.
//
type Record struct {
	Name        string
	User        string
	PullCount   uint64
	StarCount   uint64
	IsAutomated bool

	// LastUpdated is the number of whole seconds since the Unix epoch.
	//
	LastUpdated float64
}

// Automated returns IsAutomated as a gauge value (0 or 1).
//
func (r Record) Automated() float64 {
	if r.IsAutomated {
		return 1
	}

	return 0
}

// Map decodes a raw repository document (either fetched on its own or taken
// from an organization listing) into a Record.
//
// `user` falls back to `namespace` when absent, as listings don't always
// carry it. Any other missing or mistyped field is reported as a
// *FieldMappingError.
//
func Map(raw json.RawMessage) (Record, error) {
	var (
		doc map[string]json.RawMessage
		rec Record
		err error
	)

	if err := json.Unmarshal(raw, &doc); err != nil {
		return Record{}, &FieldMappingError{Field: "$", Err: err}
	}

	if doc == nil {
		return Record{}, &FieldMappingError{Field: "$", Err: errMissing}
	}

	if rec.Name, err = stringField(doc, "name"); err != nil {
		return Record{}, err
	}

	rec.User, err = stringField(doc, "user")
	if err != nil {
		var nsErr error

		rec.User, nsErr = stringField(doc, "namespace")
		if nsErr != nil {
			return Record{}, err
		}
	}

	if rec.PullCount, err = countField(doc, "pull_count"); err != nil {
		return Record{}, err
	}

	if rec.StarCount, err = countField(doc, "star_count"); err != nil {
		return Record{}, err
	}

	if rec.IsAutomated, err = boolField(doc, "is_automated"); err != nil {
		return Record{}, err
	}

	if rec.LastUpdated, err = timestampField(doc, "last_updated"); err != nil {
		return Record{}, err
	}

	return rec, nil
}

// ParseLastUpdated converts a `last_updated` value into whole seconds since
// the epoch, dropping the fractional part.
//
func ParseLastUpdated(v string) (float64, error) {
	t, err := time.Parse(LastUpdatedLayout, v)
	if err != nil {
		return 0, fmt.Errorf("parse '%s': %w", v, err)
	}

	return float64(t.Unix()), nil
}

func lookup(doc map[string]json.RawMessage, field string) (json.RawMessage, error) {
	raw, found := doc[field]
	if !found || string(raw) == "null" {
		return nil, &FieldMappingError{Field: field, Err: errMissing}
	}

	return raw, nil
}

func stringField(doc map[string]json.RawMessage, field string) (string, error) {
	raw, err := lookup(doc, field)
	if err != nil {
		return "", err
	}

	var v string
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", &FieldMappingError{Field: field, Err: err}
	}

	if v == "" {
		return "", &FieldMappingError{Field: field, Err: errors.New("empty")}
	}

	return v, nil
}

func countField(doc map[string]json.RawMessage, field string) (uint64, error) {
	raw, err := lookup(doc, field)
	if err != nil {
		return 0, err
	}

	var v uint64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, &FieldMappingError{Field: field, Err: err}
	}

	return v, nil
}

func boolField(doc map[string]json.RawMessage, field string) (bool, error) {
	raw, err := lookup(doc, field)
	if err != nil {
		return false, err
	}

	var v bool
	if err := json.Unmarshal(raw, &v); err != nil {
		return false, &FieldMappingError{Field: field, Err: err}
	}

	return v, nil
}

func timestampField(doc map[string]json.RawMessage, field string) (float64, error) {
	raw, err := lookup(doc, field)
	if err != nil {
		return 0, err
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, &FieldMappingError{Field: field, Err: err}
	}

	v, err := ParseLastUpdated(s)
	if err != nil {
		return 0, &FieldMappingError{Field: field, Err: err}
	}

	return v, nil
}
