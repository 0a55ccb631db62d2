package kg

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Record is an opaque backend record that exposes field lookup.
type Record interface {
	Get(key string) (any, bool)
}

// MalformedError describes a sub-record that could not be read.
type MalformedError struct {
	Key    string
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed %q sub-record: %s", e.Key, e.Reason)
}

const (
	keyEntity   = "e"
	keyRelation = "r"
	keyTarget   = "x"
)

// NormalizeRow converts a raw retrieval record into a Row. Each sub-record is
// read independently: a malformed one is left out of the row and reported in
// the returned error while the remaining parts are kept.
func NormalizeRow(raw map[string]any) (Row, error) {
	var (
		row  Row
		errs []error
	)
	if raw == nil {
		return row, nil
	}

	if v, ok := raw[keyEntity]; ok && v != nil {
		f, err := fieldsOf(keyEntity, v)
		if err != nil {
			errs = append(errs, err)
		} else if e, err := entityFrom(f); err != nil {
			errs = append(errs, err)
		} else {
			row.Entity = e
		}
	}

	if v, ok := raw[keyRelation]; ok && v != nil {
		f, err := fieldsOf(keyRelation, v)
		if err != nil {
			errs = append(errs, err)
		} else {
			typ, err := stringField(keyRelation, f, "type")
			if err != nil {
				errs = append(errs, err)
			} else {
				row.Relation = &Relation{Type: typ}
			}
		}
	}

	if v, ok := raw[keyTarget]; ok && v != nil {
		f, err := fieldsOf(keyTarget, v)
		if err != nil {
			errs = append(errs, err)
		} else {
			name, err := stringField(keyTarget, f, "name")
			if err != nil {
				errs = append(errs, err)
			} else {
				row.Target = &Target{Name: name}
			}
		}
	}

	return row, errors.Join(errs...)
}

// NormalizeRows normalizes a batch, returning every row in order plus the
// per-row errors keyed by index.
func NormalizeRows(raws []map[string]any) ([]Row, map[int]error) {
	rows := make([]Row, 0, len(raws))
	var bad map[int]error
	for i, raw := range raws {
		row, err := NormalizeRow(raw)
		if err != nil {
			if bad == nil {
				bad = make(map[int]error)
			}
			bad[i] = err
		}
		rows = append(rows, row)
	}
	return rows, bad
}

type lookup func(key string) (any, bool)

func fieldsOf(key string, v any) (lookup, error) {
	switch t := v.(type) {
	case map[string]any:
		return func(k string) (any, bool) { x, ok := t[k]; return x, ok }, nil
	case map[string]string:
		return func(k string) (any, bool) { x, ok := t[k]; return x, ok }, nil
	case Record:
		return t.Get, nil
	default:
		return nil, &MalformedError{Key: key, Reason: fmt.Sprintf("expected a record, got %T", v)}
	}
}

func entityFrom(f lookup) (*Entity, error) {
	var (
		e   Entity
		err error
	)
	fields := []struct {
		name string
		dst  *string
	}{
		{"uid", &e.UID},
		{"name", &e.Name},
		{"type", &e.Type},
		{"description", &e.Description},
		{"source_pdf", &e.SourcePDF},
	}
	for _, fd := range fields {
		if *fd.dst, err = stringField(keyEntity, f, fd.name); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

// stringField reads a scalar field as text. Missing and nil fields read as "".
func stringField(key string, f lookup, name string) (string, error) {
	v, ok := f(name)
	if !ok || v == nil {
		return "", nil
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case fmt.Stringer:
		return t.String(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(t), nil
	default:
		return "", &MalformedError{Key: key, Reason: fmt.Sprintf("field %q has non-scalar type %T", name, v)}
	}
}

var whitespace = regexp.MustCompile(`\s+`)

// CleanText collapses runs of whitespace and trims the result.
func CleanText(s string) string {
	if s == "" {
		return ""
	}
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
