// Package rowmap converts between generic rows and typed records.
//
// Struct fields map to columns through the `db` tag, falling back to the
// field name. Decoding is weakly typed, so a TEXT column holding "42" fills an
// int field and a []byte column fills a string field.
package rowmap

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

const tagName = "db"

// Decode fills a T from r.
func Decode[T any](r rowset.Row) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          tagName,
		WeaklyTypedInput: true,
		Result:           &out,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc("2006-01-02 15:04:05"),
		),
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(map[string]any(r)); err != nil {
		return out, fmt.Errorf("decode row: %w", err)
	}
	return out, nil
}

// DecodeAll decodes every row of s, stopping at the first failure.
func DecodeAll[T any](s rowset.Snapshot) ([]T, error) {
	out := make([]T, 0, len(s))
	for i, r := range s {
		v, err := Decode[T](r)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode turns a struct (or pointer to one) into a row keyed by column name.
func Encode(record any) (rowset.Row, error) {
	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: tagName,
		Result:  &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(record); err != nil {
		return nil, fmt.Errorf("encode %T: %w", record, err)
	}
	return rowset.Row(out), nil
}

// Typed adapts a callback over records to a snapshot listener. Snapshots that
// fail to decode are passed to onErr, which may be nil.
func Typed[T any](fn func([]T), onErr func(error)) func(rowset.Snapshot) {
	return func(s rowset.Snapshot) {
		records, err := DecodeAll[T](s)
		if err != nil {
			if onErr != nil {
				onErr(err)
			}
			return
		}
		fn(records)
	}
}
