package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/MathewBravo/realtime-db/pkg/listener"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

// Kind mirrors listener.Kind so events can name the view they carry.
type Kind = listener.Kind

const (
	KindAllValues = listener.AllValues
	KindNewValues = listener.NewValues
	KindOldValues = listener.OldValues
)

// ChangeEvent is one listener callback turned into a message.
type ChangeEvent struct {
	Kind  Kind             `json:"-" msgpack:"-"`
	Table string           `json:"table" msgpack:"table"`
	Rows  []map[string]any `json:"rows" msgpack:"rows"`
	Route string           `json:"-" msgpack:"-"`
	Ts    time.Time        `json:"-" msgpack:"-"`
}

// NewChangeEvent copies the rows so later masking cannot touch the
// snapshot the engine still holds.
func NewChangeEvent(kind Kind, table string, snap rowset.Snapshot, at time.Time) ChangeEvent {
	rows := make([]map[string]any, len(snap))
	for i, r := range snap {
		rows[i] = r.Clone()
	}
	return ChangeEvent{
		Kind:  kind,
		Table: table,
		Rows:  rows,
		Ts:    at,
	}
}

// Wire is the encoded form of a ChangeEvent.
type Wire struct {
	Kind  string           `json:"kind" msgpack:"kind"`
	Table string           `json:"table" msgpack:"table"`
	Rows  []map[string]any `json:"rows" msgpack:"rows"`
	TsMs  int64            `json:"ts_ms" msgpack:"ts_ms"`
}

func (e ChangeEvent) Wire() Wire {
	return Wire{
		Kind:  e.Kind.String(),
		Table: e.Table,
		Rows:  e.Rows,
		TsMs:  e.Ts.UnixMilli(),
	}
}

func (e ChangeEvent) Pretty() string {
	data, err := json.MarshalIndent(e.Wire(), "", "  ")
	if err != nil {
		return fmt.Sprintf("%s %s: %d rows", e.Table, e.Kind, len(e.Rows))
	}
	return string(data)
}
