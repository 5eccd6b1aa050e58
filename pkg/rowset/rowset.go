// Package rowset holds the generic row model shared by the poller, the differ
// and the data sources.
package rowset

import (
	"bytes"
	"encoding/binary"
	"math"
	"reflect"
	"slices"
	"time"

	"github.com/cespare/xxhash/v2"
)

// Row is one record of a table keyed by column name. Column order carries no
// meaning: two rows with the same columns and values are equal.
type Row map[string]any

// Snapshot is the ordered set of rows observed for a table at one point in
// time. Snapshots handed out by the poller are shared and must not be mutated.
type Snapshot []Row

// Empty is the snapshot of a table that has not been fetched yet.
var Empty = Snapshot{}

// Equal reports whether a and b hold the same columns with equal values.
func Equal(a, b Row) bool {
	if len(a) != len(b) {
		return false
	}
	for col, av := range a {
		bv, ok := b[col]
		if !ok || !ValueEqual(av, bv) {
			return false
		}
	}
	return true
}

// ValueEqual compares two column values. Values of different types are never
// equal. NaN equals NaN of the same float type, and -0 equals 0.
func ValueEqual(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b == nil
	case []byte:
		bv, ok := b.([]byte)
		return ok && bytes.Equal(av, bv)
	case time.Time:
		bv, ok := b.(time.Time)
		return ok && av.Equal(bv)
	case float64:
		bv, ok := b.(float64)
		return ok && (av == bv || math.IsNaN(av) && math.IsNaN(bv))
	case float32:
		bv, ok := b.(float32)
		return ok && (av == bv || math.IsNaN(float64(av)) && math.IsNaN(float64(bv)))
	case string, bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return a == b
	default:
		return reflect.DeepEqual(a, b)
	}
}

// EqualSnapshots compares two snapshots as ordered sequences of rows.
func EqualSnapshots(a, b Snapshot) bool {
	return slices.EqualFunc(a, b, Equal)
}

// Clone returns a shallow copy of the snapshot: a new slice holding the same
// rows.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	return slices.Clone(s)
}

// Maps converts the snapshot to plain maps, the shape encoders expect.
func (s Snapshot) Maps() []map[string]any {
	out := make([]map[string]any, len(s))
	for i, r := range s {
		out[i] = r
	}
	return out
}

// Columns returns the row's column names in sorted order.
func (r Row) Columns() []string {
	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols
}

// Clone copies the row. Values are shared.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Fingerprint hashes the row independently of column order. Equal rows always
// share a fingerprint; unequal rows may collide, so callers confirm with Equal.
func Fingerprint(r Row) uint64 {
	h := xxhash.New()
	var num [8]byte
	for _, col := range r.Columns() {
		h.WriteString(col)
		h.Write([]byte{0})
		writeValue(h, r[col], num[:])
		h.Write([]byte{0xff})
	}
	return h.Sum64()
}

// writeValue feeds v to h prefixed with a type tag. Values ValueEqual treats
// as equal must produce identical bytes.
func writeValue(h *xxhash.Digest, v any, num []byte) {
	switch val := v.(type) {
	case nil:
		h.WriteString("\x00NULL\x00")
	case []byte:
		h.WriteString("b:")
		h.Write(val)
	case string:
		h.WriteString("s:")
		h.WriteString(val)
	case bool:
		if val {
			h.WriteString("t")
		} else {
			h.WriteString("f")
		}
	case int:
		writeInt(h, "i:", int64(val), num)
	case int8:
		writeInt(h, "i8:", int64(val), num)
	case int16:
		writeInt(h, "i16:", int64(val), num)
	case int32:
		writeInt(h, "i32:", int64(val), num)
	case int64:
		writeInt(h, "i64:", val, num)
	case uint:
		writeInt(h, "u:", int64(val), num)
	case uint8:
		writeInt(h, "u8:", int64(val), num)
	case uint16:
		writeInt(h, "u16:", int64(val), num)
	case uint32:
		writeInt(h, "u32:", int64(val), num)
	case uint64:
		writeInt(h, "u64:", int64(val), num)
	case float32:
		writeFloat(h, "f32:", float64(val), num)
	case float64:
		writeFloat(h, "f64:", val, num)
	case time.Time:
		writeInt(h, "ts:", val.UnixNano(), num)
	default:
		// DeepEqual values share their type but may print differently
		h.WriteString("?:")
		h.WriteString(reflect.TypeOf(val).String())
	}
}

func writeInt(h *xxhash.Digest, tag string, n int64, num []byte) {
	h.WriteString(tag)
	binary.LittleEndian.PutUint64(num, uint64(n))
	h.Write(num)
}

func writeFloat(h *xxhash.Digest, tag string, f float64, num []byte) {
	switch {
	case math.IsNaN(f):
		f = math.NaN()
	case f == 0:
		f = 0 // -0 == 0
	}
	writeInt(h, tag, int64(math.Float64bits(f)), num)
}
