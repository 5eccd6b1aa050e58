package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/internal/configs"
	"github.com/MathewBravo/realtime-db/internal/events"
	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

func testConfig() *configs.PipelineConfig {
	return &configs.PipelineConfig{
		DefaultRoute:   "changes",
		ExcludedTables: []string{"audit"},
		Tables: map[string]configs.TableOptions{
			"users": {
				Kinds: []string{"new_values", "all_values"},
				Route: "users-topic",
				PIIMasks: []configs.PIIMask{
					{Field: "email", Action: "mask_partial"},
					{Field: "password", Action: "redact"},
					{Field: "ssn", Action: "hash"},
				},
			},
		},
	}
}

func run(t *testing.T, in ...events.ChangeEvent) []events.ChangeEvent {
	t.Helper()
	eventCh := make(chan events.ChangeEvent, len(in))
	for _, ev := range in {
		eventCh <- ev
	}
	close(eventCh)

	out := NewPipeline(testConfig()).Start(eventCh)

	var got []events.ChangeEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-out:
			if !ok {
				return got
			}
			got = append(got, ev)
		case <-timeout:
			t.Fatal("pipeline did not close its output")
		}
	}
}

func ev(kind events.Kind, table string, rows ...rowset.Row) events.ChangeEvent {
	return events.NewChangeEvent(kind, table, rows, time.Now())
}

func TestPipeline_FiltersExcludedTablesAndKinds(t *testing.T) {
	got := run(t,
		ev(events.KindNewValues, "audit", rowset.Row{"id": 1}),
		ev(events.KindOldValues, "users", rowset.Row{"id": 1}),
		ev(events.KindNewValues, "users", rowset.Row{"id": 2}),
		ev(events.KindOldValues, "orders", rowset.Row{"id": 3}),
	)

	require.Len(t, got, 2)
	assert.Equal(t, "users", got[0].Table)
	assert.Equal(t, events.KindNewValues, got[0].Kind)
	assert.Equal(t, "orders", got[1].Table)
}

func TestPipeline_Routes(t *testing.T) {
	got := run(t,
		ev(events.KindNewValues, "users"),
		ev(events.KindNewValues, "orders"),
	)

	require.Len(t, got, 2)
	assert.Equal(t, "users-topic", got[0].Route)
	assert.Equal(t, "changes", got[1].Route)
}

func TestPipeline_MasksEveryRow(t *testing.T) {
	sum := sha256.Sum256([]byte("123-45-6789"))

	got := run(t, ev(events.KindAllValues, "users",
		rowset.Row{"email": "alex@live.com", "password": "1234", "ssn": "123-45-6789"},
		rowset.Row{"email": "abc", "password": nil},
	))

	require.Len(t, got, 1)
	rows := got[0].Rows
	assert.Equal(t, "*********.com", rows[0]["email"])
	assert.Equal(t, "REDACTED", rows[0]["password"])
	assert.Equal(t, hex.EncodeToString(sum[:]), rows[0]["ssn"])
	assert.Equal(t, "***", rows[1]["email"])
	assert.Nil(t, rows[1]["password"])
	assert.NotContains(t, rows[1], "ssn")
}

func TestMaskPartial(t *testing.T) {
	assert.Equal(t, "", maskPartial(""))
	assert.Equal(t, "****", maskPartial("abcd"))
	assert.Equal(t, "*bcde", maskPartial("abcde"))
}
