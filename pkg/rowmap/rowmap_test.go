package rowmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MathewBravo/realtime-db/pkg/rowset"
)

type user struct {
	ID       int64  `db:"id"`
	Email    string `db:"email"`
	Password string `db:"password"`
	Active   bool   `db:"active"`
}

func TestDecode(t *testing.T) {
	u, err := Decode[user](rowset.Row{
		"id":       int64(1),
		"email":    "alex@live.com",
		"password": "1234",
		"active":   true,
	})

	require.NoError(t, err)
	assert.Equal(t, user{ID: 1, Email: "alex@live.com", Password: "1234", Active: true}, u)
}

func TestDecode_WeakTypes(t *testing.T) {
	u, err := Decode[user](rowset.Row{
		"id":     "7",
		"email":  []byte("bytes@example.com"),
		"active": int64(1),
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), u.ID)
	assert.Equal(t, "bytes@example.com", u.Email)
	assert.True(t, u.Active)
}

func TestDecode_Error(t *testing.T) {
	_, err := Decode[user](rowset.Row{"id": "not a number"})
	assert.Error(t, err)
}

func TestDecodeAll(t *testing.T) {
	users, err := DecodeAll[user](rowset.Snapshot{
		{"id": int64(1), "email": "a@x"},
		{"id": int64(2), "email": "b@x"},
	})

	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "b@x", users[1].Email)

	_, err = DecodeAll[user](rowset.Snapshot{{"id": int64(1)}, {"id": "x"}})
	assert.ErrorContains(t, err, "row 1")
}

func TestEncode(t *testing.T) {
	r, err := Encode(&user{ID: 3, Email: "c@x", Active: true})

	require.NoError(t, err)
	assert.Equal(t, rowset.Row{
		"id":       int64(3),
		"email":    "c@x",
		"password": "",
		"active":   true,
	}, r)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := user{ID: 9, Email: "z@x", Password: "pw"}

	r, err := Encode(in)
	require.NoError(t, err)
	out, err := Decode[user](r)
	require.NoError(t, err)

	assert.Equal(t, in, out)
}

func TestTyped(t *testing.T) {
	var got []user
	var errs []error
	fn := Typed(func(us []user) { got = us }, func(err error) { errs = append(errs, err) })

	fn(rowset.Snapshot{{"id": int64(1), "email": "a@x"}})
	assert.Equal(t, []user{{ID: 1, Email: "a@x"}}, got)

	fn(rowset.Snapshot{{"id": "bad"}})
	assert.Len(t, errs, 1)
	assert.Len(t, got, 1)
}
