package model

import (
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeScanner(t *testing.T) {
	ts := &TimeScanner{}

	dateStr := "2026-01-15 16:08:38"
	expected, _ := time.ParseInLocation("2006-01-02 15:04:05", dateStr, time.Local)

	require.NoError(t, ts.Scan(dateStr))
	assert.True(t, ts.Valid)
	assert.True(t, ts.Value.Equal(expected))

	require.NoError(t, ts.Scan([]byte(dateStr)))
	assert.True(t, ts.Valid)
	assert.True(t, ts.Value.Equal(expected))

	// zero dates are NULL
	require.NoError(t, ts.Scan("0000-00-00 00:00:00"))
	assert.False(t, ts.Valid)

	require.NoError(t, ts.Scan(""))
	assert.False(t, ts.Valid)

	now := time.Now()
	require.NoError(t, ts.Scan(now))
	assert.True(t, ts.Value.Equal(now))

	require.NoError(t, ts.Scan(nil))
	assert.False(t, ts.Valid)

	assert.Error(t, ts.Scan("yesterday"))
	assert.Error(t, ts.Scan(3.5))
}

func TestAssign(t *testing.T) {
	var target struct {
		I   int64
		U   uint8
		S   string
		B   bool
		F   float64
		P   *string
		Raw []byte
		T   time.Time
	}
	v := reflect.ValueOf(&target).Elem()

	require.NoError(t, Assign(v.Field(0), "42"))
	require.NoError(t, Assign(v.Field(1), int64(7)))
	require.NoError(t, Assign(v.Field(2), []byte("ann")))
	require.NoError(t, Assign(v.Field(3), int64(1)))
	require.NoError(t, Assign(v.Field(4), "2.5"))
	require.NoError(t, Assign(v.Field(5), "bio"))
	require.NoError(t, Assign(v.Field(6), []byte{1, 2}))
	require.NoError(t, Assign(v.Field(7), "2026-01-15"))

	assert.Equal(t, int64(42), target.I)
	assert.Equal(t, uint8(7), target.U)
	assert.Equal(t, "ann", target.S)
	assert.True(t, target.B)
	assert.Equal(t, 2.5, target.F)
	require.NotNil(t, target.P)
	assert.Equal(t, "bio", *target.P)
	assert.Equal(t, []byte{1, 2}, target.Raw)
	assert.Equal(t, 15, target.T.Day())

	// NULL resets to the zero value
	require.NoError(t, Assign(v.Field(0), nil))
	assert.Zero(t, target.I)

	assert.Error(t, Assign(v.Field(0), "forty"))
	assert.Error(t, Assign(reflect.ValueOf(target.I), int64(1)))
}
