package models

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateTimeJSON(t *testing.T) {
	want := time.Date(2024, time.March, 5, 10, 30, 15, 0, time.UTC)

	cases := map[string]string{
		"local":      `"2024-03-05T10:30:15"`,
		"fractional": `"2024-03-05T10:30:15.000"`,
		"rfc3339":    `"2024-03-05T10:30:15Z"`,
		"array":      `[2024,3,5,10,30,15]`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var d DateTime
			require.NoError(t, json.Unmarshal([]byte(raw), &d))
			assert.True(t, want.Equal(d.Time), "got %v", d.Time)
		})
	}

	t.Run("null", func(t *testing.T) {
		var v struct {
			At *DateTime `json:"at"`
		}
		require.NoError(t, json.Unmarshal([]byte(`{"at":null}`), &v))
		assert.True(t, v.At.IsZero())
	})

	t.Run("garbage", func(t *testing.T) {
		var d DateTime
		assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &d))
	})

	t.Run("marshal", func(t *testing.T) {
		data, err := json.Marshal(NewDateTime(want))
		require.NoError(t, err)
		assert.Equal(t, `"2024-03-05T10:30:15"`, string(data))
	})
}

func TestDateTimeCBOR(t *testing.T) {
	in := NewDateTime(time.Date(2023, time.December, 31, 23, 59, 59, 0, time.UTC))

	data, err := cbor.Marshal(in)
	require.NoError(t, err)

	var out DateTime
	require.NoError(t, cbor.Unmarshal(data, &out))
	assert.True(t, in.Equal(out.Time))
}

func TestVersionedEntityActive(t *testing.T) {
	v := VersionedEntity{Entity: Entity{ID: ID(1), Reference: "ACME"}}
	assert.True(t, v.IsActive())

	v.Obsolete = true
	assert.False(t, v.IsActive())

	v.Obsolete = false
	v.EndDate = NewDateTime(time.Now())
	assert.False(t, v.IsActive())

	id, ok := v.EntityID()
	assert.True(t, ok)
	assert.Equal(t, int64(1), id)
	assert.Equal(t, "ACME", v.EntityReference())
}

func TestMovementTransition(t *testing.T) {
	m := Movement{Type: MovementReserve, Units: 12, Status: StatusInProgress}
	require.NoError(t, m.Transition(StatusCompleted))
	assert.Equal(t, StatusCompleted, m.Status)
	assert.Error(t, m.Transition(StatusCanceled))

	open := Movement{Status: StatusInProgress}
	assert.Error(t, open.Transition(StatusInProgress))
}
