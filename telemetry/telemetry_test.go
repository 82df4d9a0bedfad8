package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satishbabariya/cauldron/runtime/client"
)

func TestCollector_Record(t *testing.T) {
	c := NewCollector()
	c.Record(&client.QueryEvent{Operation: "select", Rows: 3, Duration: 10 * time.Millisecond})
	c.Record(&client.QueryEvent{Operation: "select", Rows: 1, Duration: 30 * time.Millisecond})
	c.Record(&client.QueryEvent{Operation: "insert", Duration: time.Millisecond, Error: errors.New("duplicate key")})

	snap := c.Snapshot()
	require.Len(t, snap, 2)

	assert.Equal(t, "insert", snap[0].Operation)
	assert.Equal(t, int64(1), snap[0].Errors)
	assert.Equal(t, "duplicate key", snap[0].LastError)

	sel := snap[1]
	assert.Equal(t, int64(2), sel.Calls)
	assert.Equal(t, int64(4), sel.Rows)
	assert.Equal(t, 30*time.Millisecond, sel.Max)
	assert.Equal(t, 20*time.Millisecond, sel.Mean())

	c.Reset()
	assert.Empty(t, c.Snapshot())
	assert.Zero(t, OperationStats{}.Mean())
}

func TestCollector_Middleware(t *testing.T) {
	c := NewCollector()
	mw := c.Middleware()

	boom := errors.New("boom")
	event := &client.QueryEvent{Operation: "raw"}
	err := mw(context.Background(), event, func() error {
		event.Error = boom
		return boom
	})
	assert.Same(t, boom, err)

	snap := c.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, int64(1), snap[0].Calls)
	assert.Equal(t, int64(1), snap[0].Errors)
}
