package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medblock/internal/audit"
)

func TestInMemoryNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i, a := range []audit.Action{audit.ActionCreate, audit.ActionGrantAccess, audit.ActionView} {
		require.NoError(t, s.Append(ctx, audit.Entry{
			LogID:     audit.NewLogID(base),
			RecordID:  "record_1",
			ActorID:   "org-a",
			Action:    a,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.Append(ctx, audit.Entry{LogID: "other", RecordID: "record_2", ActorID: "org-b", Action: audit.ActionCreate, Timestamp: base}))

	got, err := s.ListByRecord(ctx, "record_1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionView, got[0].Action)
	assert.Equal(t, audit.ActionGrantAccess, got[1].Action)

	byActor, err := s.ListByActor(ctx, "org-b", 10)
	require.NoError(t, err)
	assert.Len(t, byActor, 1)

	recent, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recent, 4)
}

func TestInMemoryAppendIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	e := audit.Entry{LogID: "log_1", RecordID: "record_1", Action: audit.ActionCreate}

	require.NoError(t, s.Append(ctx, e))
	require.NoError(t, s.Append(ctx, e))

	got, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
