package services

import (
	"testing"
	"time"

	"github.com/isdelr/practice-server/internal/database"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventService(t *testing.T) {
	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db))

	svc := NewEventService(db)
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	require.NoError(t, svc.CreateEvent(models.EventUserRegister, "users", "u1", "u1"))
	require.NoError(t, svc.CreateEvent(models.EventRecordCreate, "games", "g1", "u1"))
	require.NoError(t, svc.CreateEvent(models.EventRecordDelete, "games", "g1", "u1"))

	events, err := svc.GetRecentEvents(2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, models.EventRecordDelete, events[0].Type)
	assert.Equal(t, models.EventRecordCreate, events[1].Type)
	assert.Equal(t, "games", events[1].Collection)
	assert.Equal(t, "g1", events[1].RecordID)

	events, err = svc.GetRecentEvents(10)
	require.NoError(t, err)
	assert.Len(t, events, 3)
}
