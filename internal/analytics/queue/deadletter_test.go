package queue

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadLettersEvictOldest(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := NewDeadLetters(2)

	for i := 1; i <= 3; i++ {
		d.Add(DeadLetter{
			Update:   update(int64(i)),
			Category: CategoryHandlerError,
			FailedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	letters := d.Snapshot()
	require.Len(t, letters, 2)
	assert.Equal(t, snowflake.ID(2), letters[0].Update.Data.SubmissionID)
	assert.Equal(t, snowflake.ID(3), letters[1].Update.Data.SubmissionID)

	stats := d.Stats()
	assert.Equal(t, 2, stats.Entries)
	assert.EqualValues(t, 3, stats.TotalAdded)
	assert.EqualValues(t, 1, stats.Evicted)
	assert.Equal(t, 2, stats.ByCategory[CategoryHandlerError])
	assert.Equal(t, base.Add(2*time.Minute), stats.OldestEntry)
	assert.Equal(t, base.Add(3*time.Minute), stats.NewestEntry)
}

func TestDeadLettersDefaultCapacity(t *testing.T) {
	d := NewDeadLetters(0)
	assert.Equal(t, 500, d.capacity)
	assert.Empty(t, d.Snapshot())
	assert.Zero(t, d.Stats().Entries)
}
