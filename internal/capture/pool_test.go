package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueuePopsLIFO(t *testing.T) {
	jobs := []Job{
		{Viewport: "first"},
		{Viewport: "second"},
		{Viewport: "third"},
	}
	q := newQueue(jobs)

	j, ok := q.pop()
	assert.True(t, ok)
	assert.Equal(t, "third", j.Viewport)

	j, ok = q.pop()
	assert.True(t, ok)
	assert.Equal(t, "second", j.Viewport)

	j, ok = q.pop()
	assert.True(t, ok)
	assert.Equal(t, "first", j.Viewport)

	_, ok = q.pop()
	assert.False(t, ok)
}

func TestNewQueueDoesNotMutateCaller(t *testing.T) {
	jobs := []Job{{Viewport: "a"}, {Viewport: "b"}}
	q := newQueue(jobs)
	_, _ = q.pop()
	assert.Len(t, jobs, 2, "newQueue must copy its slice, not alias the caller's")
}

func TestDrainDeadEmitsAnOutcomePerRemainingJob(t *testing.T) {
	jobs := []Job{{Viewport: "a"}, {Viewport: "b"}, {Viewport: "c"}}
	q := newQueue(jobs)
	results := make(chan Result, len(jobs))

	drainDead(q, results)
	close(results)

	got := 0
	for r := range results {
		got++
		assert.Error(t, r.Outcome.Err)
		assert.Contains(t, r.Outcome.Err.Error(), "Chrome process crashed")
	}
	assert.Equal(t, len(jobs), got)

	_, ok := q.pop()
	assert.False(t, ok, "queue must be empty after draining")
}
