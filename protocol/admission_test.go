package protocol

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDeadlineTriggerClosesAtDeadline(t *testing.T) {
	start := time.Now()
	trig := NewDeadlineTrigger(start, time.Minute, 10)

	require.False(t, trig.ShouldClose(start))
	require.False(t, trig.ShouldClose(start.Add(59*time.Second)))
	require.True(t, trig.ShouldClose(start.Add(time.Minute)))
}

func TestDeadlineTriggerClosesEarlyWhenAllContributed(t *testing.T) {
	start := time.Now()
	trig := NewDeadlineTrigger(start, time.Hour, 2)

	trig.RecordContribution(1, start)
	require.False(t, trig.ShouldClose(start))

	// Same client again does not count twice.
	trig.RecordContribution(1, start)
	require.False(t, trig.ShouldClose(start))

	trig.RecordContribution(2, start)
	require.True(t, trig.ShouldClose(start))
}

func TestRollingTriggerClosesAtKDistinctContributors(t *testing.T) {
	start := time.Now()
	trig := NewRollingTrigger(start, 2, time.Hour)

	require.False(t, trig.ShouldClose(start))
	trig.RecordContribution(7, start)
	require.False(t, trig.ShouldClose(start))
	trig.RecordContribution(7, start)
	require.False(t, trig.ShouldClose(start))
	trig.RecordContribution(8, start)
	require.True(t, trig.ShouldClose(start))
}

func TestRollingTriggerClosesAtMaxAge(t *testing.T) {
	start := time.Now()
	trig := NewRollingTrigger(start, 100, 30*time.Second)

	trig.RecordContribution(1, start)
	require.False(t, trig.ShouldClose(start.Add(29*time.Second)))
	require.True(t, trig.ShouldClose(start.Add(30*time.Second)))
}
