package focus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/userdoc"
)

var t0 = time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)

func TestStartSession_FromAbsent(t *testing.T) {
	doc := userdoc.New("u1", t0)
	s, err := StartSession(doc, "s1", 25, t0)
	require.NoError(t, err)
	assert.Equal(t, userdoc.StatusRunning, s.Status)
	assert.Equal(t, 25, s.DurationMin)
	assert.Equal(t, t0.UnixMilli(), s.StartTs)
	assert.Zero(t, s.EndTs)
	assert.Zero(t, s.LostSecTotal)
	assert.Empty(t, s.Interruptions)
	assert.Same(t, doc.ActiveSession, s)
	assert.Empty(t, doc.Sessions)
}

func TestStartSession_ConflictLeavesActiveUntouched(t *testing.T) {
	doc := userdoc.New("u1", t0)
	first, err := StartSession(doc, "s1", 25, t0)
	require.NoError(t, err)
	before := *first

	_, err = StartSession(doc, "s2", 50, t0.Add(time.Minute))
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.Equal(t, before, *doc.ActiveSession)
}

func TestFinishSession_MovesToHistory(t *testing.T) {
	doc := userdoc.New("u1", t0)
	_, err := StartSession(doc, "s1", 25, t0)
	require.NoError(t, err)

	s, ok := FinishSession(doc, t0.Add(25*time.Minute))
	require.True(t, ok)
	assert.Equal(t, userdoc.StatusCompleted, s.Status)
	assert.GreaterOrEqual(t, s.EndTs, s.StartTs)
	assert.Nil(t, doc.ActiveSession)
	require.Len(t, doc.Sessions, 1)
	assert.Equal(t, "s1", doc.Sessions[0].ID)
	assert.Equal(t, 25, doc.Profile.Points)
	assert.Equal(t, 1, doc.Profile.Streak)
	assert.Contains(t, doc.Profile.Achievements, AchievementFirstSession)
}

func TestFinishSession_AbsentIsNoop(t *testing.T) {
	doc := userdoc.New("u1", t0)
	s, ok := FinishSession(doc, t0)
	assert.False(t, ok)
	assert.Nil(t, s)
	assert.Empty(t, doc.Sessions)
	assert.Zero(t, doc.Profile.Points)
}

func TestFinishSession_ClockStepBackClampsEnd(t *testing.T) {
	doc := userdoc.New("u1", t0)
	_, _ = StartSession(doc, "s1", 25, t0)
	s, ok := FinishSession(doc, t0.Add(-time.Hour))
	require.True(t, ok)
	assert.Equal(t, s.StartTs, s.EndTs)
}

func TestAward_StreakAcrossDays(t *testing.T) {
	doc := userdoc.New("u1", t0)
	complete := func(at time.Time) {
		_, err := StartSession(doc, at.String(), 10, at)
		require.NoError(t, err)
		_, ok := FinishSession(doc, at.Add(10*time.Minute))
		require.True(t, ok)
	}

	complete(t0)
	complete(t0.Add(2 * time.Hour)) // same day
	assert.Equal(t, 1, doc.Profile.Streak)

	complete(t0.Add(24 * time.Hour))
	complete(t0.Add(48 * time.Hour))
	assert.Equal(t, 3, doc.Profile.Streak)
	assert.Contains(t, doc.Profile.Achievements, AchievementStreak3)

	complete(t0.Add(5 * 24 * time.Hour)) // gap resets
	assert.Equal(t, 1, doc.Profile.Streak)
	assert.Equal(t, 3, doc.Profile.BestStreak)
	assert.Equal(t, 50, doc.Profile.Points)
	assert.NotContains(t, doc.Profile.Achievements, AchievementTenSessions)
}

func TestAward_TenSessions(t *testing.T) {
	doc := userdoc.New("u1", t0)
	for i := 0; i < 10; i++ {
		at := t0.Add(time.Duration(i) * time.Hour)
		_, err := StartSession(doc, at.String(), 5, at)
		require.NoError(t, err)
		FinishSession(doc, at.Add(5*time.Minute))
	}
	assert.Contains(t, doc.Profile.Achievements, AchievementTenSessions)
	assert.Len(t, doc.Sessions, 10)
}
