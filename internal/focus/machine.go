package focus

import (
	"time"

	"focus-keeper/internal/apperr"
	"focus-keeper/internal/userdoc"
)

// Achievement codes granted on completion.
const (
	AchievementFirstSession = "first_session"
	AchievementTenSessions  = "ten_sessions"
	AchievementStreak3      = "streak_3"
	AchievementStreak7      = "streak_7"
)

// StartSession moves doc from no active session to running.
// A document that already has a running session is left untouched and a
// conflict error is returned.
func StartSession(doc *userdoc.Document, id string, durationMin int, now time.Time) (*userdoc.Session, error) {
	if doc.ActiveSession != nil {
		return nil, apperr.Conflict("session already running")
	}
	doc.ActiveSession = &userdoc.Session{
		ID:            id,
		DurationMin:   durationMin,
		StartTs:       now.UnixMilli(),
		LostSecTotal:  0,
		Interruptions: []userdoc.Interruption{},
		Status:        userdoc.StatusRunning,
	}
	return doc.ActiveSession, nil
}

// FinishSession completes the running session, appends it to the history
// and updates the profile. It reports false, changing nothing, when no
// session is running.
func FinishSession(doc *userdoc.Document, now time.Time) (*userdoc.Session, bool) {
	active := doc.ActiveSession
	if active == nil {
		return nil, false
	}
	prevEnd := lastCompletedEnd(doc)

	s := *active
	s.EndTs = now.UnixMilli()
	if s.EndTs < s.StartTs {
		// wall clock stepped back since start
		s.EndTs = s.StartTs
	}
	s.Status = userdoc.StatusCompleted
	if s.Interruptions == nil {
		s.Interruptions = []userdoc.Interruption{}
	}

	doc.Sessions = append(doc.Sessions, s)
	doc.ActiveSession = nil
	award(&doc.Profile, s, prevEnd, len(doc.Sessions))

	return &doc.Sessions[len(doc.Sessions)-1], true
}

func lastCompletedEnd(doc *userdoc.Document) time.Time {
	if len(doc.Sessions) == 0 {
		return time.Time{}
	}
	return doc.Sessions[len(doc.Sessions)-1].Ended()
}

// award applies points, the daily streak and achievements for one
// completed session. Streak days are UTC calendar days.
func award(p *userdoc.Profile, s userdoc.Session, prevEnd time.Time, completed int) {
	p.Points += s.DurationMin

	end := s.Ended()
	switch days := dayDiff(prevEnd, end); {
	case prevEnd.IsZero():
		p.Streak = 1
	case days == 0:
		if p.Streak == 0 {
			p.Streak = 1
		}
	case days == 1:
		p.Streak++
	default:
		p.Streak = 1
	}
	if p.Streak > p.BestStreak {
		p.BestStreak = p.Streak
	}

	if completed >= 1 {
		p.Grant(AchievementFirstSession)
	}
	if completed >= 10 {
		p.Grant(AchievementTenSessions)
	}
	if p.Streak >= 3 {
		p.Grant(AchievementStreak3)
	}
	if p.Streak >= 7 {
		p.Grant(AchievementStreak7)
	}
}

func dayDiff(a, b time.Time) int {
	if a.IsZero() {
		return 0
	}
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	da := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	db := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}
