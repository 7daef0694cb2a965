package userdoc

import (
	"encoding/json"
	"sort"
	"time"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Document is the full persisted state for one user.
// Field names match the mini-app's JSON contract.
type Document struct {
	UserID        string            `json:"tgId"`
	CreatedAt     time.Time         `json:"createdAt"`
	Profile       Profile           `json:"profile"`
	Tasks         []json.RawMessage `json:"tasks"`
	ActiveSession *Session          `json:"activeSession"`
	Sessions      []Session         `json:"sessions"`
}

type Profile struct {
	Points       int      `json:"points"`
	Streak       int      `json:"streak"`
	BestStreak   int      `json:"bestStreak"`
	Achievements []string `json:"achievements"`
}

// Session is one timed focus run. Timestamps are unix milliseconds.
type Session struct {
	ID            string         `json:"id"`
	DurationMin   int            `json:"durationMin"`
	StartTs       int64          `json:"startTs"`
	EndTs         int64          `json:"endTs,omitempty"`
	LostSecTotal  int            `json:"lostSecTotal"`
	Interruptions []Interruption `json:"interruptions"`
	Status        Status         `json:"status"`
}

type Interruption struct {
	Ts      int64  `json:"ts"`
	LostSec int    `json:"lostSec"`
	Reason  string `json:"reason,omitempty"`
}

// New returns the default document for a key that has never been saved.
func New(userID string, now time.Time) *Document {
	return &Document{
		UserID:    userID,
		CreatedAt: now.UTC(),
		Profile:   Profile{Achievements: []string{}},
		Tasks:     []json.RawMessage{},
		Sessions:  []Session{},
	}
}

// Normalize fills nil collections so the document always serializes
// arrays instead of nulls, and keeps achievements a sorted set.
func (d *Document) Normalize() {
	if d.Tasks == nil {
		d.Tasks = []json.RawMessage{}
	}
	if d.Sessions == nil {
		d.Sessions = []Session{}
	}
	for i := range d.Sessions {
		if d.Sessions[i].Interruptions == nil {
			d.Sessions[i].Interruptions = []Interruption{}
		}
	}
	if d.ActiveSession != nil && d.ActiveSession.Interruptions == nil {
		d.ActiveSession.Interruptions = []Interruption{}
	}
	d.Profile.Achievements = uniqueSorted(d.Profile.Achievements)
}

// HasAchievement reports whether code is already in the profile.
func (p *Profile) HasAchievement(code string) bool {
	for _, a := range p.Achievements {
		if a == code {
			return true
		}
	}
	return false
}

// Grant adds code to the achievement set. It reports whether it was new.
func (p *Profile) Grant(code string) bool {
	if p.HasAchievement(code) {
		return false
	}
	p.Achievements = uniqueSorted(append(p.Achievements, code))
	return true
}

// Clone returns a deep copy, so callers can hand a session out of a
// queued operation without sharing the document's backing arrays.
func (s Session) Clone() Session {
	out := s
	out.Interruptions = append([]Interruption{}, s.Interruptions...)
	return out
}

func (s Session) Started() time.Time { return time.UnixMilli(s.StartTs).UTC() }

func (s Session) Ended() time.Time {
	if s.EndTs == 0 {
		return time.Time{}
	}
	return time.UnixMilli(s.EndTs).UTC()
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
