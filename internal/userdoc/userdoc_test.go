package userdoc

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNew_DefaultDocument(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	d := New("u1", now)
	if d.UserID != "u1" || !d.CreatedAt.Equal(now) {
		t.Fatalf("unexpected identity: %+v", d)
	}
	if d.ActiveSession != nil || len(d.Sessions) != 0 || d.Profile.Points != 0 {
		t.Fatalf("not a fresh document: %+v", d)
	}

	b, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"tgId":"u1"`, `"activeSession":null`, `"sessions":[]`, `"tasks":[]`, `"achievements":[]`} {
		if !strings.Contains(s, want) {
			t.Fatalf("want %s in %s", want, s)
		}
	}
}

func TestNormalize_FillsNilsAndDedupesAchievements(t *testing.T) {
	var d Document
	if err := json.Unmarshal([]byte(`{"tgId":"x","profile":{"achievements":["b","a","b"]},"sessions":[{"id":"s"}]}`), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	d.Normalize()
	if d.Tasks == nil || d.Sessions[0].Interruptions == nil {
		t.Fatalf("nil collections left: %+v", d)
	}
	if got := strings.Join(d.Profile.Achievements, ","); got != "a,b" {
		t.Fatalf("want a,b got %s", got)
	}
}

func TestProfileGrant(t *testing.T) {
	var p Profile
	if !p.Grant("first_session") {
		t.Fatalf("first grant should be new")
	}
	if p.Grant("first_session") {
		t.Fatalf("second grant should be a no-op")
	}
	if len(p.Achievements) != 1 {
		t.Fatalf("want 1 achievement, got %v", p.Achievements)
	}
}

func TestSessionClone_DoesNotShareInterruptions(t *testing.T) {
	s := Session{ID: "a", Interruptions: []Interruption{{Ts: 1, LostSec: 5}}}
	c := s.Clone()
	c.Interruptions[0].LostSec = 99
	if s.Interruptions[0].LostSec != 5 {
		t.Fatalf("clone shares backing array")
	}
}
