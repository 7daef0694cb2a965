package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"focus-keeper/internal/storage"
)

// DailyStats summarizes journal activity for one calendar day.
type DailyStats struct {
	Date              string               `json:"date"`
	SessionsStarted   int                  `json:"sessions_started"`
	SessionsCompleted int                  `json:"sessions_completed"`
	FocusMinutes      int                  `json:"focus_minutes"`
	UniqueUsers       int                  `json:"unique_users"`
	UserStats         map[string]UserStats `json:"user_stats"`
}

type UserStats struct {
	UserID       string `json:"user_id"`
	Started      int    `json:"started"`
	Completed    int    `json:"completed"`
	FocusMinutes int    `json:"focus_minutes"`
}

// AnalyzeDailyLogs aggregates the events that fall on targetDate in its location.
func AnalyzeDailyLogs(events []storage.Event, targetDate time.Time) *DailyStats {
	startOfDay := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, targetDate.Location())
	endOfDay := startOfDay.AddDate(0, 0, 1)

	stats := &DailyStats{
		Date:      startOfDay.Format("2006-01-02"),
		UserStats: make(map[string]UserStats),
	}

	for _, event := range events {
		if event.Timestamp.Before(startOfDay) || !event.Timestamp.Before(endOfDay) {
			continue
		}
		if event.UserID == "" {
			continue
		}

		userStat, exists := stats.UserStats[event.UserID]
		if !exists {
			userStat = UserStats{UserID: event.UserID}
		}

		switch event.Kind {
		case storage.EventSessionStarted:
			stats.SessionsStarted++
			userStat.Started++
		case storage.EventSessionFinished:
			stats.SessionsCompleted++
			stats.FocusMinutes += event.DurationMin
			userStat.Completed++
			userStat.FocusMinutes += event.DurationMin
		default:
			continue
		}
		stats.UserStats[event.UserID] = userStat
	}

	stats.UniqueUsers = len(stats.UserStats)
	return stats
}

// GenerateReportSummary renders the stats as the plain-text admin report.
func (ds *DailyStats) GenerateReportSummary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Focus report for %s\n\n", ds.Date)
	fmt.Fprintf(&b, "Sessions started: %d\n", ds.SessionsStarted)
	fmt.Fprintf(&b, "Sessions completed: %d\n", ds.SessionsCompleted)
	fmt.Fprintf(&b, "Focus minutes: %d\n", ds.FocusMinutes)
	fmt.Fprintf(&b, "Active users: %d\n", ds.UniqueUsers)

	if len(ds.UserStats) == 0 {
		return b.String()
	}

	users := make([]UserStats, 0, len(ds.UserStats))
	for _, us := range ds.UserStats {
		users = append(users, us)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FocusMinutes != users[j].FocusMinutes {
			return users[i].FocusMinutes > users[j].FocusMinutes
		}
		return users[i].UserID < users[j].UserID
	})

	b.WriteString("\nBy user:\n")
	for _, us := range users {
		fmt.Fprintf(&b, "- %s: %d/%d sessions, %d min\n", us.UserID, us.Completed, us.Started, us.FocusMinutes)
	}
	return b.String()
}

func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Today loads the journal and aggregates the current day in now's location.
func Today(rec storage.Recorder, now time.Time) (*DailyStats, error) {
	events, err := rec.LoadEvents()
	if err != nil {
		return nil, fmt.Errorf("load journal: %w", err)
	}
	return AnalyzeDailyLogs(events, now), nil
}
