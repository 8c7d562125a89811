package domain

import "time"

// Poll groups participants looking for a common meeting time.
// StartDate and EndDate are calendar dates (UTC midnight) and optional.
type Poll struct {
	ID        string
	Name      string
	StartDate *time.Time
	EndDate   *time.Time
	CreatedAt time.Time
}

// Participant is a named member of a poll. Names are unique per poll,
// ignoring case.
type Participant struct {
	ID        string
	PollID    string
	Name      string
	CreatedAt time.Time
}

// Date truncates t to midnight UTC of its UTC calendar day.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// WindowStart returns the first instant slots may start at, if the poll
// has a start date.
func (p Poll) WindowStart() (time.Time, bool) {
	if p.StartDate == nil {
		return time.Time{}, false
	}
	return Date(*p.StartDate), true
}

// WindowEnd returns the last instant slots may end at: the final
// millisecond of the end date.
func (p Poll) WindowEnd() (time.Time, bool) {
	if p.EndDate == nil {
		return time.Time{}, false
	}
	return Date(*p.EndDate).AddDate(0, 0, 1).Add(-time.Millisecond), true
}
