package domain

import "time"

// MediaQuota caps how many items a user may start per day, ISO week and
// calendar month. A zero limit means unlimited for that window.
//
// Counters roll over lazily: every check or increment first zeroes any window
// whose reset mark has passed and moves the mark to the next boundary.
type MediaQuota struct {
	UserID string `json:"user_id"`

	DailyLimit   int       `json:"daily_limit"`
	DailyUsed    int       `json:"daily_used"`
	DailyResetAt time.Time `json:"daily_reset_at"`

	WeeklyLimit   int       `json:"weekly_limit"`
	WeeklyUsed    int       `json:"weekly_used"`
	WeeklyResetAt time.Time `json:"weekly_reset_at"`

	MonthlyLimit   int       `json:"monthly_limit"`
	MonthlyUsed    int       `json:"monthly_used"`
	MonthlyResetAt time.Time `json:"monthly_reset_at"`

	SetBy     string    `json:"set_by,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewMediaQuota returns a quota with zeroed counters whose windows start at now.
func NewMediaQuota(userID string, daily, weekly, monthly int, now time.Time) MediaQuota {
	return MediaQuota{
		UserID:         userID,
		DailyLimit:     daily,
		DailyResetAt:   NextDailyReset(now),
		WeeklyLimit:    weekly,
		WeeklyResetAt:  NextWeeklyReset(now),
		MonthlyLimit:   monthly,
		MonthlyResetAt: NextMonthlyReset(now),
		UpdatedAt:      now,
	}
}

// Rollover resets every window whose mark has passed at now. It reports
// whether anything changed.
func (q *MediaQuota) Rollover(now time.Time) bool {
	changed := false
	if !now.Before(q.DailyResetAt) {
		q.DailyUsed = 0
		q.DailyResetAt = NextDailyReset(now)
		changed = true
	}
	if !now.Before(q.WeeklyResetAt) {
		q.WeeklyUsed = 0
		q.WeeklyResetAt = NextWeeklyReset(now)
		changed = true
	}
	if !now.Before(q.MonthlyResetAt) {
		q.MonthlyUsed = 0
		q.MonthlyResetAt = NextMonthlyReset(now)
		changed = true
	}
	return changed
}

// IsExceeded rolls the windows over and reports whether any window with a
// non-zero limit has reached it.
func (q *MediaQuota) IsExceeded(now time.Time) bool {
	q.Rollover(now)
	return reached(q.DailyUsed, q.DailyLimit) ||
		reached(q.WeeklyUsed, q.WeeklyLimit) ||
		reached(q.MonthlyUsed, q.MonthlyLimit)
}

// Increment rolls the windows over and counts one use in all three windows,
// whether or not they have a limit.
func (q *MediaQuota) Increment(now time.Time) {
	q.Rollover(now)
	q.DailyUsed++
	q.WeeklyUsed++
	q.MonthlyUsed++
}

// ExceededWindow names the first window that has reached its limit, or "".
func (q MediaQuota) ExceededWindow() string {
	switch {
	case reached(q.DailyUsed, q.DailyLimit):
		return "daily"
	case reached(q.WeeklyUsed, q.WeeklyLimit):
		return "weekly"
	case reached(q.MonthlyUsed, q.MonthlyLimit):
		return "monthly"
	}
	return ""
}

func reached(used, limit int) bool {
	return limit > 0 && used >= limit
}

// NextDailyReset returns the UTC midnight following now.
func NextDailyReset(now time.Time) time.Time {
	return midnightUTC(now).AddDate(0, 0, 1)
}

// NextWeeklyReset returns the next Monday at UTC midnight. When now already
// falls on a Monday the result is the Monday a full week later.
func NextWeeklyReset(now time.Time) time.Time {
	today := midnightUTC(now)
	days := (int(time.Monday) - int(today.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return today.AddDate(0, 0, days)
}

// NextMonthlyReset returns the first day of the next calendar month at UTC
// midnight.
func NextMonthlyReset(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}

// StartOfMonth returns the first instant of now's calendar month in UTC.
func StartOfMonth(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
