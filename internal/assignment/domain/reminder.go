package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrDuplicateReminder is returned when a reminder for the same assignment
// and checkpoint hour already exists.
var ErrDuplicateReminder = errors.New("reminder already sent for this checkpoint")

// CaseAssignmentReminder is the audit and idempotency record of one reminder
// checkpoint fired for one assignment. Uniqueness per (AssignmentID,
// ReminderHour) is what bounds duplicate sends.
type CaseAssignmentReminder struct {
	AssignmentID   uuid.UUID
	ReminderHour   int
	SentAt         time.Time
	HoursRemaining int
}

// NewCaseAssignmentReminder creates a reminder record for a fired checkpoint.
func NewCaseAssignmentReminder(assignmentID uuid.UUID, reminderHour, hoursRemaining int, sentAt time.Time) CaseAssignmentReminder {
	return CaseAssignmentReminder{
		AssignmentID:   assignmentID,
		ReminderHour:   reminderHour,
		SentAt:         sentAt.UTC(),
		HoursRemaining: hoursRemaining,
	}
}

// FormatHoursRemaining renders a remaining-time span for reminder messages:
// "1 hour", "12 hours", "1 day", "1 day 3 hours", "2 days 1 hour".
func FormatHoursRemaining(hours int) string {
	if hours < 0 {
		hours = 0
	}
	days := hours / 24
	rem := hours % 24

	switch {
	case days == 0:
		return pluralHours(rem)
	case rem == 0:
		return pluralDays(days)
	default:
		return pluralDays(days) + " " + pluralHours(rem)
	}
}

func pluralHours(h int) string {
	if h == 1 {
		return "1 hour"
	}
	return fmt.Sprintf("%d hours", h)
}

func pluralDays(d int) string {
	if d == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", d)
}
