package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 5*time.Minute, cfg.CheckInterval)
	require.Equal(t, 24, cfg.AssignmentTimeoutHours)
	require.Equal(t, 4, cfg.CriticalAssignmentTimeoutHours)
	require.Equal(t, []int{12, 20, 23}, cfg.ReminderHoursFromAssignment)
	require.Equal(t, 3, cfg.MaxReassignmentAttempts)
	require.False(t, cfg.CanReassignToSameDoctor)
	require.Equal(t, 24, cfg.ReassignmentCooldownHours)
	require.Equal(t, 5*time.Minute, cfg.ExpirationGracePeriod)
	require.True(t, cfg.SchedulerEnabled)
	require.True(t, cfg.ReminderEnabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHECK_INTERVAL_SECONDS", "60")
	t.Setenv("ASSIGNMENT_TIMEOUT_HOURS", "48")
	t.Setenv("REMINDER_HOURS_FROM_ASSIGNMENT", "6, 30, 47")
	t.Setenv("CAN_REASSIGN_TO_SAME_DOCTOR", "true")
	t.Setenv("SCHEDULER_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, time.Minute, cfg.CheckInterval)
	require.Equal(t, 48, cfg.AssignmentTimeoutHours)
	require.Equal(t, []int{6, 30, 47}, cfg.ReminderHoursFromAssignment)
	require.True(t, cfg.CanReassignToSameDoctor)
	require.False(t, cfg.SchedulerEnabled)
}

func TestLoad_CheckpointFiltering(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	// Defaults: standard timeout 24h keeps all of [12,20,23]; critical
	// timeout 4h keeps none, so critical assignments never get reminders.
	require.Equal(t, []int{12, 20, 23}, cfg.StandardReminderHours)
	require.Empty(t, cfg.CriticalReminderHours)
}

func TestLoad_CheckpointAtTimeoutIsDropped(t *testing.T) {
	t.Setenv("REMINDER_HOURS_FROM_ASSIGNMENT", "12,24,36")

	cfg, err := Load()
	require.NoError(t, err)

	// 24 is not strictly below the 24h timeout; 36 is past it.
	require.Equal(t, []int{12}, cfg.StandardReminderHours)
}

func TestLoad_CheckpointsSorted(t *testing.T) {
	t.Setenv("REMINDER_HOURS_FROM_ASSIGNMENT", "23,12,20")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, []int{12, 20, 23}, cfg.ReminderHoursFromAssignment)
}

func TestLoad_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"zero interval", "CHECK_INTERVAL_SECONDS", "0"},
		{"negative timeout", "ASSIGNMENT_TIMEOUT_HOURS", "-1"},
		{"zero critical timeout", "CRITICAL_ASSIGNMENT_TIMEOUT_HOURS", "0"},
		{"critical timeout above standard", "CRITICAL_ASSIGNMENT_TIMEOUT_HOURS", "48"},
		{"zero attempts", "MAX_REASSIGNMENT_ATTEMPTS", "0"},
		{"bad driver", "DATABASE_DRIVER", "oracle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, 24*time.Hour, cfg.AssignmentTimeout())
	require.Equal(t, 4*time.Hour, cfg.CriticalAssignmentTimeout())
	require.Equal(t, 24*time.Hour, cfg.ReassignmentCooldown())
}
