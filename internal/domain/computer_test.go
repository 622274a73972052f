package domain

import (
	"testing"
	"time"
)

func TestApplyHeartbeat(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		current     ComputerStatus
		reported    ComputerStatus
		want        ComputerStatus
		wantChanged bool
	}{
		{"offline comes online", ComputerStatusOffline, ComputerStatusOnline, ComputerStatusOnline, true},
		{"online stays online", ComputerStatusOnline, ComputerStatusOnline, ComputerStatusOnline, false},
		{"online goes idle", ComputerStatusOnline, ComputerStatusIdle, ComputerStatusIdle, true},
		{"maintenance preserved", ComputerStatusMaintenance, ComputerStatusOnline, ComputerStatusMaintenance, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Computer{Status: tt.current}

			changed := c.ApplyHeartbeat(tt.reported, now)

			if changed != tt.wantChanged {
				t.Errorf("changed = %v, want %v", changed, tt.wantChanged)
			}
			if c.Status != tt.want {
				t.Errorf("status = %s, want %s", c.Status, tt.want)
			}
			// Heartbeat фиксируется всегда, даже для maintenance.
			if c.LastHeartbeatAt == nil || !c.LastHeartbeatAt.Equal(now) {
				t.Errorf("LastHeartbeatAt = %v, want %v", c.LastHeartbeatAt, now)
			}
		})
	}
}

func TestParseComputerStatus(t *testing.T) {
	tests := []struct {
		in   string
		want ComputerStatus
	}{
		{"online", ComputerStatusOnline},
		{"idle", ComputerStatusIdle},
		{"shutting_down", ComputerStatusShuttingDown},
		{"maintenance", ComputerStatusMaintenance},
		{"offline", ComputerStatusOffline},
		{"rebooting", ComputerStatusOffline},
		{"", ComputerStatusOffline},
	}

	for _, tt := range tests {
		if got := ParseComputerStatus(tt.in); got != tt.want {
			t.Errorf("ParseComputerStatus(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCommandStatusNeedsRedelivery(t *testing.T) {
	retryable := []CommandStatus{CommandStatusPending, CommandStatusQueued}
	for _, s := range retryable {
		if !s.NeedsRedelivery() {
			t.Errorf("%s must need redelivery", s)
		}
	}

	settled := []CommandStatus{CommandStatusSent, CommandStatusInProgress, CommandStatusCompleted, CommandStatusFailed}
	for _, s := range settled {
		if s.NeedsRedelivery() {
			t.Errorf("%s must not need redelivery", s)
		}
	}
}
