package model

import (
	"encoding/json"
	"slices"
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	if got := ParseRole(" super_admin "); got != RoleSuperAdmin {
		t.Errorf("ParseRole = %q", got)
	}
	if got := Role("").Initials(); got != "U" {
		t.Errorf("empty Initials = %q", got)
	}
	if got := Role("REVIEWER").Initials(); got != "R" {
		t.Errorf("unknown Initials = %q", got)
	}
}

func TestApprovalAudiences(t *testing.T) {
	if !slices.Equal(RoleSuperAdmin.ApprovalAudiences(), []Role{RoleAdmin, RoleSuperAdmin}) {
		t.Errorf("super admin audiences = %v", RoleSuperAdmin.ApprovalAudiences())
	}
	if RoleEditor.ApprovalAudiences() != nil || RoleEditor.CanReview() {
		t.Error("editor follows approvals")
	}
}

func TestNotificationDecodesAliases(t *testing.T) {
	raw := `{
		"notificationId": 42,
		"receiverRole": "admin",
		"message": "Publish request",
		"isRead": true,
		"notificationStatus": "pending",
		"userEmail": "writer@example.com",
		"localDateTime": "2024-03-05T10:15:00"
	}`

	var n Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if n.ID != "42" || n.Role != RoleAdmin || !n.Seen || n.Status != StatusPending {
		t.Errorf("notification = %+v", n)
	}
	want := time.Date(2024, 3, 5, 10, 15, 0, 0, time.Local)
	if !n.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, want)
	}
}

func TestNotificationReadStatus(t *testing.T) {
	var n Notification
	if err := json.Unmarshal([]byte(`{"id":"7","status":"read","timestamp":"2024-03-05 10:15:00"}`), &n); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if !n.Seen {
		t.Error("status READ not treated as seen")
	}
}

func TestParseTimestampRejectsGarbage(t *testing.T) {
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Error("ParseTimestamp accepted garbage")
	}
}
