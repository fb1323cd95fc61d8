package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// NotificationKind separates role approval requests from article (post)
// notifications. The two come from different endpoints.
type NotificationKind string

const (
	KindApproval NotificationKind = "approval"
	KindPost     NotificationKind = "post"
)

// NotificationStatus is the workflow state of an approval request.
type NotificationStatus string

const (
	StatusPending  NotificationStatus = "PENDING"
	StatusApproved NotificationStatus = "APPROVED"
	StatusRejected NotificationStatus = "REJECTED"
)

// Notification is an alert addressed to exactly one role.
type Notification struct {
	ID        ID                 `json:"id"`
	Kind      NotificationKind   `json:"kind,omitempty"`
	Role      Role               `json:"role"`
	Message   string             `json:"message"`
	Seen      bool               `json:"seen"`
	Status    NotificationStatus `json:"notificationStatus,omitempty"`
	Requester string             `json:"userEmail,omitempty"`
	PostID    ID                 `json:"postId,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

// notificationWire lists every field alias the backends have used.
type notificationWire struct {
	ID                 ID     `json:"id"`
	NotificationID     ID     `json:"notificationId"`
	Kind               string `json:"kind"`
	Role               string `json:"role"`
	ReceiverRole       string `json:"receiverRole"`
	Message            string `json:"message"`
	Seen               *bool  `json:"seen"`
	IsSeen             *bool  `json:"isSeen"`
	Read               *bool  `json:"read"`
	IsRead             *bool  `json:"isRead"`
	Status             string `json:"status"`
	NotificationStatus string `json:"notificationStatus"`
	UserEmail          string `json:"userEmail"`
	PostID             ID     `json:"postId"`
	Timestamp          string `json:"timestamp"`
	LocalDateTime      string `json:"localDateTime"`
	CreatedAt          string `json:"createdAt"`
}

// UnmarshalJSON decodes a notification from any of the backend shapes.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var w notificationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("decoding notification: %w", err)
	}

	*n = Notification{
		ID:        w.ID,
		Kind:      NotificationKind(w.Kind),
		Role:      ParseRole(firstNonEmpty(w.Role, w.ReceiverRole)),
		Message:   w.Message,
		Status:    NotificationStatus(strings.ToUpper(w.NotificationStatus)),
		Requester: w.UserEmail,
		PostID:    w.PostID,
	}
	if n.ID == "" {
		n.ID = w.NotificationID
	}
	n.Seen = isTrue(w.Seen) || isTrue(w.IsSeen) || isTrue(w.Read) ||
		isTrue(w.IsRead) || strings.EqualFold(w.Status, "READ")

	raw := firstNonEmpty(w.LocalDateTime, w.Timestamp, w.CreatedAt)
	if raw != "" {
		ts, err := ParseTimestamp(raw)
		if err != nil {
			return fmt.Errorf("decoding notification %s: %w", n.ID, err)
		}
		n.Timestamp = ts
	}
	return nil
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses the timestamp formats used by the notification
// endpoints. Values without a zone are read as local time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func isTrue(b *bool) bool { return b != nil && *b }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
