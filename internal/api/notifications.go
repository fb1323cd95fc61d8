package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/nhle/content-portal/internal/model"
)

// PostFeedPageSize is the page size of the post notification feed. A
// shorter page marks the end of the feed.
const PostFeedPageSize = 20

// UnseenRoleNotifications fetches the unseen approval notifications
// visible to role.
func (c *Client) UnseenRoleNotifications(ctx context.Context, role model.Role) (NotificationList, error) {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	raw, err := c.getRaw(ctx, "unseen-notifications-by-role", q)
	if err != nil {
		return NotificationList{}, fmt.Errorf("listing unseen notifications: %w", err)
	}
	return DecodeNotifications(raw)
}

// AllNotifications fetches every approval notification visible to role.
// Super admins use a dedicated endpoint.
func (c *Client) AllNotifications(ctx context.Context, role model.Role) (NotificationList, error) {
	path := "get-all-notifcations-by-role"
	if role == model.RoleSuperAdmin {
		path = "get-all-notifications"
	}
	raw, err := c.getRaw(ctx, path, url.Values{"limit": {"20"}})
	if err != nil {
		return NotificationList{}, fmt.Errorf("listing notifications: %w", err)
	}
	return DecodeNotifications(raw)
}

// NotificationsByStatus fetches approval notifications in a workflow state.
func (c *Client) NotificationsByStatus(ctx context.Context, status model.NotificationStatus, role model.Role) (NotificationList, error) {
	q := url.Values{"status": {string(status)}, "limit": {"20"}}
	if role != "" {
		q.Set("role", string(role))
	}
	raw, err := c.getRaw(ctx, "notifications-status", q)
	if err != nil {
		return NotificationList{}, fmt.Errorf("listing %s notifications: %w", status, err)
	}
	return DecodeNotifications(raw)
}

// MarkSeen marks one approval notification as seen.
func (c *Client) MarkSeen(ctx context.Context, id model.ID) error {
	if err := c.Put(ctx, url.PathEscape(id.String())+"/seen", nil, nil, nil); err != nil {
		return fmt.Errorf("marking notification %s seen: %w", id, err)
	}
	return nil
}

// MarkSeenIDs marks a batch of approval notifications as seen.
func (c *Client) MarkSeenIDs(ctx context.Context, ids []model.ID) error {
	if len(ids) == 0 {
		return nil
	}
	if err := c.Post(ctx, "seen", nil, ids, nil); err != nil {
		return fmt.Errorf("marking %d notifications seen: %w", len(ids), err)
	}
	return nil
}

// MarkAllSeen calls the bulk seen endpoint. The server only clears
// notifications addressed to the caller's own role.
func (c *Client) MarkAllSeen(ctx context.Context, role model.Role) error {
	q := url.Values{}
	if role != "" {
		q.Set("role", string(role))
	}
	if err := c.Put(ctx, "seen-all", q, nil, nil); err != nil {
		return fmt.Errorf("marking all notifications seen: %w", err)
	}
	return nil
}

// Approve approves a pending request.
func (c *Client) Approve(ctx context.Context, id model.ID) error {
	if err := c.Put(ctx, url.PathEscape(id.String())+"/approve", nil, struct{}{}, nil); err != nil {
		return fmt.Errorf("approving request %s: %w", id, err)
	}
	return nil
}

// Reject rejects a pending request with a reason.
func (c *Client) Reject(ctx context.Context, id model.ID, reason string) error {
	body := map[string]string{"reason": reason}
	if err := c.Put(ctx, url.PathEscape(id.String())+"/reject", nil, body, nil); err != nil {
		return fmt.Errorf("rejecting request %s: %w", id, err)
	}
	return nil
}

// postCursorFields are the fields of a feed item that seed the next cursor.
type postCursorFields struct {
	CreatedAt      string   `json:"createdAt"`
	NotificationID model.ID `json:"notificationId"`
	ID             model.ID `json:"id"`
}

// PostNotifications fetches one page of the post notification feed. The
// cursor is opaque to callers; it encodes the createdAt and id of the
// last item on the previous page.
func (c *Client) PostNotifications(ctx context.Context, cursor *string) (model.Page[model.Notification], error) {
	q := url.Values{"size": {strconv.Itoa(PostFeedPageSize)}}
	if cursor != nil && *cursor != "" {
		parsed, err := url.ParseQuery(*cursor)
		if err != nil {
			return model.Page[model.Notification]{}, fmt.Errorf("parsing feed cursor: %w", err)
		}
		q.Set("createdAt", parsed.Get("createdAt"))
		q.Set("cursorId", parsed.Get("cursorId"))
	}

	raw, err := c.getRaw(ctx, "post-notifications", q)
	if err != nil {
		return model.Page[model.Notification]{}, fmt.Errorf("listing post notifications: %w", err)
	}

	items, err := DecodeList[model.Notification](raw)
	if err != nil {
		return model.Page[model.Notification]{}, err
	}
	for i := range items {
		items[i].Kind = model.KindPost
	}

	page := model.Page[model.Notification]{Results: items}
	if len(items) < PostFeedPageSize {
		return page, nil
	}

	fields, err := DecodeList[postCursorFields](raw)
	if err != nil || len(fields) == 0 {
		return page, nil
	}
	last := fields[len(fields)-1]
	id := last.NotificationID
	if id == "" {
		id = last.ID
	}
	next := url.Values{"createdAt": {last.CreatedAt}, "cursorId": {id.String()}}.Encode()
	page.NextCursor = &next
	page.HasNext = true
	return page, nil
}

// PostUnseenCount fetches the unseen post notification count. The
// endpoint returns a bare number or an object with a count field.
func (c *Client) PostUnseenCount(ctx context.Context) (int, error) {
	raw, err := c.getRaw(ctx, "post-notifications/unseen-count", nil)
	if err != nil {
		return 0, fmt.Errorf("getting post unseen count: %w", err)
	}
	return decodeCount(raw)
}

func decodeCount(raw []byte) (int, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, nil
	}
	if raw[0] != '{' {
		var n int
		if err := json.Unmarshal(raw, &n); err != nil {
			return 0, fmt.Errorf("decoding count: %w", err)
		}
		return n, nil
	}
	var obj struct {
		Count       *int `json:"count"`
		UnseenCount *int `json:"unseenCount"`
		TotalUnseen *int `json:"totalUnseen"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return 0, fmt.Errorf("decoding count: %w", err)
	}
	for _, n := range []*int{obj.Count, obj.UnseenCount, obj.TotalUnseen} {
		if n != nil {
			return *n, nil
		}
	}
	return 0, nil
}

// MarkPostSeen marks one post notification as seen.
func (c *Client) MarkPostSeen(ctx context.Context, id model.ID) error {
	if err := c.Patch(ctx, "post-notifications/"+url.PathEscape(id.String())+"/seen", nil, nil); err != nil {
		return fmt.Errorf("marking post notification %s seen: %w", id, err)
	}
	return nil
}
