package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/nhle/content-portal/internal/model"
)

// envelope covers the wrapped list shapes the backends return.
type envelope struct {
	Results     json.RawMessage `json:"results"`
	Content     json.RawMessage `json:"content"`
	Data        json.RawMessage `json:"data"`
	NextCursor  *string         `json:"next_cursor"`
	HasNext     *bool           `json:"has_next"`
	TotalUnseen *int            `json:"totalUnseen"`
	Last        *bool           `json:"last"`
}

func (e envelope) items() json.RawMessage {
	for _, raw := range []json.RawMessage{e.Results, e.Content, e.Data} {
		if len(raw) > 0 && !bytes.Equal(raw, []byte("null")) {
			return raw
		}
	}
	return nil
}

// DecodeList normalizes a list response: a bare array, or an object
// carrying the array under "results", "content" or "data".
func DecodeList[T any](data []byte) ([]T, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return []T{}, nil
	}

	if data[0] == '[' {
		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("decoding list: %w", err)
		}
		return items, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decoding list envelope: %w", err)
	}
	raw := env.items()
	if raw == nil {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decoding list items: %w", err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// DecodePage normalizes a cursor page. A bare array is treated as a
// single final page.
func DecodePage[T any](data []byte) (model.Page[T], error) {
	items, err := DecodeList[T](data)
	if err != nil {
		return model.Page[T]{}, err
	}

	page := model.Page[T]{Results: items}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return page, nil
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return model.Page[T]{}, fmt.Errorf("decoding page envelope: %w", err)
	}
	if env.NextCursor != nil && *env.NextCursor != "" {
		page.NextCursor = env.NextCursor
	}
	switch {
	case env.HasNext != nil:
		page.HasNext = *env.HasNext
	case env.Last != nil:
		page.HasNext = !*env.Last
	default:
		page.HasNext = page.NextCursor != nil
	}
	return page, nil
}

// NotificationList is a normalized role notification response.
type NotificationList struct {
	Items []model.Notification

	// TotalUnseen is the server's own unseen total when it sent one.
	TotalUnseen *int
}

// DecodeNotifications is the adapter for role notification responses,
// which arrive as a bare array or as {content, totalUnseen}.
func DecodeNotifications(data []byte) (NotificationList, error) {
	items, err := DecodeList[model.Notification](data)
	if err != nil {
		return NotificationList{}, err
	}
	for i := range items {
		if items[i].Kind == "" {
			items[i].Kind = model.KindApproval
		}
	}
	out := NotificationList{Items: items}

	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var env envelope
		if err := json.Unmarshal(data, &env); err == nil {
			out.TotalUnseen = env.TotalUnseen
		}
	}
	return out, nil
}

// DecodeArticles is the adapter for article list responses.
func DecodeArticles(data []byte) ([]model.Article, error) {
	return DecodeList[model.Article](data)
}

// DecodeJobs is the adapter for job list responses.
func DecodeJobs(data []byte) ([]model.Job, error) {
	return DecodeList[model.Job](data)
}
