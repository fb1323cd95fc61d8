package api

import (
	"testing"
	"time"

	"github.com/nhle/content-portal/internal/model"
)

func TestDecodeListShapes(t *testing.T) {
	cases := map[string]string{
		"bare":    `[{"id":1,"title":"a"},{"id":"2","title":"b"}]`,
		"results": `{"results":[{"id":1,"title":"a"},{"id":"2","title":"b"}]}`,
		"content": `{"content":[{"id":1,"title":"a"},{"id":"2","title":"b"}],"totalUnseen":2}`,
		"data":    `{"data":[{"id":1,"title":"a"},{"id":"2","title":"b"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := DecodeArticles([]byte(body))
			if err != nil {
				t.Fatalf("DecodeArticles: %v", err)
			}
			if len(got) != 2 || got[0].ID != "1" || got[1].ID != "2" {
				t.Errorf("got %+v", got)
			}
		})
	}
}

func TestDecodeListEmpty(t *testing.T) {
	for _, body := range []string{``, `null`, `{}`, `{"results":null}`} {
		got, err := DecodeJobs([]byte(body))
		if err != nil {
			t.Fatalf("DecodeJobs(%q): %v", body, err)
		}
		if got == nil || len(got) != 0 {
			t.Errorf("DecodeJobs(%q) = %#v, want empty slice", body, got)
		}
	}
}

func TestDecodePage(t *testing.T) {
	page, err := DecodePage[model.Job]([]byte(`{"results":[{"id":1}],"next_cursor":null,"has_next":false}`))
	if err != nil {
		t.Fatalf("DecodePage: %v", err)
	}
	if page.HasNext || page.NextCursor != nil {
		t.Errorf("page = %+v", page)
	}

	page, err = DecodePage[model.Job]([]byte(`[{"id":1},{"id":2}]`))
	if err != nil {
		t.Fatalf("DecodePage bare: %v", err)
	}
	if page.HasNext || len(page.Results) != 2 {
		t.Errorf("bare page = %+v", page)
	}
}

func TestDecodeNotificationsAliases(t *testing.T) {
	body := `{"content":[
		{"notificationId":1,"receiverRole":"creator","message":"m1","isSeen":false,"localDateTime":"2024-05-01T10:00:00"},
		{"id":2,"role":"PUBLISHER","message":"m2","read":true,"timestamp":"2024-05-02T10:00:00Z"},
		{"id":3,"role":"ADMIN","status":"READ","createdAt":"2024-05-03 08:30:00"}
	],"totalUnseen":1}`

	list, err := DecodeNotifications([]byte(body))
	if err != nil {
		t.Fatalf("DecodeNotifications: %v", err)
	}
	if list.TotalUnseen == nil || *list.TotalUnseen != 1 {
		t.Errorf("TotalUnseen = %v", list.TotalUnseen)
	}
	if len(list.Items) != 3 {
		t.Fatalf("len = %d", len(list.Items))
	}

	first := list.Items[0]
	if first.ID != "1" || first.Role != model.RoleCreator || first.Seen {
		t.Errorf("first = %+v", first)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 0, time.Local)
	if !first.Timestamp.Equal(want) {
		t.Errorf("first timestamp = %v, want %v", first.Timestamp, want)
	}
	if first.Kind != model.KindApproval {
		t.Errorf("Kind = %q", first.Kind)
	}
	if !list.Items[1].Seen || !list.Items[2].Seen {
		t.Errorf("seen aliases not honored: %+v", list.Items[1:])
	}
}
