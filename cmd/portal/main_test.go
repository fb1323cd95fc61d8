package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/nhle/content-portal/internal/model"
)

func TestWriteUnseenTable(t *testing.T) {
	gofakeit.Seed(7)
	report := unseenReport{
		Role:       model.RoleAdmin,
		Total:      2,
		PostUnseen: 1,
		Items: []unseenRow{
			{ID: "1", Role: model.RoleAdmin, Status: model.StatusPending, Message: gofakeit.Sentence(6), Timestamp: time.Now()},
			{ID: "2", Role: model.RoleEditor, Message: "new\npost", Timestamp: time.Now()},
		},
	}

	var buf bytes.Buffer
	if err := writeUnseenTable(&buf, report); err != nil {
		t.Fatalf("writeUnseenTable: %v", err)
	}
	out := buf.String()

	for _, want := range []string{"ROLE", "PENDING", "new post", "2 unseen as ADMIN (1 posts)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 5 {
		t.Errorf("got %d lines, want 5:\n%s", lines, out)
	}
}

func TestOneLineTruncates(t *testing.T) {
	long := strings.Repeat("word ", 40)
	got := oneLine(long)
	if len(got) != 80 || !strings.HasSuffix(got, "...") {
		t.Errorf("oneLine = %q (%d)", got, len(got))
	}
	if got := oneLine("  a \t b  "); got != "a b" {
		t.Errorf("oneLine = %q", got)
	}
}

func TestBufferIsNotTerminal(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("bytes.Buffer reported as terminal")
	}
}

func TestFormatExpiry(t *testing.T) {
	if got := formatExpiry(time.Time{}); got != "never" {
		t.Errorf("formatExpiry(zero) = %q", got)
	}
}
