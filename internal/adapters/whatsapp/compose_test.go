package whatsapp

import (
	"strings"
	"testing"
)

func TestTruncateKeepsShortStrings(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Fatalf("expected unchanged string, got %q", got)
	}
}

func TestTruncateClampsWithEllipsis(t *testing.T) {
	got := Truncate(strings.Repeat("a", 100), 10)
	if len([]rune(got)) != 10 {
		t.Fatalf("expected 10 runes, got %d", len([]rune(got)))
	}
	if !strings.HasSuffix(got, "…") {
		t.Fatalf("expected ellipsis suffix, got %q", got)
	}
}

func TestTruncateIsRuneSafe(t *testing.T) {
	got := Truncate(strings.Repeat("日", 30), 5)
	if len([]rune(got)) != 5 {
		t.Fatalf("expected 5 runes, got %d (%q)", len([]rune(got)), got)
	}
}

func TestNewButtonsClampsCountAndTitles(t *testing.T) {
	msg := NewButtons("pick one", []Button{
		{ID: "a", Title: strings.Repeat("x", 40)},
		{ID: "b", Title: "ok"},
		{ID: "c", Title: "ok"},
		{ID: "d", Title: "dropped"},
	})
	if len(msg.Buttons) != MaxButtons {
		t.Fatalf("expected %d buttons, got %d", MaxButtons, len(msg.Buttons))
	}
	if got := len([]rune(msg.Buttons[0].Title)); got > ButtonTitleLimit {
		t.Fatalf("button title not clamped: %d runes", got)
	}
}

func TestNewButtonsDropsInvalidButtons(t *testing.T) {
	msg := NewButtons("pick", []Button{{ID: "", Title: "no id"}, {ID: "ok", Title: "ok"}})
	if len(msg.Buttons) != 1 || msg.Buttons[0].ID != "ok" {
		t.Fatalf("expected only the valid button, got %+v", msg.Buttons)
	}
}

func TestNewListClampsRows(t *testing.T) {
	msg := NewList("body", strings.Repeat("b", 50), []ListSection{{
		Title: "places",
		Rows: []ListRow{
			{ID: "1", Title: strings.Repeat("t", 60), Description: strings.Repeat("d", 200)},
			{ID: "", Title: "dropped"},
		},
	}})
	if len(msg.Sections) != 1 || len(msg.Sections[0].Rows) != 1 {
		t.Fatalf("unexpected sections: %+v", msg.Sections)
	}
	row := msg.Sections[0].Rows[0]
	if len([]rune(row.Title)) > RowTitleLimit {
		t.Fatalf("row title not clamped: %q", row.Title)
	}
	if len([]rune(row.Description)) > RowDescLimit {
		t.Fatalf("row description not clamped: %q", row.Description)
	}
	if len([]rune(msg.ButtonText)) > ButtonTitleLimit {
		t.Fatalf("button text not clamped: %q", msg.ButtonText)
	}
}

func TestWithHeaderAndFooterClamp(t *testing.T) {
	msg := NewButtons("body", []Button{{ID: "a", Title: "A"}},
		WithHeader(strings.Repeat("h", 100)),
		WithFooter(strings.Repeat("f", 100)),
	)
	if len([]rune(msg.Header)) > HeaderLimit {
		t.Fatalf("header not clamped: %d runes", len([]rune(msg.Header)))
	}
	if len([]rune(msg.Footer)) > FooterLimit {
		t.Fatalf("footer not clamped: %d runes", len([]rune(msg.Footer)))
	}
}

func TestBodyClampedToLimit(t *testing.T) {
	msg := NewText(strings.Repeat("b", 5000))
	if len([]rune(msg.Body)) > BodyLimit {
		t.Fatalf("body not clamped: %d runes", len([]rune(msg.Body)))
	}
}
