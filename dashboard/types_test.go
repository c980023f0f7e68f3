package dashboard

import (
	"errors"
	"testing"
)

func TestDecodeSnapshot_Valid(t *testing.T) {
	tests := []struct {
		category Category
		raw      string
	}{
		{CategoryKPI, `{"taskCompletionRate":{"value":90,"change":1}}`},
		{CategoryTeamPerformance, `[{"date":"Jan","productivity":1,"engagement":2,"satisfaction":3}]`},
		{CategoryTaskCompletion, `[{"name":"Team A","completed":1,"pending":2,"overdue":0}]`},
		{CategoryProjectProgress, `[{"name":"Docs","progress":50}]`},
		{CategoryAnnouncements, `[{"id":"1","content":"hi","date":"2024-01-01T00:00:00.000Z","author":{"name":"a","avatar":"b"}}]`},
	}

	for _, tt := range tests {
		t.Run(string(tt.category), func(t *testing.T) {
			snap, err := DecodeSnapshot(tt.category, tt.raw)
			if err != nil {
				t.Fatalf("DecodeSnapshot() error = %v", err)
			}
			if snap.Category() != tt.category {
				t.Errorf("Category() = %s, want %s", snap.Category(), tt.category)
			}
		})
	}
}

func TestDecodeSnapshot_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		category Category
		raw      string
	}{
		{"kpi not json", CategoryKPI, "nope"},
		{"kpi missing taskCompletionRate", CategoryKPI, `{"teamActivity":{"value":1,"change":0}}`},
		{"kpi is array", CategoryKPI, `[]`},
		{"empty table", CategoryTaskCompletion, `[]`},
		{"table is object", CategoryProjectProgress, `{"name":"x"}`},
		{"announcements null", CategoryAnnouncements, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeSnapshot(tt.category, tt.raw)
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("DecodeSnapshot() error = %v, want ErrInvalidSnapshot", err)
			}
		})
	}
}

func TestDecodeSnapshot_UnknownCategory(t *testing.T) {
	_, err := DecodeSnapshot("bogus", `{}`)
	if !errors.Is(err, ErrUnknownCategory) {
		t.Errorf("error = %v, want ErrUnknownCategory", err)
	}
}

func TestEncodeSnapshot_OmitsEmptyLink(t *testing.T) {
	raw, err := EncodeSnapshot(Announcements{{ID: "1", Content: "x"}})
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	want := `[{"id":"1","content":"x","date":"","author":{"name":"","avatar":""}}]`
	if raw != want {
		t.Errorf("EncodeSnapshot() = %s, want %s", raw, want)
	}
}

func TestEncodeSnapshot_Nil(t *testing.T) {
	if _, err := EncodeSnapshot(nil); !errors.Is(err, ErrInvalidSnapshot) {
		t.Errorf("error = %v, want ErrInvalidSnapshot", err)
	}
}

func TestCanonicalJSON(t *testing.T) {
	a, err := CanonicalJSON(`{"b": 1, "a": [1, 2.50]}`)
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	b, err := CanonicalJSON(`{"a":[1,2.50],"b":1}`)
	if err != nil {
		t.Fatalf("CanonicalJSON() error = %v", err)
	}
	if a != b {
		t.Errorf("canonical forms differ: %s vs %s", a, b)
	}

	c, _ := CanonicalJSON(`{"a":[1,2.5],"b":2}`)
	if a == c {
		t.Error("different documents produced the same canonical form")
	}

	if _, err := CanonicalJSON("{"); err == nil {
		t.Error("expected error for truncated document")
	}
}
