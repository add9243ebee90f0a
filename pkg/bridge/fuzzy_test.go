package bridge

import "testing"

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"abc", "abc", 0},
		{"abc", "abd", 1},
		{"kitten", "sitting", 3},
		{"wpa1", "wpa2", 1},
		{"gate", "tage", 2},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b); got != tt.want {
			t.Errorf("levenshtein(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestSuggestShortNames(t *testing.T) {
	candidates := []string{"WPA1", "WPA2", "RPTR", "BASE", "wpa1", ""}

	got := suggestShortNames("WPA3", candidates)
	if len(got) != maxSuggestions {
		t.Fatalf("got %d suggestions, want %d", len(got), maxSuggestions)
	}
	if got[0] != "WPA1" || got[1] != "WPA2" {
		t.Errorf("closest suggestions = %v, want WPA1, WPA2 first", got)
	}
	for _, s := range got {
		if s == "wpa1" {
			t.Error("case-insensitive duplicates must be removed")
		}
	}
}

func TestSuggestShortNamesFewCandidates(t *testing.T) {
	got := suggestShortNames("WPA1", []string{"RPTR"})
	if len(got) != 1 || got[0] != "RPTR" {
		t.Errorf("suggestions = %v, want [RPTR]", got)
	}

	if got := suggestShortNames("WPA1", nil); len(got) != 0 {
		t.Errorf("suggestions = %v, want none", got)
	}
}
