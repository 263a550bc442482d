package detect

import "testing"

func TestMatchesDealKeywords(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"1-for-1 laksa every weekday lunch", true},
		{"50% off all mains this week", true},
		{"$8.90 chicken rice set", true},
		{"S$ 12 lunch special", true},
		{"free dessert with every order", true},
		{"happy hour from 5pm", true},
		{"got any good lobang near Bugis?", true},
		{"buy 2 get 1 on all pastries", true},
		{"hello, how does this work?", false},
		{"where are you located?", false},
		{"", false},
		{"   ", false},
	}
	for _, tc := range cases {
		if got := MatchesDealKeywords(tc.text); got != tc.want {
			t.Errorf("MatchesDealKeywords(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestKeywordClassifierNeverErrors(t *testing.T) {
	got, err := KeywordClassifier{}.IsDealSubmission(nil, "30% discount today")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got {
		t.Fatal("expected deal verdict")
	}
}
