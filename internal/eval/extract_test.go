package eval

import "testing"

func TestExtractAnswer(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "Answer: C\nExplanation: because.", "C"},
		{"lowercase answer", "answer: b", "B"},
		{"mixed case letter", "Answer: d", "D"},
		{"no space", "Answer:A", "A"},
		{"extra spaces", "Answer:    B", "B"},
		{"embedded", "After careful analysis.\nAnswer: D\nConfidence: 0.9", "D"},
		{"first match wins", "Answer: A\nAnswer: B", "A"},
		{"letter out of range", "Answer: E", "X"},
		{"free text", "I believe the correct option is B.", "X"},
		{"empty", "", "X"},
		{"bare letter", "C", "X"},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ExtractAnswer(tc.raw); got != tc.want {
				t.Fatalf("ExtractAnswer(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}
