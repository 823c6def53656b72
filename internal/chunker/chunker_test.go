package chunker

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplit_EmptyInput(t *testing.T) {
	if result := Split("  \n ", 100); result != nil {
		t.Errorf("expected nil, got %v", result)
	}
}

func TestSplit_ShortContent(t *testing.T) {
	text := "Heartbeat: 1 overdue task."
	result := Split(text, 100)
	if len(result) != 1 || result[0] != text {
		t.Fatalf("expected single unchanged part, got %q", result)
	}
}

func TestSplit_PrefersParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 15) // 75 chars
	text := strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para) + "\n\n" + strings.TrimSpace(para)

	result := Split(text, 160)
	if len(result) != 2 {
		t.Fatalf("expected 2 parts, got %d: %q", len(result), result)
	}
	if !strings.Contains(result[0], "\n\n") {
		t.Errorf("first part should hold two paragraphs, got %q", result[0])
	}
}

func TestSplit_SplitsOnHeadings(t *testing.T) {
	section := strings.Repeat("Some content filling space. ", 4)
	text := "# One\n" + section + "\n# Two\n" + section + "\n# Three\n" + section

	result := Split(text, 150)
	if len(result) < 3 {
		t.Fatalf("expected at least 3 parts, got %d", len(result))
	}
	if !strings.HasPrefix(result[0], "# One") || !strings.HasPrefix(result[1], "# Two") {
		t.Errorf("parts should start at headings, got %q", result)
	}
}

func TestSplit_RespectsLimit(t *testing.T) {
	var lines []string
	for i := 0; i < 40; i++ {
		lines = append(lines, "- This is a checklist line that is about fifty chars")
	}
	text := strings.Join(lines, "\n")

	for _, limit := range []int{60, 120, 500} {
		result := Split(text, limit)
		if len(result) < 2 {
			t.Fatalf("limit %d: expected several parts, got %d", limit, len(result))
		}
		for i, part := range result {
			if n := utf8.RuneCountInString(part); n > limit {
				t.Errorf("limit %d: part %d has %d chars", limit, i, n)
			}
		}
	}
}

func TestSplit_PreservesWords(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 30)
	result := Split(text, 50)

	got := strings.Fields(strings.Join(result, " "))
	want := strings.Fields(text)
	if len(got) != len(want) {
		t.Fatalf("word count changed: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("word %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSplit_CutsOversizedWord(t *testing.T) {
	word := strings.Repeat("é", 25)
	result := Split(word, 10)
	if len(result) != 3 {
		t.Fatalf("expected 3 parts, got %d: %q", len(result), result)
	}
	for _, part := range result {
		if !utf8.ValidString(part) {
			t.Errorf("part is not valid UTF-8: %q", part)
		}
	}
	if strings.Join(result, "") != word {
		t.Error("cut parts must reassemble the word")
	}
}

func TestSplit_DefaultLimit(t *testing.T) {
	text := strings.Repeat("x ", DefaultLimit)
	result := Split(text, 0)
	if len(result) != 2 {
		t.Fatalf("expected 2 parts at the default limit, got %d", len(result))
	}
}
