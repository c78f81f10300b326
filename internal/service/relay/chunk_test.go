package relay

import (
	"strings"
	"testing"
)

func TestChunkEntriesRespectsLimit(t *testing.T) {
	entries := []string{
		strings.Repeat("a", 30) + "\n",
		strings.Repeat("b", 30) + "\n",
		strings.Repeat("c", 30) + "\n",
	}

	chunks := chunkEntries(entries, 70)
	if len(chunks) != 2 {
		t.Fatalf("Expected 2 chunks, got %d", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 70 {
			t.Fatalf("Chunk %d exceeds limit: %d chars", i, len(chunk))
		}
	}
	// Entries are never split across chunks.
	if !strings.HasSuffix(chunks[0], "b\n") || !strings.HasPrefix(chunks[1], "c") {
		t.Fatalf("Entries must only break at entry boundaries, got %q / %q", chunks[0], chunks[1])
	}
}

func TestChunkEntriesSingleChunk(t *testing.T) {
	chunks := chunkEntries([]string{"one\n", "two\n"}, 100)
	if len(chunks) != 1 || chunks[0] != "one\ntwo\n" {
		t.Fatalf("Small entries should pack into one chunk, got %v", chunks)
	}
}

func TestChunkEntriesEmpty(t *testing.T) {
	if chunks := chunkEntries(nil, 100); len(chunks) != 0 {
		t.Fatalf("No entries should yield no chunks, got %v", chunks)
	}
}

func TestChunkEntriesOversizedEntryTruncated(t *testing.T) {
	entry := strings.Repeat("x", 50) + "é"
	chunks := chunkEntries([]string{entry}, 51)
	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}
	if len(chunks[0]) > 51 {
		t.Fatalf("Truncated entry still exceeds limit: %d", len(chunks[0]))
	}
	// The multibyte rune at the cut point is dropped whole.
	if chunks[0] != strings.Repeat("x", 50) {
		t.Fatalf("Truncation must land on a rune boundary, got %q", chunks[0])
	}
}

func TestTrimCodeSpanDropsDanglingEscape(t *testing.T) {
	// "ab\`" cut to 3 bytes would end in a lone escape backslash.
	if got := trimCodeSpan("ab\\`", 3); got != "ab" {
		t.Fatalf("Dangling escape must be dropped, got %q", got)
	}
	// An even run of backslashes is a complete escape and stays.
	if got := trimCodeSpan("ab\\\\`", 4); got != "ab\\\\" {
		t.Fatalf("Complete escape must survive the cut, got %q", got)
	}
	if got := trimCodeSpan("short", 10); got != "short" {
		t.Fatalf("Content under the limit must be untouched, got %q", got)
	}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in       string
		name     string
		args     string
	}{
		{"/block", "/block", ""},
		{"/block@relaybot", "/block", ""},
		{"/history 42", "/history", "42"},
		{"/contact 42 hello there", "/contact", "42 hello there"},
		{"/history\n42", "/history", "42"},
	}
	for _, tc := range cases {
		name, args := splitCommand(tc.in)
		if name != tc.name || args != tc.args {
			t.Errorf("splitCommand(%q) = (%q, %q), want (%q, %q)", tc.in, name, args, tc.name, tc.args)
		}
	}
}
