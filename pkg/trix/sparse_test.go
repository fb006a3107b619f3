package trix

import (
	"strings"
	"testing"
)

func TestSparseIndexLookup(t *testing.T) {
	ixx := FormatSparseLine("apple", PrefixSize, 0) + "\n" +
		FormatSparseLine("fox", PrefixSize, 0x100) + "\n" +
		FormatSparseLine("zebra", PrefixSize, 0x2A0) + "\n"
	s, err := LoadSparseIndex(strings.NewReader(ixx), PrefixSize)
	if err != nil {
		t.Fatalf("LoadSparseIndex: %v", err)
	}
	if s.Len() != 3 {
		t.Fatalf("Len = %d, want 3", s.Len())
	}
	tests := []struct {
		word string
		want int64
	}{
		{"aa", 0},
		{"apple", 0},
		{"banana", 0},
		{"fox", 0x100},
		{"FOX", 0x100},
		{"foxes", 0x100},
		{"yak", 0x100},
		{"zebra", 0x2A0},
		{"zzz", 0x2A0},
	}
	for _, tt := range tests {
		if got := s.Lookup(tt.word); got != tt.want {
			t.Errorf("Lookup(%q) = %#x, want %#x", tt.word, got, tt.want)
		}
	}
}

func TestSparseIndexEmpty(t *testing.T) {
	s, err := LoadSparseIndex(strings.NewReader(""), PrefixSize)
	if err != nil {
		t.Fatalf("LoadSparseIndex: %v", err)
	}
	if got := s.Lookup("anything"); got != 0 {
		t.Errorf("Lookup on empty index = %d, want 0", got)
	}
}

func TestSparseIndexRejectsBadLines(t *testing.T) {
	for _, in := range []string{
		"fox  00000001\n",
		"fox  000000000G\n",
		"fox00000000001\n",
	} {
		if _, err := LoadSparseIndex(strings.NewReader(in), PrefixSize); err == nil {
			t.Errorf("LoadSparseIndex(%q) succeeded, want error", in)
		}
	}
}

func TestFormatSparseLine(t *testing.T) {
	if got, want := FormatSparseLine("Fox", PrefixSize, 0x1F), "fox  000000001F"; got != want {
		t.Errorf("FormatSparseLine = %q, want %q", got, want)
	}
	if got, want := FormatSparseLine("NM_000014.4", SnippetPrefixSize, 10), "nm_000014.4    000000000A"; got != want {
		t.Errorf("FormatSparseLine = %q, want %q", got, want)
	}
}
