package filetree

import (
	"strings"
	"testing"
)

func TestNodeID_CollapsesRuns(t *testing.T) {
	cases := map[string]string{
		"src/app/page.tsx":   "src-app-page-tsx",
		"app/_lib/util.ts":   "app-lib-util-ts",
		"weird//..//name":    "weird-name",
		"README":             "README",
		"a b c":              "a-b-c",
	}
	for in, want := range cases {
		if got := NodeID(in); got != want {
			t.Errorf("NodeID(%q): expected %q, got %q", in, want, got)
		}
	}
}

func TestDisplaySize_RoundsUpToWholeKB(t *testing.T) {
	cases := []struct {
		bytes int
		want  string
	}{
		{0, "0 KB"},
		{1, "1 KB"},
		{1024, "1 KB"},
		{1025, "2 KB"},
		{2048, "2 KB"},
		{2049, "3 KB"},
	}
	for _, tc := range cases {
		content := strings.Repeat("x", tc.bytes)
		if got := DisplaySize(content); got != tc.want {
			t.Errorf("DisplaySize(%d bytes): expected %q, got %q", tc.bytes, tc.want, got)
		}
	}
}
