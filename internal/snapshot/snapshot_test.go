package snapshot

import (
	"testing"
)

func TestNew_NormalizesLeadingSlash(t *testing.T) {
	s := FromContents(map[string]string{
		"/app/package.json": "{}",
		"app/src/page.tsx":  "export default function Page() {}",
	})
	if _, ok := s.Get("app/package.json"); !ok {
		t.Errorf("expected app/package.json to be present under normalized path")
	}
	if s.Len() != 2 {
		t.Errorf("expected 2 files, got %d", s.Len())
	}
}

func TestSignature_ExcludesMemoryPaths(t *testing.T) {
	s := FromContents(map[string]string{
		"app/b.txt":        "b",
		"app/a.txt":        "a",
		"memory/notes.md":  "internal",
		"/memory/plan.md":  "internal",
	})
	want := "app/a.txt|app/b.txt"
	if got := s.Signature(); got != want {
		t.Errorf("expected signature %q, got %q", want, got)
	}
	if s.Len() != 4 {
		t.Errorf("expected raw snapshot to retain memory paths, got %d files", s.Len())
	}
	if s.VisibleCount() != 2 {
		t.Errorf("expected 2 visible files, got %d", s.VisibleCount())
	}
}

func TestSignature_ContentChangesDoNotAffectIt(t *testing.T) {
	a := FromContents(map[string]string{"app/a.txt": "one"})
	b := FromContents(map[string]string{"app/a.txt": "two"})
	if a.Signature() != b.Signature() {
		t.Errorf("signatures should match for identical path sets")
	}
	if a.Hash() == b.Hash() {
		t.Errorf("hashes should differ when content differs")
	}
}

func TestHash_StructureSensitive(t *testing.T) {
	a := FromContents(map[string]string{"app/a.txt": "x"})
	b := FromContents(map[string]string{"app/a.txt": "x", "app/b.txt": ""})
	if a.Hash() == b.Hash() {
		t.Errorf("hashes should differ when the path set differs")
	}
	if a.Hash() != FromContents(map[string]string{"app/a.txt": "x"}).Hash() {
		t.Errorf("hash should be deterministic for equal snapshots")
	}
}

func TestDeployComplete_RequiresManifestAndComponent(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  bool
	}{
		{"empty", map[string]string{}, false},
		{"manifest only", map[string]string{"app/package.json": "{}"}, false},
		{"component only", map[string]string{"app/src/page.tsx": "x"}, false},
		{"both", map[string]string{
			"app/package.json": "{}",
			"app/src/page.tsx": "x",
		}, true},
		{"memory manifest does not count", map[string]string{
			"memory/package.json": "{}",
			"app/src/page.tsx":    "x",
		}, false},
	}
	for _, tc := range cases {
		s := FromContents(tc.files)
		if got := s.DeployComplete(); got != tc.want {
			t.Errorf("%s: expected deploy complete %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestDiff_ReportsAddedRemovedChanged(t *testing.T) {
	base := FromContents(map[string]string{
		"app/a.txt": "1",
		"app/b.txt": "2",
	})
	cur := FromContents(map[string]string{
		"app/a.txt": "1",
		"app/b.txt": "changed",
		"app/c.txt": "new",
	})
	got := cur.Diff(base)
	want := []string{"app/b.txt", "app/c.txt"}
	if len(got) != len(want) {
		t.Fatalf("expected %d drift paths, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("drift path %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	removed := FromContents(map[string]string{"app/a.txt": "1"}).Diff(base)
	if len(removed) != 1 || removed[0] != "app/b.txt" {
		t.Errorf("expected removal of app/b.txt to appear in diff, got %v", removed)
	}
}

func TestStripAppPrefix(t *testing.T) {
	if got := StripAppPrefix("app/src/page.tsx"); got != "src/page.tsx" {
		t.Errorf("expected src/page.tsx, got %q", got)
	}
	if got := StripAppPrefix("package.json"); got != "package.json" {
		t.Errorf("expected unprefixed path unchanged, got %q", got)
	}
}
