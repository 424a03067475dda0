package filetree

import (
	"testing"

	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/pkg/types"
)

func findChild(nodes []*types.TreeNode, name string) *types.TreeNode {
	for _, n := range nodes {
		if n.Name == name {
			return n
		}
	}
	return nil
}

func TestReconcile_BuildsNestedTree(t *testing.T) {
	r := NewReconciler()
	snap := snapshot.FromContents(map[string]string{
		"app/src/components/Button.tsx": "export const Button = () => null",
		"app/src/page.tsx":              "export default function Page() {}",
		"app/package.json":              "{}",
		"memory/notes.md":               "hidden",
	})
	roots := r.Reconcile(snap, nil)

	if len(roots) != 1 || roots[0].Name != "app" {
		t.Fatalf("expected single app root, got %v", roots)
	}
	app := roots[0]
	if app.Kind != types.NodeKindFolder {
		t.Errorf("expected app to be a folder")
	}
	// Folders sort before files.
	if app.Children[0].Name != "src" || app.Children[1].Name != "package.json" {
		t.Errorf("expected src before package.json, got %q then %q",
			app.Children[0].Name, app.Children[1].Name)
	}
	src := findChild(app.Children, "src")
	if src == nil {
		t.Fatalf("missing src folder")
	}
	if findChild(src.Children, "components") == nil {
		t.Errorf("missing components folder under src")
	}
	if findChild(roots, "memory") != nil {
		t.Errorf("memory paths must not appear in the tree")
	}
}

func TestReconcile_IdenticalSnapshotKeepsIdentity(t *testing.T) {
	r := NewReconciler()
	snap := snapshot.FromContents(map[string]string{
		"app/a.txt": "1",
		"app/b.txt": "2",
	})
	first := r.Reconcile(snap, nil)
	second := r.Reconcile(snapshot.FromContents(map[string]string{
		"app/a.txt": "1",
		"app/b.txt": "2",
	}), nil)

	if first[0] != second[0] {
		t.Errorf("expected identical root pointer for identical snapshots")
	}
	a1 := findChild(first[0].Children, "a.txt")
	a2 := findChild(second[0].Children, "a.txt")
	if a1 != a2 {
		t.Errorf("expected identical leaf pointer for identical snapshots")
	}
}

func TestReconcile_StructuralChangeRebuilds(t *testing.T) {
	r := NewReconciler()
	base := snapshot.FromContents(map[string]string{"app/a.txt": "1"})
	first := r.Reconcile(base, nil)

	added := r.Reconcile(snapshot.FromContents(map[string]string{
		"app/a.txt": "1",
		"app/b.txt": "2",
	}), nil)
	if first[0] == added[0] {
		t.Errorf("expected a fresh tree after adding a path")
	}
	if len(findChild(added, "app").Children) != 2 {
		t.Errorf("expected 2 children after add")
	}

	removed := r.Reconcile(base, nil)
	if removed[0] == added[0] {
		t.Errorf("expected a fresh tree after removing a path")
	}
	if len(findChild(removed, "app").Children) != 1 {
		t.Errorf("expected 1 child after removal")
	}
}

func TestReconcile_ContentPatchPreservesUntouchedLeaves(t *testing.T) {
	r := NewReconciler()
	before := r.Reconcile(snapshot.FromContents(map[string]string{
		"app/a.txt":     "old",
		"app/b.txt":     "stable",
		"docs/notes.md": "unrelated",
	}), nil)

	app := findChild(before, "app")
	aBefore := findChild(app.Children, "a.txt")
	bBefore := findChild(app.Children, "b.txt")
	docsBefore := findChild(before, "docs")

	next := snapshot.FromContents(map[string]string{
		"app/a.txt":     "new content",
		"app/b.txt":     "stable",
		"docs/notes.md": "unrelated",
	})
	roots := r.Reconcile(next, []types.ChangeRecord{
		{Path: "app/a.txt", Kind: types.ChangeKindModified, PreviousContent: "old"},
	})

	appAfter := findChild(roots, "app")
	aAfter := findChild(appAfter.Children, "a.txt")
	bAfter := findChild(appAfter.Children, "b.txt")
	if bAfter != bBefore {
		t.Errorf("expected untouched leaf to be the exact same object")
	}
	if findChild(roots, "docs") != docsBefore {
		t.Errorf("expected untouched subtree to be the exact same object")
	}
	if aAfter == aBefore {
		t.Errorf("expected changed leaf to be replaced with a fresh node")
	}
	if aAfter.Content != "new content" {
		t.Errorf("expected patched content, got %q", aAfter.Content)
	}
	if aAfter.DisplaySize != "1 KB" {
		t.Errorf("expected refreshed display size, got %q", aAfter.DisplaySize)
	}

	// The patched tree is a new spine; the previous tree is untouched.
	if aBefore.Content != "old" {
		t.Errorf("expected the previous tree to keep its content, got %q", aBefore.Content)
	}
}

func TestReconcile_SiblingOrdering(t *testing.T) {
	r := NewReconciler()
	roots := r.Reconcile(snapshot.FromContents(map[string]string{
		"app/Readme.md":  "",
		"app/aardvark":   "",
		"app/zeta/x.txt": "",
		"app/Alpha/y.js": "",
	}), nil)
	app := findChild(roots, "app")
	var names []string
	for _, n := range app.Children {
		names = append(names, n.Name)
	}
	want := []string{"Alpha", "zeta", "aardvark", "Readme.md"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("sibling order mismatch: expected %v, got %v", want, names)
		}
	}
}
