package filetree

import (
	"strings"

	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/pkg/types"
)

// Reconciler maintains one thread's rendered tree across snapshot ticks.
// When the structural signature is unchanged it patches only the leaves
// named by the tick's change records: the changed leaf and its ancestor
// chain are fresh objects, every untouched subtree keeps its identity
// between calls. Any structural change, deletions included, rebuilds the
// whole tree. Returned trees are never mutated afterwards, so callers may
// hold them across ticks.
//
// A Reconciler is not safe for concurrent use; the owning session
// serializes access.
type Reconciler struct {
	built         bool
	lastSignature string
	roots         []*types.TreeNode
}

func NewReconciler() *Reconciler {
	return &Reconciler{}
}

// Reconcile folds one tick into the tree and returns the current roots.
// changes is the list of records emitted since the previous call; it is
// only consulted on the content-patch path.
func (r *Reconciler) Reconcile(snap snapshot.Snapshot, changes []types.ChangeRecord) []*types.TreeNode {
	sig := snap.Signature()
	if r.built && sig == r.lastSignature {
		for _, ch := range changes {
			p := snapshot.NormalizePath(ch.Path)
			if snapshot.IsMemoryPath(p) {
				continue
			}
			content, ok := snap.Get(p)
			if !ok {
				continue
			}
			if next, changed := patchPath(r.roots, strings.Split(p, "/"), content); changed {
				r.roots = next
			}
		}
		return r.roots
	}
	r.rebuild(snap)
	r.lastSignature = sig
	r.built = true
	return r.roots
}

// Tree returns the current roots without reconciling.
func (r *Reconciler) Tree() []*types.TreeNode {
	return r.roots
}

func (r *Reconciler) rebuild(snap snapshot.Snapshot) {
	dirs := make(map[string]*types.TreeNode)
	var roots []*types.TreeNode

	for _, p := range snap.VisiblePaths() {
		content, _ := snap.Get(p)
		segs := strings.Split(p, "/")

		var parent *types.TreeNode
		dirPath := ""
		for _, seg := range segs[:len(segs)-1] {
			if seg == "" {
				continue
			}
			if dirPath == "" {
				dirPath = seg
			} else {
				dirPath = dirPath + "/" + seg
			}
			node, ok := dirs[dirPath]
			if !ok {
				node = &types.TreeNode{
					ID:   NodeID(dirPath),
					Name: seg,
					Kind: types.NodeKindFolder,
				}
				dirs[dirPath] = node
				if parent == nil {
					roots = append(roots, node)
				} else {
					parent.Children = append(parent.Children, node)
				}
			}
			parent = node
		}

		name := segs[len(segs)-1]
		if name == "" {
			continue
		}
		leaf := &types.TreeNode{
			ID:          NodeID(p),
			Name:        name,
			Kind:        types.NodeKindFile,
			Content:     content,
			DisplaySize: DisplaySize(content),
		}
		if parent == nil {
			roots = append(roots, leaf)
		} else {
			parent.Children = append(parent.Children, leaf)
		}
	}

	sortTree(roots)
	r.roots = roots
}

// patchPath rewrites the node addressed by segs with fresh content,
// copying the sibling slice and ancestor nodes along the way so the
// previous tree stays intact. Sibling order is untouched: names do not
// change on the patch path. Returns the original slice unchanged when the
// path is missing or the content is already current.
func patchPath(nodes []*types.TreeNode, segs []string, content string) ([]*types.TreeNode, bool) {
	if len(segs) == 0 || segs[0] == "" {
		return nodes, false
	}
	for i, n := range nodes {
		if n.Name != segs[0] {
			continue
		}
		if len(segs) == 1 {
			if n.Kind != types.NodeKindFile || n.Content == content {
				return nodes, false
			}
			fresh := &types.TreeNode{
				ID:          n.ID,
				Name:        n.Name,
				Kind:        types.NodeKindFile,
				Content:     content,
				DisplaySize: DisplaySize(content),
			}
			out := append([]*types.TreeNode(nil), nodes...)
			out[i] = fresh
			return out, true
		}
		if n.Kind != types.NodeKindFolder {
			return nodes, false
		}
		children, changed := patchPath(n.Children, segs[1:], content)
		if !changed {
			return nodes, false
		}
		folder := &types.TreeNode{
			ID:       n.ID,
			Name:     n.Name,
			Kind:     types.NodeKindFolder,
			Children: children,
		}
		out := append([]*types.TreeNode(nil), nodes...)
		out[i] = folder
		return out, true
	}
	return nodes, false
}
