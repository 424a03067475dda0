// Package filetree renders snapshots into the nested tree the UI consumes
// and keeps that tree stable across ticks: structural changes rebuild it,
// content-only changes swap in fresh nodes along the changed paths while
// untouched subtrees keep their identity.
package filetree

import (
	"fmt"
	"strings"

	"github.com/openpreview/openpreview/pkg/types"
)

// NodeID derives a stable node id from a normalized path. Runs of
// non-alphanumeric characters collapse to a single dash.
func NodeID(p string) string {
	var b strings.Builder
	b.Grow(len(p))
	pending := false
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			if pending && b.Len() > 0 {
				b.WriteByte('-')
			}
			pending = false
			b.WriteRune(r)
		default:
			pending = true
		}
	}
	return b.String()
}

// DisplaySize renders a content length as whole kilobytes, rounded up.
func DisplaySize(content string) string {
	kb := (len(content) + 1023) / 1024
	return fmt.Sprintf("%d KB", kb)
}

// sortTree orders siblings recursively: folders before files, then
// case-insensitive by name with a raw-byte tie break.
func sortTree(nodes []*types.TreeNode) {
	sortSiblings(nodes)
	for _, n := range nodes {
		if len(n.Children) > 0 {
			sortTree(n.Children)
		}
	}
}

func sortSiblings(nodes []*types.TreeNode) {
	// Insertion sort keeps this allocation-free; sibling lists are small.
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && nodeLess(nodes[j], nodes[j-1]); j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}

func nodeLess(a, b *types.TreeNode) bool {
	if a.Kind != b.Kind {
		return a.Kind == types.NodeKindFolder
	}
	al, bl := strings.ToLower(a.Name), strings.ToLower(b.Name)
	if al != bl {
		return al < bl
	}
	return a.Name < b.Name
}
