package types

// NodeKind distinguishes folders from files in the rendered tree.
type NodeKind string

const (
	NodeKindFolder NodeKind = "folder"
	NodeKindFile   NodeKind = "file"
)

// TreeNode is one node of the rendered file tree. Folders carry Children,
// files carry Content and a human-readable DisplaySize.
type TreeNode struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Kind        NodeKind    `json:"kind"`
	Children    []*TreeNode `json:"children,omitempty"`
	Content     string      `json:"content,omitempty"`
	DisplaySize string      `json:"displaySize,omitempty"`
}

// TreeResponse is the response for reading a thread's rendered file tree.
type TreeResponse struct {
	Tree []*TreeNode `json:"tree"`
}

// ChangeKind classifies a change record within an agent work session.
type ChangeKind string

const (
	ChangeKindNew      ChangeKind = "new"
	ChangeKindModified ChangeKind = "modified"
)

// ChangeRecord is one detected file change within a work session. New files
// carry an empty PreviousContent; modified files carry the pre-edit content.
type ChangeRecord struct {
	Path            string     `json:"path"`
	Kind            ChangeKind `json:"kind"`
	PreviousContent string     `json:"previousContent"`
}

// ChangesResponse is the response for listing a thread's session changes.
type ChangesResponse struct {
	Records []ChangeRecord `json:"records"`
	Latest  *ChangeRecord  `json:"latest,omitempty"`
}

// FileContentResponse is the response for reading one file out of the
// current snapshot.
type FileContentResponse struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	DisplaySize string `json:"displaySize"`
}
