package types

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FileTimestamps carries optional creation metadata attached to a file entry.
type FileTimestamps struct {
	CreatedAt int64 `json:"createdAt,omitempty"` // unix ms
	UpdatedAt int64 `json:"updatedAt,omitempty"` // unix ms
}

// FileState is one file entry in a snapshot tick. On the wire it arrives in
// three shapes: a plain string, an object with a "content" string, or an
// object whose "content" is an array of lines (joined with newlines). All
// shapes normalize to Content here; nothing downstream re-inspects the raw
// form.
type FileState struct {
	Content    string          `json:"content"`
	Timestamps *FileTimestamps `json:"timestamps,omitempty"`
}

func (f *FileState) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		f.Content = s
		f.Timestamps = nil
		return nil
	}

	var obj struct {
		Content    json.RawMessage `json:"content"`
		Timestamps *FileTimestamps `json:"timestamps"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("file state: unrecognized shape: %w", err)
	}
	f.Timestamps = obj.Timestamps

	if len(obj.Content) == 0 || string(obj.Content) == "null" {
		f.Content = ""
		return nil
	}
	var str string
	if err := json.Unmarshal(obj.Content, &str); err == nil {
		f.Content = str
		return nil
	}
	var lines []string
	if err := json.Unmarshal(obj.Content, &lines); err == nil {
		f.Content = strings.Join(lines, "\n")
		return nil
	}
	return fmt.Errorf("file state: content is neither a string nor a line array")
}

func (f FileState) MarshalJSON() ([]byte, error) {
	if f.Timestamps == nil {
		return json.Marshal(f.Content)
	}
	type alias FileState
	return json.Marshal(alias(f))
}

// SnapshotUpdate is one full-state tick from the agent stream: the complete
// path -> file map plus the busy flag. Each tick replaces the previous
// snapshot wholesale.
type SnapshotUpdate struct {
	Files map[string]FileState `json:"files"`
	Busy  bool                 `json:"busy"`
}
