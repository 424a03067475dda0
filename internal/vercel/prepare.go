package vercel

import (
	"encoding/base64"
	"sort"

	"github.com/openpreview/openpreview/internal/snapshot"
	"github.com/openpreview/openpreview/internal/template"
	"github.com/openpreview/openpreview/pkg/types"
)

// Prepared is a deploy payload ready to send: encoded files plus the
// provider project settings for the chosen framework.
type Prepared struct {
	Files    []DeploymentFile
	Settings types.ProjectSettings
}

// PrepareDeployment turns a snapshot into a provider payload. Workspace
// paths lose the app/ root, memory paths are dropped, and any preset
// config file the project does not carry is synthesized. An empty visible
// snapshot raises EmptyInputError without touching the network.
func PrepareDeployment(snap snapshot.Snapshot, preset *template.Preset) (*Prepared, error) {
	visible := snap.VisibleContents()
	if len(visible) == 0 {
		return nil, &EmptyInputError{}
	}

	project := make(map[string]string, len(visible))
	for p, content := range visible {
		project[snapshot.StripAppPrefix(p)] = content
	}

	var settings types.ProjectSettings
	if preset != nil {
		for p, content := range preset.DefaultFiles {
			if _, ok := project[p]; !ok {
				project[p] = content
			}
		}
		settings = preset.Settings
	}

	paths := make([]string, 0, len(project))
	for p := range project {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	files := make([]DeploymentFile, 0, len(paths))
	for _, p := range paths {
		files = append(files, DeploymentFile{
			File:     p,
			Data:     base64.StdEncoding.EncodeToString([]byte(project[p])),
			Encoding: "base64",
		})
	}

	return &Prepared{Files: files, Settings: settings}, nil
}
