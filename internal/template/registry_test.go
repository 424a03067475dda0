package template

import (
	"encoding/json"
	"testing"
)

func TestNewRegistry_SeedsDefaults(t *testing.T) {
	r := NewRegistry()

	p, err := r.Get("nextjs")
	if err != nil {
		t.Fatalf("expected nextjs preset, got error: %v", err)
	}
	for _, path := range []string{"package.json", "tsconfig.json", "next.config.js", "tailwind.config.ts"} {
		if _, ok := p.DefaultFiles[path]; !ok {
			t.Errorf("nextjs preset missing default file %q", path)
		}
	}
	if p.Settings.Framework != "nextjs" {
		t.Errorf("expected framework setting nextjs, got %q", p.Settings.Framework)
	}

	if _, err := r.Get("vite"); err != nil {
		t.Errorf("expected vite preset, got error: %v", err)
	}
	if _, err := r.Get("svelte"); err == nil {
		t.Errorf("expected error for unknown preset")
	}
}

func TestDefaultFiles_AreValidJSON(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"nextjs", "vite"} {
		p, err := r.Get(name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		for _, path := range []string{"package.json", "tsconfig.json"} {
			var v map[string]any
			if err := json.Unmarshal([]byte(p.DefaultFiles[path]), &v); err != nil {
				t.Errorf("%s %s is not valid JSON: %v", name, path, err)
			}
		}
	}
}

func TestList_MarksDefault(t *testing.T) {
	r := NewRegistry()
	infos := r.List()
	if len(infos) != 2 {
		t.Fatalf("expected 2 presets, got %d", len(infos))
	}
	// Sorted by name: nextjs first.
	if infos[0].Name != "nextjs" || !infos[0].Default {
		t.Errorf("expected nextjs to be listed first and marked default, got %+v", infos[0])
	}
	if infos[1].Default {
		t.Errorf("vite must not be marked default")
	}
}

func TestDelete_ProtectsDefaultPreset(t *testing.T) {
	r := NewRegistry()
	if err := r.Delete("nextjs"); err == nil {
		t.Errorf("expected deleting the default preset to fail")
	}
	if err := r.Delete("vite"); err != nil {
		t.Errorf("expected deleting vite to succeed, got %v", err)
	}
	if err := r.Delete("vite"); err == nil {
		t.Errorf("expected second delete to fail")
	}
}
