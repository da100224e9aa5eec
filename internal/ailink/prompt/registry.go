package prompt

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed prompts/*.md
var embedded embed.FS

// Registry provides access to prompt definitions.
type Registry interface {
	Get(slug string) (*Prompt, error)
	List() []*Prompt
}

// Set is a Registry keyed by slug.
type Set struct {
	bySlug map[string]*Prompt
}

// NewSet indexes prompts by slug. Duplicate slugs are an error.
func NewSet(prompts ...*Prompt) (*Set, error) {
	s := &Set{bySlug: make(map[string]*Prompt, len(prompts))}
	for _, p := range prompts {
		if p == nil {
			continue
		}
		slug := strings.TrimSpace(p.Config.Slug)
		if slug == "" {
			return nil, errors.New("prompt missing slug")
		}
		if _, dup := s.bySlug[slug]; dup {
			return nil, fmt.Errorf("duplicate prompt slug: %s", slug)
		}
		s.bySlug[slug] = p
	}
	return s, nil
}

// LoadRegistry returns the built-in prompts overlaid with the *.md files in
// dir. Files in dir replace built-ins with the same slug. An empty or
// missing dir yields the built-ins alone.
func LoadRegistry(dir string) (*Set, error) {
	builtin, err := readPrompts(embedded, "prompts")
	if err != nil {
		return nil, err
	}
	set, err := NewSet(builtin...)
	if err != nil {
		return nil, err
	}

	dir = strings.TrimSpace(dir)
	if dir == "" {
		return set, nil
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return set, nil
	}
	overrides, err := readPrompts(os.DirFS(dir), ".")
	if err != nil {
		return nil, err
	}
	for _, p := range overrides {
		set.bySlug[strings.TrimSpace(p.Config.Slug)] = p
	}
	return set, nil
}

func readPrompts(fsys fs.FS, dir string) ([]*Prompt, error) {
	names, err := fs.Glob(fsys, path.Join(dir, "*.md"))
	if err != nil {
		return nil, fmt.Errorf("scan prompts: %w", err)
	}
	sort.Strings(names)
	out := make([]*Prompt, 0, len(names))
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", name, err)
		}
		p, err := Parse(path.Base(name), data)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Get returns the prompt for slug.
func (s *Set) Get(slug string) (*Prompt, error) {
	if s == nil {
		return nil, errors.New("prompt registry not configured")
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return nil, errors.New("prompt slug is required")
	}
	if p, ok := s.bySlug[slug]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("prompt %q not found", slug)
}

// List returns prompts sorted by slug.
func (s *Set) List() []*Prompt {
	if s == nil {
		return nil
	}
	slugs := make([]string, 0, len(s.bySlug))
	for slug := range s.bySlug {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	out := make([]*Prompt, len(slugs))
	for i, slug := range slugs {
		out[i] = s.bySlug[slug]
	}
	return out
}
