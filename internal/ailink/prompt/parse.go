package prompt

import (
	"bytes"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	slugPattern     = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	variablePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)
	fence           = []byte("---")
)

// Parse reads a prompt definition from markdown with YAML frontmatter, or
// from plain YAML. A markdown body stands in for a missing system_template.
func Parse(source string, data []byte) (*Prompt, error) {
	data = bytes.TrimSpace(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if len(data) == 0 {
		return nil, fmt.Errorf("parse prompt %s: empty prompt", source)
	}

	front, body := data, []byte(nil)
	if bytes.HasPrefix(data, fence) {
		rest := bytes.TrimPrefix(data[len(fence):], []byte("\n"))
		var found bool
		front, body, found = bytes.Cut(rest, []byte("\n---"))
		if !found {
			return nil, fmt.Errorf("parse prompt %s: unterminated frontmatter", source)
		}
	}

	var cfg Config
	if err := yaml.Unmarshal(front, &cfg); err != nil {
		return nil, fmt.Errorf("parse prompt %s: %w", source, err)
	}
	if strings.TrimSpace(cfg.SystemTemplate) == "" {
		cfg.SystemTemplate = strings.TrimSpace(string(body))
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("prompt %s: %w", source, err)
	}
	return &Prompt{Config: cfg, Source: source}, nil
}

func (c Config) validate() error {
	slug := strings.TrimSpace(c.Slug)
	switch {
	case slug == "":
		return errors.New("slug is required")
	case !slugPattern.MatchString(slug):
		return fmt.Errorf("slug %q must be lowercase kebab-case", slug)
	case strings.TrimSpace(c.SystemTemplate) == "":
		return errors.New("missing system_template")
	}

	declared := make(map[string]struct{})
	for _, name := range append(append([]string(nil), c.Input.RequiredVariables...), c.Input.OptionalVariables...) {
		if !variablePattern.MatchString(name) {
			return fmt.Errorf("invalid variable name %q", name)
		}
		if _, dup := declared[name]; dup {
			return fmt.Errorf("variable %q declared twice", name)
		}
		declared[name] = struct{}{}
	}

	templates := c.SystemTemplate + "\n" + c.UserTemplate
	for _, name := range c.Input.RequiredVariables {
		if !strings.Contains(templates, "{{"+name+"}}") {
			return fmt.Errorf("required variable %q is not used by any template", name)
		}
	}
	return nil
}
