package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Default prompt slugs used by the relay.
const (
	SlugReply      = "relay-reply"
	SlugCompaction = "relay-compaction"
)

// Render applies conditionals and variables to both templates of def and
// joins them with a newline. Missing required variables are an error.
func Render(def *Prompt, vars map[string]string) (string, error) {
	if def == nil {
		return "", errors.New("prompt is required")
	}
	for _, name := range def.Config.Input.RequiredVariables {
		if _, ok := vars[name]; !ok {
			return "", fmt.Errorf("prompt %s: missing variable %q", def.Config.Slug, name)
		}
	}

	system := applyVars(applyConditionals(def.Config.SystemTemplate, vars), vars)
	user := applyVars(applyConditionals(def.Config.UserTemplate, vars), vars)

	system = strings.TrimSpace(system)
	user = strings.TrimSpace(user)
	if user == "" {
		return system, nil
	}
	return system + "\n" + user, nil
}

// Builder renders the reply and compaction prompts from a registry.
type Builder struct {
	Registry       Registry
	ReplySlug      string
	CompactionSlug string
}

// NewBuilder returns a Builder using the default relay slugs.
func NewBuilder(reg Registry) *Builder {
	return &Builder{Registry: reg, ReplySlug: SlugReply, CompactionSlug: SlugCompaction}
}

// ReplyPrompt renders the reply prompt for the latest user message.
func (b *Builder) ReplyPrompt(summary, message string) (string, error) {
	def, err := b.lookup(b.ReplySlug, SlugReply)
	if err != nil {
		return "", err
	}
	return Render(def, map[string]string{
		"summary": summary,
		"message": message,
	})
}

// CompactionPrompt renders the prompt that folds the buffer into the summary.
func (b *Builder) CompactionPrompt(summary, buffer string, wordCap int) (string, error) {
	def, err := b.lookup(b.CompactionSlug, SlugCompaction)
	if err != nil {
		return "", err
	}
	return Render(def, map[string]string{
		"summary":  summary,
		"buffer":   buffer,
		"word_cap": strconv.Itoa(wordCap),
	})
}

func (b *Builder) lookup(slug, fallback string) (*Prompt, error) {
	if b == nil || b.Registry == nil {
		return nil, errors.New("prompt registry not configured")
	}
	if strings.TrimSpace(slug) == "" {
		slug = fallback
	}
	return b.Registry.Get(slug)
}

// applyVars substitutes {{name}} placeholders in a single pass so values
// containing braces are never expanded again.
func applyVars(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	pairs := make([]string, 0, len(vars)*2)
	for key, value := range vars {
		pairs = append(pairs, "{{"+key+"}}", value)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

// applyConditionals handles {{#if var}}content{{else}}fallback{{/if}} blocks.
// A block renders its content when the variable is present and non-blank.
func applyConditionals(template string, vars map[string]string) string {
	result := template
	for {
		start := strings.Index(result, "{{#if")
		if start == -1 {
			break
		}
		tagEnd := strings.Index(result[start:], "}}")
		if tagEnd == -1 {
			break
		}
		tagEnd += start

		varName := strings.TrimSpace(result[start+len("{{#if") : tagEnd])
		blockStart := tagEnd + 2

		elseStart, elseEnd, endStart, endEnd := findConditionalBlock(result, blockStart)
		if endStart == -1 {
			break
		}

		ifContent := result[blockStart:endStart]
		elseContent := ""
		if elseStart != -1 {
			ifContent = result[blockStart:elseStart]
			elseContent = result[elseEnd:endStart]
		}

		replacement := elseContent
		if value, ok := vars[varName]; ok && strings.TrimSpace(value) != "" {
			replacement = ifContent
		}

		result = result[:start] + replacement + result[endEnd:]
	}
	return result
}

func findConditionalBlock(input string, start int) (elseStart, elseEnd, endStart, endEnd int) {
	depth := 0
	elseStart, elseEnd = -1, -1

	pos := start
	for {
		openIdx := strings.Index(input[pos:], "{{")
		if openIdx == -1 {
			return -1, -1, -1, -1
		}
		openIdx += pos

		closeIdx := strings.Index(input[openIdx:], "}}")
		if closeIdx == -1 {
			return -1, -1, -1, -1
		}
		closeIdx += openIdx

		tag := strings.TrimSpace(input[openIdx+2 : closeIdx])
		switch {
		case tag == "#if" || strings.HasPrefix(tag, "#if "):
			depth++
		case tag == "/if":
			if depth == 0 {
				return elseStart, elseEnd, openIdx, closeIdx + 2
			}
			depth--
		case tag == "else" && depth == 0 && elseStart == -1:
			elseStart = openIdx
			elseEnd = closeIdx + 2
		}

		pos = closeIdx + 2
	}
}
