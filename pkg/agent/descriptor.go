// Package agent provides the per-request chat agent and the process-wide
// registry of named agent descriptors.
package agent

import (
	"fmt"
	"strings"
)

// Descriptor is one named agent configuration: a prompt, a model, a tool
// set, and the delivery mode. Descriptors are registered once at process
// start and never mutated.
type Descriptor struct {
	Name         string
	DisplayName  string
	Model        string
	SystemPrompt string
	Tools        []string
	Streaming    bool
}

// Registry maps agent names to descriptors. Lookup order for the "available"
// listing follows registration order, not alphabetical order.
type Registry struct {
	order  []string
	byName map[string]Descriptor
}

// NewRegistry builds a registry from the given descriptors. Duplicate or
// empty names are rejected.
func NewRegistry(descs ...Descriptor) (*Registry, error) {
	r := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for _, d := range descs {
		name := strings.TrimSpace(d.Name)
		if name == "" {
			return nil, fmt.Errorf("agent: descriptor name is empty")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("agent: descriptor %q already registered", name)
		}
		d.Name = name
		r.byName[name] = d
		r.order = append(r.order, name)
	}
	return r, nil
}

// Lookup returns the named descriptor.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// Names returns registered agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// UnknownAgent renders the in-band error text for a failed lookup.
func (r *Registry) UnknownAgent(name string) string {
	return fmt.Sprintf("unknown agent '%s'; available: [%s]", name, strings.Join(r.order, ", "))
}

const (
	mainPrompt = "You are a helpful assistant. When a display tool fits the answer, " +
		"call it instead of describing the output in prose."

	researchPrompt = "You are a research assistant. Ground every claim in the note " +
		"corpus: search with search_notes before answering, cite the notes you used, " +
		"and say so plainly when the corpus has nothing relevant."

	codeReviewPrompt = "You are a code reviewer. Analyze the submitted code with " +
		"analyze_complexity, then give a concise critique: correctness first, then " +
		"structure, then style. Be specific about line-level problems."
)

// Defaults returns the descriptors shipped with the service.
func Defaults() []Descriptor {
	return []Descriptor{
		{
			Name:         "main",
			DisplayName:  "Main",
			Model:        "gpt-4o",
			SystemPrompt: mainPrompt,
			Tools:        []string{"generateForm", "generateChart", "generateCode", "generateCard"},
			Streaming:    true,
		},
		{
			Name:         "research",
			DisplayName:  "Research",
			Model:        "gpt-4o",
			SystemPrompt: researchPrompt,
			Tools:        []string{"search_notes"},
			Streaming:    true,
		},
		{
			Name:         "code_review",
			DisplayName:  "Code Review",
			Model:        "gpt-4o",
			SystemPrompt: codeReviewPrompt,
			Tools:        []string{"analyze_complexity"},
			Streaming:    false,
		},
	}
}
