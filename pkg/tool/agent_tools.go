package tool

import (
	"context"
	"strings"
)

const defaultSearchLimit = 5

// note is one entry in the built-in research corpus. The corpus is a fixed
// in-process table; a real deployment would back this with a store.
type note struct {
	ID    string
	Title string
	Body  string
	Tags  []string
}

var researchNotes = []note{
	{
		ID:    "note-001",
		Title: "Streaming backpressure",
		Body:  "Producers must never outrun the slowest consumer. Bound every channel and propagate cancellation through context.",
		Tags:  []string{"streaming", "concurrency"},
	},
	{
		ID:    "note-002",
		Title: "Retry budgets",
		Body:  "Retries amplify load during incidents. Cap attempts, use exponential backoff with jitter, and never retry after partial delivery.",
		Tags:  []string{"reliability", "retry"},
	},
	{
		ID:    "note-003",
		Title: "Schema-first tool design",
		Body:  "Declare tool arguments as JSON schemas so both sides validate against the same contract.",
		Tags:  []string{"tools", "schema"},
	},
	{
		ID:    "note-004",
		Title: "Idempotent handlers",
		Body:  "Clients resend on ambiguous failures. Handlers that tolerate duplicates remove a whole class of reconciliation bugs.",
		Tags:  []string{"reliability", "http"},
	},
	{
		ID:    "note-005",
		Title: "Structured errors over strings",
		Body:  "Attach a machine-readable code to every error surface so clients can branch without parsing prose.",
		Tags:  []string{"errors", "api"},
	},
}

// NewSearchNotes returns the research agent's note search tool. Matching is
// case-insensitive substring over title, body and tags.
func NewSearchNotes() Tool {
	return &staticTool{
		name:        "search_notes",
		description: "Search the research note corpus by keyword and return matching notes.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"query": {
					Type:        "string",
					Description: "Keywords to match against note titles, bodies and tags.",
				},
				"limit": {
					Type:        "number",
					Description: "Maximum notes to return. Defaults to 5.",
				},
			},
			Required: []string{"query"},
		},
		handler: searchNotesHandler,
	}
}

func searchNotesHandler(_ context.Context, params map[string]any) (*ToolResult, error) {
	query, _ := params["query"].(string)
	limit := defaultSearchLimit
	if raw, ok := params["limit"].(float64); ok && raw > 0 {
		limit = int(raw)
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	matches := make([]map[string]any, 0, limit)
	for _, n := range researchNotes {
		if len(matches) >= limit {
			break
		}
		if needle != "" && !noteMatches(n, needle) {
			continue
		}
		matches = append(matches, map[string]any{
			"id":    n.ID,
			"title": n.Title,
			"body":  n.Body,
			"tags":  n.Tags,
		})
	}
	return &ToolResult{Output: map[string]any{
		"query":   query,
		"count":   len(matches),
		"results": matches,
	}}, nil
}

func noteMatches(n note, needle string) bool {
	if strings.Contains(strings.ToLower(n.Title), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(n.Body), needle) {
		return true
	}
	for _, tag := range n.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// NewAnalyzeComplexity returns the code-review agent's complexity tool. The
// analysis is heuristic: it counts lines, branches and nesting from the raw
// text rather than parsing the language.
func NewAnalyzeComplexity() Tool {
	return &staticTool{
		name:        "analyze_complexity",
		description: "Estimate the structural complexity of a code snippet and flag hotspots.",
		schema: &JSONSchema{
			Type: "object",
			Properties: map[string]*JSONSchema{
				"code": {
					Type:        "string",
					Description: "Source text to analyze.",
				},
				"language": {
					Type:        "string",
					Description: "Optional language hint, e.g. go or python.",
				},
			},
			Required: []string{"code"},
		},
		handler: analyzeComplexityHandler,
	}
}

var branchKeywords = []string{"if ", "for ", "while ", "case ", "switch ", "catch ", "&&", "||", "elif "}

func analyzeComplexityHandler(_ context.Context, params map[string]any) (*ToolResult, error) {
	code, _ := params["code"].(string)
	language, _ := params["language"].(string)

	lines := strings.Split(code, "\n")
	nonEmpty := 0
	branches := 0
	maxDepth := 0
	depth := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty++
		for _, kw := range branchKeywords {
			branches += strings.Count(trimmed, kw)
		}
		depth += strings.Count(trimmed, "{") - strings.Count(trimmed, "}")
		if depth > maxDepth {
			maxDepth = depth
		}
	}

	// Cyclomatic complexity approximated as branch points plus one.
	complexity := branches + 1
	rating := "low"
	switch {
	case complexity > 20 || maxDepth > 6:
		rating = "high"
	case complexity > 10 || maxDepth > 4:
		rating = "medium"
	}

	findings := []string{}
	if maxDepth > 4 {
		findings = append(findings, "deep nesting; consider extracting helper functions")
	}
	if nonEmpty > 80 {
		findings = append(findings, "long unit; consider splitting by responsibility")
	}
	if branches > 15 {
		findings = append(findings, "many branch points; consider table-driven dispatch")
	}

	return &ToolResult{Output: map[string]any{
		"language":   language,
		"lines":      nonEmpty,
		"branches":   branches,
		"maxDepth":   maxDepth,
		"complexity": complexity,
		"rating":     rating,
		"findings":   findings,
	}}, nil
}

// RegisterBuiltins installs every built-in tool into the registry.
func RegisterBuiltins(r *Registry) error {
	builtins := []Tool{
		NewGenerateForm(),
		NewGenerateChart(),
		NewGenerateCode(),
		NewGenerateCard(),
		NewSearchNotes(),
		NewAnalyzeComplexity(),
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// DefaultRegistry builds a registry preloaded with the built-in tools.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	if err := RegisterBuiltins(r); err != nil {
		// Built-in names are static; a collision is a programming error.
		panic(err)
	}
	return r
}
