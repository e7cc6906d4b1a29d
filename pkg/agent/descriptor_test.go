package agent

import (
	"reflect"
	"strings"
	"testing"
)

func TestNewRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		descs   []Descriptor
		wantErr string
	}{
		{name: "empty name", descs: []Descriptor{{Name: "  "}}, wantErr: "descriptor name is empty"},
		{
			name:    "duplicate name",
			descs:   []Descriptor{{Name: "main"}, {Name: "main"}},
			wantErr: `descriptor "main" already registered`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.descs...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRegistryNamesKeepRegistrationOrder(t *testing.T) {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	want := []string{"main", "research", "code_review"}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("names = %v want %v", got, want)
	}
}

func TestUnknownAgentText(t *testing.T) {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	want := "unknown agent 'xyz'; available: [main, research, code_review]"
	if got := r.UnknownAgent("xyz"); got != want {
		t.Fatalf("text = %q want %q", got, want)
	}
}

func TestDefaultsWiring(t *testing.T) {
	r, err := NewRegistry(Defaults()...)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	research, ok := r.Lookup("research")
	if !ok {
		t.Fatal("research agent missing")
	}
	if !research.Streaming || !reflect.DeepEqual(research.Tools, []string{"search_notes"}) {
		t.Fatalf("research descriptor = %+v", research)
	}
	review, ok := r.Lookup("code_review")
	if !ok {
		t.Fatal("code_review agent missing")
	}
	if review.Streaming {
		t.Fatal("code_review must deliver buffered responses")
	}
	if _, ok := r.Lookup("missing"); ok {
		t.Fatal("lookup of unregistered name succeeded")
	}
}
