package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesType(t *testing.T) {
	tests := []struct {
		name      string
		pattern   string
		eventType string
		want      bool
	}{
		{"exact match", "github.push", "github.push", true},
		{"exact mismatch", "github.push", "github.pull", false},
		{"wildcard matches anything", "*", "github.push", true},
		{"wildcard matches single segment", "*", "deploy", true},
		{"prefix matches child", "github.*", "github.push", true},
		{"prefix matches deep child", "github.*", "github.push.main", true},
		{"prefix does not match bare prefix", "github.*", "github", false},
		{"prefix does not match sibling", "github.*", "gitlab.push", false},
		{"prefix does not match partial segment", "github.*", "githubx.push", false},
		{"nested prefix", "ci.build.*", "ci.build.failed", true},
		{"nested prefix bare", "ci.build.*", "ci.build", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesType(tt.pattern, tt.eventType))
		})
	}
}

func TestFilterMatches(t *testing.T) {
	event := &Event{
		Type: "github.push",
		Metadata: EventMetadata{
			Priority: PriorityHigh,
			Tags:     []string{"prod", "backend"},
			Source:   "github-webhook",
		},
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter matches all", nil, true},
		{"empty filter matches all", &Filter{}, true},
		{"matching type", &Filter{EventTypes: []string{"github.push"}}, true},
		{"matching prefix", &Filter{EventTypes: []string{"github.*"}}, true},
		{"type OR within field", &Filter{EventTypes: []string{"gitlab.push", "github.push"}}, true},
		{"non-matching type", &Filter{EventTypes: []string{"gitlab.push"}}, false},
		{"matching tag", &Filter{Tags: []string{"prod"}}, true},
		{"tag OR within field", &Filter{Tags: []string{"staging", "prod"}}, true},
		{"non-matching tag", &Filter{Tags: []string{"staging"}}, false},
		{"matching priority", &Filter{Priorities: []Priority{PriorityHigh}}, true},
		{"non-matching priority", &Filter{Priorities: []Priority{PriorityLow}}, false},
		{"matching source", &Filter{Sources: []string{"github-webhook"}}, true},
		{"non-matching source", &Filter{Sources: []string{"poller"}}, false},
		{
			"AND across fields all match",
			&Filter{EventTypes: []string{"github.*"}, Tags: []string{"prod"}, Priorities: []Priority{PriorityHigh}},
			true,
		},
		{
			"AND across fields one fails",
			&Filter{EventTypes: []string{"github.*"}, Tags: []string{"staging"}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(event))
		})
	}
}

func TestFilterValidate(t *testing.T) {
	tests := []struct {
		name    string
		filter  *Filter
		wantErr bool
		errMsg  string
	}{
		{"empty filter", &Filter{}, false, ""},
		{"valid patterns", &Filter{EventTypes: []string{"github.push", "ci.*", "*"}}, false, ""},
		{"empty pattern", &Filter{EventTypes: []string{""}}, true, "invalid type pattern"},
		{"embedded wildcard", &Filter{EventTypes: []string{"github.*.push"}}, true, "invalid type pattern"},
		{"leading wildcard", &Filter{EventTypes: []string{"*.push"}}, true, "invalid type pattern"},
		{"invalid priority", &Filter{Priorities: []Priority{"urgent"}}, true, "unknown priority"},
		{"valid priorities", &Filter{Priorities: []Priority{PriorityLow, PriorityCritical}}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.filter.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.True(t, IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFilterClone(t *testing.T) {
	orig := &Filter{
		EventTypes: []string{"github.*"},
		Tags:       []string{"prod"},
		Priorities: []Priority{PriorityHigh},
		Sources:    []string{"webhook"},
	}

	clone := orig.Clone()
	require.NotNil(t, clone)
	assert.Equal(t, orig, clone)

	clone.EventTypes[0] = "gitlab.*"
	clone.Tags = append(clone.Tags, "staging")
	assert.Equal(t, "github.*", orig.EventTypes[0])
	assert.Len(t, orig.Tags, 1)

	assert.Nil(t, (*Filter)(nil).Clone())
}
