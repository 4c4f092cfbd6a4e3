package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadScenario_ResolvesRulesRelativeToFile(t *testing.T) {
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", "author_renamed_relinks.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "rules", "minimal.yaml"), s.Rules)
	require.Len(t, s.Steps, 2)
	require.Len(t, s.Steps[0].Fields, 1)
	assert.Equal(t, "affiliation", s.Steps[0].Fields[0].Children[0].Name)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	_, err := ParseScenario([]byte(`
name: typo
description: misspelled key
steps:
  - {source: arxiv, id: "1"}
assertion:
  - type: no_dangling
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_NullValueIsContainer(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: container
description: a node without value groups children
steps:
  - source: crossref
    id: 10.1/f
    tree:
      - field: crossref.funder
        children:
          - {field: crossref.funder.name, value: NSF}
assertions:
  - type: no_dangling
`))
	require.NoError(t, err)

	tree := buildTree(s.Steps[0].Tree)
	require.Len(t, tree, 1)
	assert.Nil(t, tree[0].Value)
	require.Len(t, tree[0].Children, 1)
	assert.Equal(t, "NSF", tree[0].Children[0].ValueString())
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing name",
			yaml:    "description: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing description",
			yaml:    "name: n\nsteps: [{source: a, id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "description is required",
		},
		{
			name:    "no steps",
			yaml:    "name: n\ndescription: d\nassertions: [{type: no_dangling}]\n",
			wantErr: "steps list is required",
		},
		{
			name:    "no assertions",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\n",
			wantErr: "assertions list is required",
		},
		{
			name:    "step without source",
			yaml:    "name: n\ndescription: d\nsteps: [{id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "steps[0]: source is required",
		},
		{
			name:    "step without id",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "steps[0]: id is required",
		},
		{
			name: "fields and tree",
			yaml: "name: n\ndescription: d\nsteps: [{source: a, id: '1', fields: [{name: x, value: y}], tree: [{field: x, value: y}]}]\n" +
				"assertions: [{type: no_dangling}]\n",
			wantErr: "mutually exclusive",
		},
		{
			name:    "resolve with payload",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1', payload: x, format: XML, resolve: {doi: d}}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "resolve steps take no fields",
		},
		{
			name:    "bad format",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1', payload: x, format: csv}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "unknown payload format",
		},
		{
			name:    "match on reconcile step",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1', expect: {match: new}}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "match is only valid on resolve steps",
		},
		{
			name:    "bad unmapped policy",
			yaml:    "name: n\ndescription: d\nunmapped: keep\nsteps: [{source: a, id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "unknown unmapped policy",
		},
		{
			name:    "incomplete transformation",
			yaml:    "name: n\ndescription: d\ntransformations: [{source: a, field: f}]\nsteps: [{source: a, id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "transformations[0]",
		},
		{
			name:    "incomplete mapping",
			yaml:    "name: n\ndescription: d\nmappings: [{source: a, field: f}]\nsteps: [{source: a, id: '1'}]\nassertions: [{type: no_dangling}]\n",
			wantErr: "mappings[0]",
		},
		{
			name:    "unknown assertion",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: trace_contains}]\n",
			wantErr: `unknown assertion type "trace_contains"`,
		},
		{
			name:    "active_value without value",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: active_value, source: a, id: '1', field: f}]\n",
			wantErr: "value or absent is required",
		},
		{
			name:    "active_count without count",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: active_count, source: a, id: '1'}]\n",
			wantErr: "non-negative count is required for active_count",
		},
		{
			name:    "message_count negative",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: message_count, count: -1}]\n",
			wantErr: "non-negative count is required for message_count",
		},
		{
			name:    "history without field",
			yaml:    "name: n\ndescription: d\nsteps: [{source: a, id: '1'}]\nassertions: [{type: history, source: a, id: '1'}]\n",
			wantErr: "source, id and field are required for history",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
