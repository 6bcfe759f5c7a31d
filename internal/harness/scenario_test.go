package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalScenario = `
name: minimal
description: "Minimal scenario"
definitions: |
  lists: "ant.example.com": posting_address: "ant@example.com"
flow:
  - action: register
    list: ant.example.com
    email: anne@example.com
assertions:
  - type: trace_count
    name: sanity_checks
    count: 1
`

func TestLoadScenario_ValidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "minimal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalScenario), 0644))

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "minimal", scenario.Name)
	assert.Contains(t, scenario.Definitions, `posting_address: "ant@example.com"`)
	require.Len(t, scenario.Flow, 1)
	assert.Equal(t, ActionRegister, scenario.Flow[0].Action)
	assert.Equal(t, "anne@example.com", scenario.Flow[0].Email)
	assert.Nil(t, scenario.Flow[0].Expect)
	require.Len(t, scenario.Assertions, 1)
	assert.Equal(t, EventStep, scenario.Assertions[0].eventType())
}

func TestLoadScenario_FileNotFound(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_UnknownField(t *testing.T) {
	_, err := ParseScenario([]byte(minimalScenario + "assertion: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing_name",
			yaml:    "description: d\ndefinitions: x\nflow: [{action: evict}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "name is required",
		},
		{
			name:    "missing_definitions",
			yaml:    "name: n\ndescription: d\nflow: [{action: evict}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "definitions are required",
		},
		{
			name:    "empty_flow",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: []\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "flow list is required",
		},
		{
			name:    "register_without_subscriber",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: register, list: l}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "exactly one of email or user",
		},
		{
			name:    "register_with_both",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: register, list: l, email: a@b, user: u}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "exactly one of email or user",
		},
		{
			name:    "confirm_without_token",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: confirm, list: l}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "token is required for confirm",
		},
		{
			name:    "bad_duration",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: advance, duration: soon}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "flow[0]: duration",
		},
		{
			name:    "unknown_action",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: unsubscribe}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: `unknown action "unsubscribe"`,
		},
		{
			name:    "bad_lifetime",
			yaml:    "name: n\ndescription: d\ndefinitions: x\ntoken_lifetime: forever\nflow: [{action: evict}]\nassertions: [{type: row_count, table: pended}]\n",
			wantErr: "token_lifetime",
		},
		{
			name:    "final_state_without_expect",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: evict}]\nassertions: [{type: final_state, table: members}]\n",
			wantErr: "expect is required for final_state",
		},
		{
			name:    "trace_order_without_names",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: evict}]\nassertions: [{type: trace_order}]\n",
			wantErr: "names list is required",
		},
		{
			name:    "unknown_event",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: evict}]\nassertions: [{type: trace_count, event: invocation, name: x}]\n",
			wantErr: `unknown event type "invocation"`,
		},
		{
			name:    "unknown_assertion",
			yaml:    "name: n\ndescription: d\ndefinitions: x\nflow: [{action: evict}]\nassertions: [{type: eventually}]\n",
			wantErr: `unknown assertion type "eventually"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid scenario")
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadScenario_Testdata(t *testing.T) {
	paths, err := filepath.Glob("testdata/scenarios/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			_, err := LoadScenario(path)
			assert.NoError(t, err)
		})
	}
}
