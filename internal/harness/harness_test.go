package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func confirmList() string {
	return `lists: "ant.example.com": {
	posting_address:     "ant@example.com"
	subscription_policy: "confirm"
}
`
}

func TestRun_MinimalScenario(t *testing.T) {
	scenario, err := ParseScenario([]byte(minimalScenario))
	require.NoError(t, err)
	scenario.Tokens = []string{"tok-1"}

	result, err := Run(scenario)
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.True(t, result.Pass, result.Errors)
	assert.Empty(t, result.Errors)

	// call, three steps, the confirmation message and the result
	require.Len(t, result.Trace, 6)
	assert.Equal(t, EventCall, result.Trace[0].Type)
	assert.Equal(t, EventMessage, result.Trace[4].Type)
	assert.Equal(t, EventResult, result.Trace[5].Type)
	assert.Equal(t, map[string]string{"token": "tok-1", "token_owner": "subscriber"}, result.Trace[5].Fields)
	for i, ev := range result.Trace {
		assert.Equal(t, int64(i+1), ev.Seq)
	}
}

func TestRun_ExpectMismatch(t *testing.T) {
	scenario := &Scenario{
		Name:        "expect_mismatch",
		Description: "Wrong token owner is reported",
		Definitions: confirmList(),
		Tokens:      []string{"tok-1"},
		Flow: []FlowStep{
			{
				Action: ActionRegister,
				List:   "ant.example.com",
				Email:  "anne@example.com",
				Expect: map[string]string{"token_owner": "moderator"},
			},
		},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "pended", Count: 1}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, `flow[0] register: token_owner = "subscriber", expected "moderator"`, result.Errors[0])
}

func TestRun_UnexpectedError(t *testing.T) {
	scenario := &Scenario{
		Name:        "unexpected_error",
		Description: "A refusal without an error expectation fails the scenario",
		Definitions: confirmList(),
		Flow: []FlowStep{
			{Action: ActionConfirm, List: "ant.example.com", Token: "nope"},
		},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "pended", Count: 0}},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"flow[0] confirm: unexpected error NO_SUCH_WORKFLOW"}, result.Errors)
}

func TestRun_FailedAssertionReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "failed_assertion",
		Description: "Assertion failures land in Errors",
		Definitions: confirmList(),
		Tokens:      []string{"tok-1"},
		Flow: []FlowStep{
			{Action: ActionRegister, List: "ant.example.com", Email: "anne@example.com"},
		},
		Assertions: []Assertion{
			{Type: AssertRowCount, Table: "members", Where: map[string]interface{}{"role": "member"}, Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: row_count")
}

func TestRun_InvalidDefinitions(t *testing.T) {
	scenario := &Scenario{
		Name:        "invalid_definitions",
		Description: "Definitions that fail the schema abort the run",
		Definitions: `lists: "ant.example.com": subscription_policy: "sometimes"`,
		Flow:        []FlowStep{{Action: ActionEvict}},
		Assertions:  []Assertion{{Type: AssertRowCount, Table: "pended"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to execute setup")
}

func TestRun_UnknownList(t *testing.T) {
	scenario := &Scenario{
		Name:        "unknown_list",
		Description: "Calls against an undefined list abort the run",
		Definitions: confirmList(),
		Flow: []FlowStep{
			{Action: ActionRegister, List: "bee.example.com", Email: "anne@example.com"},
		},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "pended"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flow step 0 (register)")
}

func TestRun_TokensExhausted(t *testing.T) {
	scenario := &Scenario{
		Name:        "tokens_exhausted",
		Description: "Running out of fixed tokens aborts the run",
		Definitions: confirmList(),
		Flow: []FlowStep{
			{Action: ActionRegister, List: "ant.example.com", Email: "anne@example.com"},
		},
		Assertions: []Assertion{{Type: AssertRowCount, Table: "pended"}},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tokens exhausted")
}

func TestRun_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/scenarios/confirm_then_moderate.yaml")
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	assert.Equal(t, first.Trace, second.Trace)
}
