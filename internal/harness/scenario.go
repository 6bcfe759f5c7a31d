package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Scenario defines a subscription scenario: list definitions, initial
// identity records, a flow of registrar calls and assertions over the
// resulting trace and database.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Definitions is CUE source in the "lists load" format.
	Definitions string `yaml:"definitions"`

	// Tokens are handed out, in order, whenever a pending token is needed.
	Tokens []string `yaml:"tokens,omitempty"`

	// TokenLifetime overrides the default pending token lifetime.
	TokenLifetime string `yaml:"token_lifetime,omitempty"`

	// Users and Addresses are created before the flow runs.
	Users     []UserSetup    `yaml:"users,omitempty"`
	Addresses []AddressSetup `yaml:"addresses,omitempty"`

	// Flow contains the registrar calls with expected results.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// UserSetup creates a user with a fixed ID.
type UserSetup struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name,omitempty"`
	Preferred   string `yaml:"preferred,omitempty"`
}

// AddressSetup registers an address, optionally verified and linked to a
// user from Users.
type AddressSetup struct {
	Email       string `yaml:"email"`
	DisplayName string `yaml:"display_name,omitempty"`
	Verified    bool   `yaml:"verified,omitempty"`
	User        string `yaml:"user,omitempty"`
}

// Flow actions.
const (
	ActionRegister = "register"
	ActionConfirm  = "confirm"
	ActionDiscard  = "discard"
	ActionEvict    = "evict"
	ActionAdvance  = "advance"
)

// FlowStep is one call in the scenario flow.
type FlowStep struct {
	Action string `yaml:"action"`

	// List is required by register, confirm and discard.
	List string `yaml:"list,omitempty"`

	// Register takes exactly one of Email or User.
	Email        string `yaml:"email,omitempty"`
	User         string `yaml:"user,omitempty"`
	DisplayName  string `yaml:"display_name,omitempty"`
	PreVerified  bool   `yaml:"pre_verified,omitempty"`
	PreConfirmed bool   `yaml:"pre_confirmed,omitempty"`
	PreApproved  bool   `yaml:"pre_approved,omitempty"`

	// Token is presented by confirm and discard.
	Token string `yaml:"token,omitempty"`

	// Duration is how far advance moves the clock, e.g. "48h".
	Duration string `yaml:"duration,omitempty"`

	// Expect is a subset match over the result fields.
	// If nil, the step must succeed.
	Expect map[string]string `yaml:"expect,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Event restricts trace assertions to one event type. Defaults to step.
	Event string `yaml:"event,omitempty"`

	// Name is the event name (used by trace_contains and trace_count).
	Name string `yaml:"name,omitempty"`

	// Fields are matched as a subset of the event fields (trace_contains).
	Fields map[string]string `yaml:"fields,omitempty"`

	// Names is the expected order (trace_order).
	Names []string `yaml:"names,omitempty"`

	// Count is the expected number of events or rows (trace_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Table and Where select rows (final_state, row_count).
	Table string                 `yaml:"table,omitempty"`
	Where map[string]interface{} `yaml:"where,omitempty"`

	// Expect contains expected column values (final_state).
	// Subset match - only specified columns are validated.
	Expect map[string]interface{} `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
	AssertRowCount      = "row_count"
)

// eventType returns the event type a trace assertion applies to.
func (a Assertion) eventType() string {
	if a.Event == "" {
		return EventStep
	}
	return a.Event
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.Definitions == "" {
		return fmt.Errorf("definitions are required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.TokenLifetime != "" {
		if _, err := time.ParseDuration(s.TokenLifetime); err != nil {
			return fmt.Errorf("token_lifetime: %w", err)
		}
	}

	for i, u := range s.Users {
		if u.ID == "" {
			return fmt.Errorf("users[%d]: id is required", i)
		}
	}

	for i, a := range s.Addresses {
		if a.Email == "" {
			return fmt.Errorf("addresses[%d]: email is required", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateFlowStep(i, &step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateFlowStep checks the fields each action needs.
func validateFlowStep(index int, step *FlowStep) error {
	switch step.Action {
	case ActionRegister:
		if step.List == "" {
			return fmt.Errorf("flow[%d]: list is required for register", index)
		}
		if (step.Email == "") == (step.User == "") {
			return fmt.Errorf("flow[%d]: exactly one of email or user is required for register", index)
		}
	case ActionConfirm, ActionDiscard:
		if step.List == "" {
			return fmt.Errorf("flow[%d]: list is required for %s", index, step.Action)
		}
		if step.Token == "" {
			return fmt.Errorf("flow[%d]: token is required for %s", index, step.Action)
		}
	case ActionEvict:
	case ActionAdvance:
		if _, err := time.ParseDuration(step.Duration); err != nil {
			return fmt.Errorf("flow[%d]: duration: %w", index, err)
		}
	case "":
		return fmt.Errorf("flow[%d]: action is required", index)
	default:
		return fmt.Errorf("flow[%d]: unknown action %q", index, step.Action)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.eventType() {
	case EventCall, EventStep, EventMessage, EventResult:
	default:
		return fmt.Errorf("assertions[%d]: unknown event type %q", index, a.Event)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Names) == 0 {
			return fmt.Errorf("assertions[%d]: names list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Name == "" {
			return fmt.Errorf("assertions[%d]: name is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
