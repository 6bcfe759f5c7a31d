package harness

// Trace event types.
const (
	EventCall    = "call"
	EventStep    = "step"
	EventMessage = "message"
	EventResult  = "result"
)

// TraceEvent is one entry of a scenario trace.
//
// Name is the flow action for call and result events, the workflow step for
// step events and the notification kind for message events. Fields are
// string valued so that YAML expectations compare directly.
type TraceEvent struct {
	Seq    int64             `json:"seq"`
	Type   string            `json:"type"`
	Name   string            `json:"name"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds calls, executed steps, sent messages and results in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	seq int64
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends an event, assigning the next sequence number.
func (r *Result) AddTrace(typ, name string, fields map[string]string) {
	r.seq++
	if len(fields) == 0 {
		fields = nil
	}
	r.Trace = append(r.Trace, TraceEvent{
		Seq:    r.seq,
		Type:   typ,
		Name:   name,
		Fields: fields,
	})
}
