// Package harness runs subscription scenarios end to end against a fresh
// in-memory store and records what happened as a trace.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: confirm_then_moderate
//	description: "Subscriber confirms, then a moderator approves"
//	tokens: [tok-1, tok-2]
//	definitions: |
//	  lists: "ant.example.com": {
//	    posting_address:     "ant@example.com"
//	    subscription_policy: "confirm_then_moderate"
//	    moderators: ["mod@example.com"]
//	  }
//	addresses:
//	  - email: anne@example.com
//	    verified: true
//	flow:
//	  - action: register
//	    list: ant.example.com
//	    email: anne@example.com
//	    expect: { token: tok-1, token_owner: subscriber }
//	  - action: confirm
//	    list: ant.example.com
//	    token: tok-1
//	    expect: { token: tok-2, token_owner: moderator }
//	assertions:
//	  - type: trace_order
//	    event: step
//	    names: [send_confirmation, do_confirm_verify, get_moderator_approval]
//	  - type: row_count
//	    table: pended
//	    where: { token: tok-2 }
//	    count: 1
//
// The definitions field holds list definitions in the same CUE format the
// "lists load" command reads.
//
// # Flow Actions
//
//   - register: start a subscription for email or user
//   - confirm: present a token
//   - discard: abandon a pending subscription
//   - evict: drop expired tokens and their orphaned workflow states
//   - advance: move the scenario clock forward by duration
//
// An expect clause is a subset match over the result fields (token,
// token_owner, member, error). An empty value asserts the field is absent.
// A step without an error key in its expect clause must not fail.
//
// # Assertion Types
//
//   - trace_contains: an event with the given name and fields is in the trace
//   - trace_order: named events appear in the given order
//   - trace_count: a named event appears exactly N times
//   - final_state: exactly one row matches where and carries expect
//   - row_count: exactly N rows match where
//
// # Deterministic Testing
//
// Tokens come from the scenario's fixed token list, time from
// testutil.Clock, and every scenario gets its own in-memory SQLite
// database. Traces therefore compare byte for byte against golden files.
package harness
