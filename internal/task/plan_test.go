package task

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParsePlanYAMLMixedStepArray(t *testing.T) {
	const payload = `
id: feature
steps:
  - plan
  - [performance, security]
  - finalize
`
	plan, err := ParsePlanYAML([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(plan.Steps) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(plan.Steps))
	}
	if plan.Steps[0].Parallel() {
		t.Fatalf("first slot should be single")
	}
	if !plan.Steps[1].Parallel() {
		t.Fatalf("second slot should be a group")
	}
	if got := plan.Steps[1].Label(); got != "performance+security" {
		t.Fatalf("group label = %q", got)
	}
	if plan.Steps[2].Names[0] != "finalize" {
		t.Fatalf("third slot = %v", plan.Steps[2].Names)
	}
}

func TestParsePlanYAMLAppliesRuntimeDefaults(t *testing.T) {
	const payload = `
id: defaults
steps:
  - plan
`
	plan, err := ParsePlanYAML([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Runtime.WaitTimeout != DefaultWaitTimeout {
		t.Fatalf("wait timeout = %v", plan.Runtime.WaitTimeout)
	}
	if plan.Runtime.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval = %v", plan.Runtime.PollInterval)
	}
	if plan.Runtime.MaxTimeouts != DefaultMaxTimeouts {
		t.Fatalf("max timeouts = %d", plan.Runtime.MaxTimeouts)
	}
}

func TestParsePlanYAMLParsesRuntimeDurations(t *testing.T) {
	const payload = `
id: timed
runtime:
  wait_timeout: 90s
  poll_interval: 500ms
steps:
  - plan
`
	plan, err := ParsePlanYAML([]byte(payload))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if plan.Runtime.WaitTimeout != 90*time.Second {
		t.Fatalf("wait timeout = %v", plan.Runtime.WaitTimeout)
	}
	if plan.Runtime.PollInterval != 500*time.Millisecond {
		t.Fatalf("poll interval = %v", plan.Runtime.PollInterval)
	}
}

func TestValidateRejectsDuplicateStepNames(t *testing.T) {
	const payload = `
id: dup
steps:
  - plan
  - [plan, review]
`
	_, err := ParsePlanYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error for duplicate step name")
	}
	if !strings.Contains(err.Error(), "duplicate step name") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsForwardRetryTarget(t *testing.T) {
	const payload = `
id: forward
steps:
  - review
  - implement
gates:
  review:
    gating: true
    retry_target: implement
`
	_, err := ParsePlanYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error for forward retry target")
	}
	if !strings.Contains(err.Error(), "after the gate") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsUnknownGateStep(t *testing.T) {
	const payload = `
id: unknown-gate
steps:
  - plan
gates:
  review:
    gating: true
`
	_, err := ParsePlanYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error for unknown gate step")
	}
	if !strings.Contains(err.Error(), "unknown step") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateRejectsTwoGatesInOneGroup(t *testing.T) {
	const payload = `
id: two-gates
steps:
  - [performance, security]
gates:
  performance:
    gating: true
  security:
    gating: true
`
	_, err := ParsePlanYAML([]byte(payload))
	if err == nil {
		t.Fatalf("expected error for two gates in one group")
	}
	if !strings.Contains(err.Error(), "at most one member") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateAcceptsUnsetRuntime(t *testing.T) {
	plan := Plan{ID: "raw", Steps: []Step{Single("plan"), Single("review")}}
	if err := plan.Validate(); err != nil {
		t.Fatalf("raw definition should validate: %v", err)
	}
	normalized, err := plan.Normalized()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if normalized.Runtime.WaitTimeout != DefaultWaitTimeout {
		t.Fatalf("wait timeout = %v", normalized.Runtime.WaitTimeout)
	}
	if normalized.Runtime.PollInterval != DefaultPollInterval {
		t.Fatalf("poll interval = %v", normalized.Runtime.PollInterval)
	}
}

func TestValidateRejectsIncoherentRuntime(t *testing.T) {
	plan := Plan{
		ID:      "incoherent",
		Steps:   []Step{Single("plan")},
		Runtime: RuntimeConfig{WaitTimeout: time.Second, PollInterval: 2 * time.Second},
	}
	err := plan.Validate()
	if err == nil || !strings.Contains(err.Error(), "poll_interval must not exceed wait_timeout") {
		t.Fatalf("unexpected error: %v", err)
	}
	plan.Runtime = RuntimeConfig{WaitTimeout: -time.Second}
	err = plan.Validate()
	if err == nil || !strings.Contains(err.Error(), "wait_timeout must not be negative") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	plan := Plan{
		ID:    "clone",
		Steps: []Step{Single("plan"), Group("a", "b")},
		Gates: map[string]GatePolicy{"plan": {Gating: true, RetryTarget: "plan", MaxRetries: 1}},
	}
	clone := plan.Clone()
	clone.Steps[1].Names[0] = "mutated"
	clone.Gates["plan"] = GatePolicy{Gating: false}
	if plan.Steps[1].Names[0] != "a" {
		t.Fatalf("clone mutated original steps")
	}
	if !plan.Gates["plan"].Gating {
		t.Fatalf("clone mutated original gates")
	}
}

func TestStepJSONRoundTrip(t *testing.T) {
	plan := Plan{
		ID:    "wire",
		Steps: []Step{Single("plan"), Group("performance", "security"), Single("finalize")},
	}
	data, err := json.Marshal(plan)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"plan",["performance","security"],"finalize"`) {
		t.Fatalf("wire form = %s", data)
	}
	var decoded Plan
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Steps[1].Parallel() || decoded.Steps[1].Label() != "performance+security" {
		t.Fatalf("decoded slot = %v", decoded.Steps[1].Names)
	}
}

func TestGateForFindsGroupMemberPolicy(t *testing.T) {
	plan := Plan{
		ID:    "gate-for",
		Steps: []Step{Single("plan"), Group("performance", "security")},
		Gates: map[string]GatePolicy{"security": {Gating: true, RetryTarget: "plan", MaxRetries: 2}},
	}
	name, policy, ok := plan.GateFor(1)
	if !ok {
		t.Fatalf("expected gate on slot 1")
	}
	if name != "security" || policy.RetryTarget != "plan" {
		t.Fatalf("gate = %s %+v", name, policy)
	}
	if _, _, ok := plan.GateFor(0); ok {
		t.Fatalf("slot 0 has no gate")
	}
}
