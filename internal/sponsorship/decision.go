package sponsorship

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is the closed set of decision actions. Routing is by exhaustive
// switch, not string comparison; unknown actions fail at parse time.
type Action int

const (
	ActionUnknown Action = iota
	ActionSponsorGas
	ActionSkip
	ActionAlert
)

func ParseAction(s string) (Action, error) {
	switch s {
	case "sponsor_gas":
		return ActionSponsorGas, nil
	case "skip":
		return ActionSkip, nil
	case "alert":
		return ActionAlert, nil
	default:
		return ActionUnknown, fmt.Errorf("unknown decision action: %q", s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionSponsorGas:
		return "sponsor_gas"
	case ActionSkip:
		return "skip"
	case ActionAlert:
		return "alert"
	default:
		return "unknown"
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseAction(s)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

type Mode int

const (
	ModeLive Mode = iota
	ModeSimulation
)

func (m Mode) String() string {
	if m == ModeSimulation {
		return "SIMULATION"
	}
	return "LIVE"
}

// Decision is the approved sponsorship intent handed to the orchestrator by
// the reasoning layer.
type Decision struct {
	Action           Action          `json:"action"`
	ProtocolId       string          `json:"protocolId"`
	AgentWallet      string          `json:"agentWallet"`
	EstimatedCostUsd decimal.Decimal `json:"estimatedCostUsd"`
	TargetContract   string          `json:"targetContract,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
}

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid sponsorship decision: %s", e.Reason)
}

// Validate enforces the saga preconditions. A failing decision produces no
// side effects at all.
func (d *Decision) Validate() error {
	switch d.Action {
	case ActionSponsorGas:
	case ActionSkip, ActionAlert, ActionUnknown:
		return &ValidationError{Reason: fmt.Sprintf("action %q is not sponsorable", d.Action)}
	default:
		return &ValidationError{Reason: fmt.Sprintf("action %q is not sponsorable", d.Action)}
	}

	if d.AgentWallet == "" {
		return &ValidationError{Reason: "missing agent wallet"}
	}
	if d.ProtocolId == "" {
		return &ValidationError{Reason: "missing protocol id"}
	}
	if d.EstimatedCostUsd.LessThanOrEqual(decimal.Zero) {
		return &ValidationError{Reason: "estimated cost must be positive"}
	}
	return nil
}
