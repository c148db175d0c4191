package workflow

import (
	"fmt"
	"time"

	"forwardlock/internal/model"
)

// State is the orchestrator's position in the quote and execution flow.
type State int

const (
	Idle State = iota
	AwaitingConnection
	AwaitingApproval
	PreviewPending
	Ready
	Executing
	Settled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AwaitingConnection:
		return "awaiting-connection"
	case AwaitingApproval:
		return "awaiting-approval"
	case PreviewPending:
		return "preview-pending"
	case Ready:
		return "ready"
	case Executing:
		return "executing"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Executing is entered only from Ready and left only to a result state or,
// when confirmation is abandoned, back to Idle.
var transitions = map[State][]State{
	Idle:               {AwaitingConnection, AwaitingApproval, PreviewPending},
	AwaitingConnection: {Idle, PreviewPending},
	AwaitingApproval:   {Idle, PreviewPending, AwaitingConnection},
	PreviewPending:     {Ready, AwaitingConnection, AwaitingApproval, Idle},
	Ready:              {PreviewPending, Executing, AwaitingConnection, AwaitingApproval, Idle},
	Executing:          {Settled, Failed, Idle, PreviewPending},
	Settled:            {PreviewPending, Idle},
	Failed:             {PreviewPending, Idle},
}

func canTransition(from, to State) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Event is published on every state change and on failed steps.
type Event struct {
	From   State
	To     State
	At     time.Time
	Quote  *model.Quote
	Bound  *model.SlippageBound
	Record *model.TransactionRecord
	Err    error
}
