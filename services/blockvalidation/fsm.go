package blockvalidation

import (
	"github.com/looplab/fsm"
)

// Candidate validation states. Every block moves through them in order;
// any failure sends it straight to rejected.
const (
	StateReceived           = "received"
	StateHeaderChecked      = "headerchecked"
	StateProofVerified      = "proofverified"
	StateAccumulatorApplied = "accumulatorapplied"
	StateAccepted           = "accepted"
	StateRejected           = "rejected"
)

// Validation events.
const (
	EventCheckHeader  = "checkheader"
	EventVerifyProofs = "verifyproofs"
	EventApply        = "apply"
	EventAccept       = "accept"
	EventReject       = "reject"
)

// newCandidateFSM creates the finite state machine tracking one candidate
// block through validation. The machine enforces check ordering: a proof
// is never verified before the header checks pass, and the accumulator is
// never touched before the proofs verify.
func newCandidateFSM(opts ...func(*fsm.FSM)) *fsm.FSM {
	finiteStateMachine := fsm.NewFSM(
		StateReceived,
		fsm.Events{
			{
				Name: EventCheckHeader,
				Src:  []string{StateReceived},
				Dst:  StateHeaderChecked,
			},
			{
				Name: EventVerifyProofs,
				Src:  []string{StateHeaderChecked},
				Dst:  StateProofVerified,
			},
			{
				Name: EventApply,
				Src:  []string{StateProofVerified},
				Dst:  StateAccumulatorApplied,
			},
			{
				Name: EventAccept,
				Src:  []string{StateAccumulatorApplied},
				Dst:  StateAccepted,
			},
			{
				Name: EventReject,
				Src: []string{
					StateReceived,
					StateHeaderChecked,
					StateProofVerified,
					StateAccumulatorApplied,
				},
				Dst: StateRejected,
			},
		},
		fsm.Callbacks{},
	)

	// apply options
	for _, opt := range opts {
		opt(finiteStateMachine)
	}

	return finiteStateMachine
}
