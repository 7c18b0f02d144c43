package blockvalidation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCandidateFSMHappyPath(t *testing.T) {
	ctx := context.Background()
	machine := newCandidateFSM()

	assert.Equal(t, StateReceived, machine.Current())

	require.NoError(t, machine.Event(ctx, EventCheckHeader))
	require.NoError(t, machine.Event(ctx, EventVerifyProofs))
	require.NoError(t, machine.Event(ctx, EventApply))
	require.NoError(t, machine.Event(ctx, EventAccept))

	assert.Equal(t, StateAccepted, machine.Current())
}

func TestCandidateFSMEnforcesOrder(t *testing.T) {
	ctx := context.Background()
	machine := newCandidateFSM()

	// proofs cannot be verified before the header checks pass
	err := machine.Event(ctx, EventVerifyProofs)
	require.Error(t, err)
	assert.Equal(t, StateReceived, machine.Current())

	require.NoError(t, machine.Event(ctx, EventCheckHeader))

	err = machine.Event(ctx, EventAccept)
	require.Error(t, err)
}

func TestCandidateFSMRejectFromAnyStage(t *testing.T) {
	ctx := context.Background()

	for _, advance := range [][]string{
		{},
		{EventCheckHeader},
		{EventCheckHeader, EventVerifyProofs},
		{EventCheckHeader, EventVerifyProofs, EventApply},
	} {
		machine := newCandidateFSM()
		for _, event := range advance {
			require.NoError(t, machine.Event(ctx, event))
		}

		require.NoError(t, machine.Event(ctx, EventReject))
		assert.Equal(t, StateRejected, machine.Current())

		// rejection is terminal
		require.Error(t, machine.Event(ctx, EventAccept))
	}
}
