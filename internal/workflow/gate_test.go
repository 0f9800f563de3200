package workflow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusDraft, StatusSubmitted, StatusUnderReview, StatusActionRequired,
	StatusProcessing, StatusApproved, StatusRejected, StatusDiscarded,
}

func TestCanMutateDocument(t *testing.T) {
	for _, status := range allStatuses {
		want := status == StatusDraft
		require.Equal(t, want, CanMutate(FieldDocument, status), "status %s", status)
	}
}

func TestCanMutateStatus(t *testing.T) {
	for _, status := range allStatuses {
		want := !status.Terminal()
		require.Equal(t, want, CanMutate(FieldStatus, status), "status %s", status)
	}
}

func TestCanMutateUnknownField(t *testing.T) {
	require.False(t, CanMutate(Field("owner"), StatusDraft))
}

func TestTransitionTableExhaustive(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusDraft, StatusSubmitted}:            true,
		{StatusDraft, StatusDiscarded}:            true,
		{StatusSubmitted, StatusUnderReview}:      true,
		{StatusUnderReview, StatusActionRequired}: true,
		{StatusUnderReview, StatusProcessing}:     true,
		{StatusActionRequired, StatusSubmitted}:   true,
		{StatusProcessing, StatusApproved}:        true,
		{StatusProcessing, StatusRejected}:        true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			err := CheckTransition(from, to)
			if allowed[[2]Status{from, to}] {
				require.NoError(t, err, "%s -> %s", from, to)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
			var invalid *InvalidTransition
			require.ErrorAs(t, err, &invalid)
			require.Equal(t, from, invalid.From)
			require.Equal(t, to, invalid.To)
		}
	}
}

func TestApplicantMayOnlySubmitDrafts(t *testing.T) {
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			err := CheckApplicantTransition(from, to)
			if from == StatusDraft && to == StatusSubmitted {
				require.NoError(t, err)
				continue
			}
			require.Error(t, err, "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatesAbsorb(t *testing.T) {
	for _, terminal := range []Status{StatusApproved, StatusRejected, StatusDiscarded} {
		require.True(t, terminal.Terminal())
		for _, to := range allStatuses {
			require.Error(t, CheckTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	require.False(t, StatusDraft.Terminal())
}

func TestStatusValid(t *testing.T) {
	for _, status := range allStatuses {
		require.True(t, status.Valid())
	}
	require.False(t, Status("NEW").Valid())
	require.False(t, Status("").Valid())
}
