package sla

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-service/internal/domain"
)

func TestEvaluateBreachTruthTable(t *testing.T) {
	created := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	responseDeadline := created.Add(15 * time.Minute)
	resolutionDeadline := created.Add(240 * time.Minute)

	base := EvaluationInput{
		ResponseDeadline:   responseDeadline,
		ResolutionDeadline: resolutionDeadline,
		Status:             domain.TicketStatusOpen,
		ResolutionMinutes:  240,
	}

	t.Run("no breach before either deadline", func(t *testing.T) {
		in := base
		in.Now = created.Add(10 * time.Minute)
		eval := EvaluateBreach(in)
		require.False(t, eval.ResponseBreached)
		require.False(t, eval.ResolutionBreached)
		require.False(t, eval.IsBreached)
		require.Equal(t, domain.BreachStatusNone, eval.BreachStatus)
	})

	t.Run("response breached only", func(t *testing.T) {
		in := base
		in.Now = created.Add(time.Hour)
		eval := EvaluateBreach(in)
		require.True(t, eval.ResponseBreached)
		require.False(t, eval.ResolutionBreached)
		require.False(t, eval.IsBreached)
		require.Equal(t, domain.BreachStatusResponse, eval.BreachStatus)
		require.Equal(t, (3 * time.Hour).Milliseconds(), eval.TimeRemainingMS)
	})

	t.Run("both breached", func(t *testing.T) {
		in := base
		in.Now = resolutionDeadline.Add(time.Minute)
		eval := EvaluateBreach(in)
		require.True(t, eval.ResponseBreached)
		require.True(t, eval.ResolutionBreached)
		require.True(t, eval.IsBreached)
		require.Equal(t, domain.BreachStatusBoth, eval.BreachStatus)
		require.Negative(t, eval.TimeRemainingMS)
	})

	t.Run("resolution breached only", func(t *testing.T) {
		in := base
		in.ResponseDeadline = resolutionDeadline.Add(time.Hour)
		in.Now = resolutionDeadline.Add(time.Minute)
		eval := EvaluateBreach(in)
		require.False(t, eval.ResponseBreached)
		require.True(t, eval.ResolutionBreached)
		require.Equal(t, domain.BreachStatusResolution, eval.BreachStatus)
	})
}

func TestEvaluateBreachExactDeadlineIsNotBreach(t *testing.T) {
	deadline := time.Date(2025, time.January, 15, 14, 0, 0, 0, time.UTC)
	eval := EvaluateBreach(EvaluationInput{
		Now:                deadline,
		ResponseDeadline:   deadline,
		ResolutionDeadline: deadline,
		Status:             domain.TicketStatusOpen,
		ResolutionMinutes:  240,
	})
	require.False(t, eval.ResponseBreached)
	require.False(t, eval.ResolutionBreached)
	require.False(t, eval.IsBreached)
	require.Zero(t, eval.TimeRemainingMS)
}

func TestEvaluateBreachAtRiskThreshold(t *testing.T) {
	created := time.Date(2025, time.January, 15, 10, 0, 0, 0, time.UTC)
	resolutionDeadline := created.Add(240 * time.Minute)
	base := EvaluationInput{
		ResponseDeadline:   resolutionDeadline,
		ResolutionDeadline: resolutionDeadline,
		Status:             domain.TicketStatusOpen,
		ResolutionMinutes:  240,
	}

	t.Run("exactly at threshold", func(t *testing.T) {
		in := base
		in.Now = resolutionDeadline.Add(-48 * time.Minute) // 192 of 240 elapsed
		eval := EvaluateBreach(in)
		require.False(t, eval.IsBreached)
		require.True(t, eval.IsAtRisk)
	})

	t.Run("just below threshold", func(t *testing.T) {
		in := base
		in.Now = resolutionDeadline.Add(-49 * time.Minute) // 191 of 240 elapsed
		eval := EvaluateBreach(in)
		require.False(t, eval.IsAtRisk)
	})

	t.Run("breached is never also at risk", func(t *testing.T) {
		in := base
		in.Now = resolutionDeadline.Add(time.Minute)
		eval := EvaluateBreach(in)
		require.True(t, eval.IsBreached)
		require.False(t, eval.IsAtRisk)
	})

	t.Run("custom threshold", func(t *testing.T) {
		in := base
		in.AtRiskThreshold = 0.5
		in.Now = created.Add(120 * time.Minute)
		eval := EvaluateBreach(in)
		require.True(t, eval.IsAtRisk)
	})
}

func TestEvaluateBreachPausedAndTerminalOverride(t *testing.T) {
	deadline := time.Date(2025, time.January, 15, 14, 0, 0, 0, time.UTC)
	past := deadline.Add(2 * time.Hour)

	t.Run("paused ticket never breaches", func(t *testing.T) {
		pausedAt := deadline.Add(-time.Hour)
		eval := EvaluateBreach(EvaluationInput{
			Now:                past,
			ResponseDeadline:   deadline,
			ResolutionDeadline: deadline,
			PausedAt:           &pausedAt,
			Status:             domain.TicketStatusPendingCustomer,
			ResolutionMinutes:  240,
		})
		require.False(t, eval.IsBreached)
		require.False(t, eval.IsAtRisk)
		require.Equal(t, domain.BreachStatusNone, eval.BreachStatus)
	})

	t.Run("terminal ticket never breaches", func(t *testing.T) {
		for _, status := range []domain.TicketStatus{
			domain.TicketStatusResolved,
			domain.TicketStatusClosed,
			domain.TicketStatusCancelled,
		} {
			eval := EvaluateBreach(EvaluationInput{
				Now:                past,
				ResponseDeadline:   deadline,
				ResolutionDeadline: deadline,
				Status:             status,
				ResolutionMinutes:  240,
			})
			require.False(t, eval.IsBreached, string(status))
			require.Equal(t, domain.BreachStatusNone, eval.BreachStatus, string(status))
		}
	})
}

func TestEvaluateBreachIsPure(t *testing.T) {
	in := EvaluationInput{
		Now:                time.Date(2025, time.January, 15, 11, 0, 0, 0, time.UTC),
		ResponseDeadline:   time.Date(2025, time.January, 15, 10, 15, 0, 0, time.UTC),
		ResolutionDeadline: time.Date(2025, time.January, 15, 14, 0, 0, 0, time.UTC),
		Status:             domain.TicketStatusOpen,
		ResolutionMinutes:  240,
	}
	first := EvaluateBreach(in)
	second := EvaluateBreach(in)
	require.Equal(t, first, second)
}
