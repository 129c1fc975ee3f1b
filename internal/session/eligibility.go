package session

import (
	"context"
	"log/slog"

	"github.com/rendis/fieldflow/internal/logging"
	"github.com/rendis/fieldflow/internal/survey"
	"github.com/rendis/fieldflow/pkg/schema"
)

// determineEligibility runs the survey-level eligibility script against the
// full answer set and derives the routing the caller must handle next.
// Absence of a script defaults to eligible; a failing script also defaults to
// eligible (fail open). The engine computes the outcome and exposes it; the
// routing itself (rejection screen, consent capture, sample collection) is
// external policy.
func (s *Session) determineEligibility(ctx context.Context) {
	def := s.graph.Definition()

	eligible := true
	if def.EligibilityScript != "" {
		result, err := s.eval.Evaluate(ctx, def.EligibilityScript, survey.BuildContext(s.graph, s.answers))
		if err != nil {
			logging.LogWith(ctx, s.logger).Warn("eligibility script failed, defaulting to eligible",
				slog.String("error", err.Error()))
		} else {
			eligible = Truthy(result)
		}
	}

	if eligible {
		s.eligibility = schema.EligibilityEligible
		switch {
		case def.RequireConsent:
			s.pendingRouting = schema.RoutingConsent
		case def.RequireSample:
			s.pendingRouting = schema.RoutingSampleCollection
		default:
			s.pendingRouting = schema.RoutingNone
		}
	} else {
		s.eligibility = schema.EligibilityIneligible
		s.pendingRouting = schema.RoutingRejection
	}

	s.publish(ctx, schema.EventEligibilityDetermined, map[string]any{
		"eligible":        eligible,
		"pending_routing": string(s.pendingRouting),
	})
}
