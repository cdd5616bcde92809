package stages

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mr1hm/go-relief-pipeline/internal/models"
	"github.com/mr1hm/go-relief-pipeline/internal/repository"
)

// Tiers are checked in order; the first tier with a matching keyword wins.
var (
	highKeywords   = []string{"fire", "trapped", "dead", "collapsed", "bleeding", "tsunami", "drowning", "flooded"}
	mediumKeywords = []string{"injury", "injured", "hurt", "help", "evacuate", "smoke"}
)

// Classify assigns a severity by case-insensitive substring match.
func Classify(text string) models.Severity {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, highKeywords):
		return models.SeverityHigh
	case containsAny(t, mediumKeywords):
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

type Triage struct {
	store  repository.IncidentRepository
	router Router
}

func NewTriage(store repository.IncidentRepository, router Router) *Triage {
	return &Triage{
		store:  store,
		router: router,
	}
}

func (s *Triage) Handle(ctx context.Context, env *models.Envelope) *models.Envelope {
	if env.Kind != models.KindReport {
		return nil
	}
	inc, ok := env.Payload.(*models.Incident)
	if !ok || inc == nil {
		return nil
	}

	if inc.Triaged() {
		// Replays overwrite the previous classification and timestamp.
		slog.Info("re-triaging incident", "incident_id", inc.ID, "previous_severity", inc.Severity)
	}

	ts := time.Now().UTC()
	triaged := inc.Clone()
	triaged.Severity = Classify(inc.Text)
	triaged.TriageTS = &ts
	if err := s.store.SaveIncident(ctx, triaged); err != nil {
		slog.Error("triage save failed", "incident_id", inc.ID, "error", err)
		return nil
	}
	// The caller's incident only reflects the triage once it is stored.
	inc.Severity, inc.TriageTS = triaged.Severity, triaged.TriageTS
	slog.Info("incident triaged", "incident_id", inc.ID, "severity", inc.Severity)

	out := models.NewEnvelope(NameTriage, NameCoordinator, models.KindTriageResult, inc)
	s.router.Route(ctx, out)
	return out
}
