package moderation

import (
	"context"
	"log/slog"
	"time"

	"murmur/internal/middleware"
	"murmur/internal/models"
	"murmur/internal/observability"
)

// Decision is the pipeline outcome for one body. Reasons are coarse stage
// markers for audit logs; they never name the matched lexicon term.
type Decision struct {
	Status  models.CommentStatus
	Reasons []string
}

// PipelineConfig carries the injected thresholds.
type PipelineConfig struct {
	RejectScore       float64
	FlagScore         float64
	ClassifierTimeout time.Duration
}

// Pipeline runs the staged moderation checks in fixed order: lexicon filter,
// automated classifier, trust-level override. Stages short-circuit on a
// blocking verdict. A classifier failure degrades to Pending, never to
// Approved.
type Pipeline struct {
	lexicon    *Lexicon
	classifier Classifier
	cfg        PipelineConfig
}

func NewPipeline(lexicon *Lexicon, classifier Classifier, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		lexicon:    lexicon,
		classifier: classifier,
		cfg:        cfg,
	}
}

// Evaluate classifies body and returns the status the comment must be
// persisted with. It runs synchronously; status gates visibility, so the
// comment must not be stored before this returns.
func (p *Pipeline) Evaluate(ctx context.Context, body string, trust models.TrustLevel) Decision {
	// Stage 1: sensitive-word filter. A hard term blocks immediately.
	match := p.lexicon.Match(body)
	if match == MatchHard {
		observability.ModerationVerdicts.WithLabelValues("lexicon", "rejected").Inc()
		return Decision{Status: models.StatusRejected, Reasons: []string{"lexicon:hard"}}
	}

	// Stage 2: automated classifier, bounded by the configured timeout.
	scoreCtx, cancel := context.WithTimeout(ctx, p.cfg.ClassifierTimeout)
	defer cancel()

	score, err := p.classifier.Score(scoreCtx, body)
	if err != nil {
		// Fail-safe: fall back to the stage-1 result capped at Pending.
		observability.ModerationVerdicts.WithLabelValues("classifier", "unavailable").Inc()
		middleware.Logger.WarnContext(ctx, "moderation classifier unavailable, holding comment for review",
			slog.String("error", err.Error()))
		return Decision{Status: models.StatusPending, Reasons: []string{"classifier:unavailable"}}
	}

	switch {
	case score >= p.cfg.RejectScore:
		observability.ModerationVerdicts.WithLabelValues("classifier", "rejected").Inc()
		return Decision{Status: models.StatusRejected, Reasons: []string{"classifier:reject"}}
	case score >= p.cfg.FlagScore:
		observability.ModerationVerdicts.WithLabelValues("classifier", "pending").Inc()
		return Decision{Status: models.StatusPending, Reasons: []string{"classifier:flag"}}
	}

	// Stage 3: trust-level override. A verified author with a clean
	// classifier verdict bypasses stage-1 soft flags.
	if match == MatchSoft {
		if trust == models.TrustVerified {
			observability.ModerationVerdicts.WithLabelValues("trust", "approved").Inc()
			return Decision{Status: models.StatusApproved, Reasons: []string{"lexicon:soft", "trust:override"}}
		}
		observability.ModerationVerdicts.WithLabelValues("lexicon", "pending").Inc()
		return Decision{Status: models.StatusPending, Reasons: []string{"lexicon:soft"}}
	}

	observability.ModerationVerdicts.WithLabelValues("classifier", "approved").Inc()
	return Decision{Status: models.StatusApproved}
}
