// Package matcher resolves a normalized provider event to the interview it
// belongs to.
package matcher

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// Strategy names reported with every match.
const (
	StrategyStrictToken       = "strict-token-match"
	StrategyFallbackHeuristic = "fallback-heuristic-match"
)

// Match is a resolved interview and the strategy that found it.
type Match struct {
	Interview *models.Interview
	Strategy  string
}

// Matcher resolves an event to an interview. A nil Match with a nil error
// means the event is unmatched.
type Matcher interface {
	Match(ctx context.Context, ev *normalize.Event) (*Match, error)
}

// StrictTokenMatcher looks the interview up by the token carried in the call
// metadata.
type StrictTokenMatcher struct {
	repo repository.InterviewRepo
}

func NewStrictTokenMatcher(repo repository.InterviewRepo) *StrictTokenMatcher {
	return &StrictTokenMatcher{repo: repo}
}

func (m *StrictTokenMatcher) Match(ctx context.Context, ev *normalize.Event) (*Match, error) {
	if ev == nil || ev.InterviewToken == "" {
		return nil, nil
	}
	iv, err := m.repo.GetInterviewByToken(ctx, ev.InterviewToken)
	if err != nil {
		return nil, fmt.Errorf("lookup interview by token: %w", err)
	}
	if iv == nil {
		return nil, nil
	}
	return &Match{Interview: iv, Strategy: StrategyStrictToken}, nil
}

// FallbackHeuristicMatcher picks the most recently updated in_progress
// interview for call-end events that carry no token. It cannot tell two
// concurrent interviews apart; it only refuses a candidate already bound to a
// different call.
type FallbackHeuristicMatcher struct {
	interviews repository.InterviewRepo
	results    repository.ResultRepo
	logger     *slog.Logger
}

func NewFallbackHeuristicMatcher(interviews repository.InterviewRepo, results repository.ResultRepo, logger *slog.Logger) *FallbackHeuristicMatcher {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &FallbackHeuristicMatcher{interviews: interviews, results: results, logger: logger}
}

func (m *FallbackHeuristicMatcher) Match(ctx context.Context, ev *normalize.Event) (*Match, error) {
	if ev == nil || ev.InterviewToken != "" || ev.Kind != normalize.KindCallEnd {
		return nil, nil
	}

	iv, candidates, err := m.interviews.MostRecentInProgress(ctx)
	if err != nil {
		return nil, fmt.Errorf("lookup in-progress interview: %w", err)
	}
	if iv == nil {
		return nil, nil
	}
	if candidates > 1 {
		m.logger.WarnContext(ctx, "ambiguous fallback match",
			"candidates", candidates, "interview_id", iv.ID, "call_id", ev.CallID)
	}

	if ev.CallID != "" {
		res, err := m.results.GetResultByInterview(ctx, iv.ID)
		if err != nil {
			return nil, fmt.Errorf("lookup result: %w", err)
		}
		if res != nil && res.CallID != nil && *res.CallID != ev.CallID {
			m.logger.WarnContext(ctx, "fallback candidate bound to another call",
				"interview_id", iv.ID, "call_id", ev.CallID, "stored_call_id", *res.CallID)
			return nil, nil
		}
	}

	return &Match{Interview: iv, Strategy: StrategyFallbackHeuristic}, nil
}

// Chain tries each matcher in order and returns the first match.
type Chain []Matcher

func (c Chain) Match(ctx context.Context, ev *normalize.Event) (*Match, error) {
	for _, m := range c {
		match, err := m.Match(ctx, ev)
		if err != nil {
			return nil, err
		}
		if match != nil {
			return match, nil
		}
	}
	return nil, nil
}

// New builds the matcher chain: strict token first, then the heuristic when
// allowFallback is set.
func New(interviews repository.InterviewRepo, results repository.ResultRepo, allowFallback bool, logger *slog.Logger) Matcher {
	chain := Chain{NewStrictTokenMatcher(interviews)}
	if allowFallback {
		chain = append(chain, NewFallbackHeuristicMatcher(interviews, results, logger))
	}
	return chain
}
