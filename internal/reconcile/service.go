// Package reconcile ties the reconciliation engine together: webhook events
// are normalized, matched to an interview and upserted, and call-end events
// without an evaluation start a background poll of the provider.
package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gowebpki/jcs"
	"golang.org/x/sync/errgroup"

	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/evaluation"
	"github.com/garnizeh/interviewer/internal/jobs"
	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/internal/matcher"
	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// CallFetcher reads the current call details document from the provider.
type CallFetcher interface {
	GetCallDetails(ctx context.Context, callID string) (json.RawMessage, error)
}

// Deps are the collaborators of a Service. Validator may be nil.
type Deps struct {
	Interviews repository.InterviewRepo
	Results    repository.ResultRepo
	Store      repository.ResultStore
	Tasks      repository.PollTaskRepo
	Events     repository.WebhookEventRepo
	Fetcher    CallFetcher
	Normalizer *normalize.Normalizer
	Matcher    matcher.Matcher
	Validator  *evaluation.Loader
	Logger     *slog.Logger

	Interval    time.Duration
	MaxAttempts int
	// Concurrency bounds RetryUnresolved.
	Concurrency int
}

type Service struct {
	interviews repository.InterviewRepo
	results    repository.ResultRepo
	tasks      repository.PollTaskRepo
	events     repository.WebhookEventRepo
	fetcher    CallFetcher
	normalizer *normalize.Normalizer
	matcher    matcher.Matcher
	validator  *evaluation.Loader
	upserter   *Upserter
	runner     *jobs.Runner
	logger     *slog.Logger

	concurrency int
}

func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if d.Normalizer == nil {
		d.Normalizer = normalize.New(config.DefaultEvaluationNames, logger)
	}
	if d.Matcher == nil {
		d.Matcher = matcher.New(d.Interviews, d.Results, true, logger)
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 4
	}
	s := &Service{
		interviews:  d.Interviews,
		results:     d.Results,
		tasks:       d.Tasks,
		events:      d.Events,
		fetcher:     d.Fetcher,
		normalizer:  d.Normalizer,
		matcher:     d.Matcher,
		validator:   d.Validator,
		upserter:    NewUpserter(d.Store, logger),
		logger:      logger,
		concurrency: d.Concurrency,
	}
	s.runner = jobs.NewRunner(d.Tasks, s.poll, logger, d.Interval, d.MaxAttempts)
	return s
}

// Runner exposes the poll task runner.
func (s *Service) Runner() *jobs.Runner { return s.runner }

// Resume restarts poll tasks left in the polling state by a previous process.
func (s *Service) Resume(ctx context.Context) (int, error) { return s.runner.Resume(ctx) }

// Stop cancels running poll tasks and waits for them.
func (s *Service) Stop() { s.runner.Stop() }

// OutcomeDuplicate is reported for a delivery whose digest was already recorded.
const OutcomeDuplicate = "duplicate"

// WebhookOutcome reports what HandleWebhook did with one delivery.
type WebhookOutcome struct {
	Outcome     string                  `json:"outcome"`
	EventType   string                  `json:"event_type,omitempty"`
	Kind        normalize.Kind          `json:"kind,omitempty"`
	CallID      string                  `json:"call_id,omitempty"`
	InterviewID int64                   `json:"interview_id,omitempty"`
	Strategy    string                  `json:"strategy,omitempty"`
	Status      string                  `json:"status,omitempty"`
	PollStarted bool                    `json:"poll_started,omitempty"`
	Result      *models.InterviewResult `json:"-"`
}

// HandleWebhook processes one provider delivery. Malformed bodies return an
// error wrapping normalize.ErrMalformed. Unmatched and unrecognized events are
// not errors. The delivery is recorded only once processing succeeds, so a
// provider retry after a failure is processed again.
func (s *Service) HandleWebhook(ctx context.Context, body []byte) (*WebhookOutcome, error) {
	ev, err := s.normalizer.Normalize(body)
	if err != nil {
		return nil, err
	}
	out := &WebhookOutcome{EventType: ev.Type, Kind: ev.Kind, CallID: ev.CallID}
	if ev.CallID != "" {
		ctx = logging.AppendCtx(ctx, slog.String("call_id", ev.CallID))
	}

	digest := Digest(body)
	seen, err := s.events.WebhookEventSeen(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("check webhook event: %w", err)
	}
	if seen {
		s.logger.InfoContext(ctx, "duplicate webhook delivery", "event_type", ev.Type)
		out.Outcome = OutcomeDuplicate
		return out, nil
	}

	if ev.Kind == normalize.KindUnrecognized {
		s.logger.InfoContext(ctx, "ignoring webhook event", "event_type", ev.Type)
		out.Outcome = models.OutcomeUnrecognized
		return out, s.record(ctx, digest, body, out)
	}

	match, err := s.matcher.Match(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("match interview: %w", err)
	}
	if match == nil {
		s.logger.WarnContext(ctx, "no interview matches webhook event",
			"event_type", ev.Type, "has_token", ev.InterviewToken != "")
		out.Outcome = models.OutcomeUnmatched
		return out, s.record(ctx, digest, body, out)
	}
	out.InterviewID = match.Interview.ID
	out.Strategy = match.Strategy
	ctx = logging.AppendCtx(ctx, slog.Int64("interview_id", match.Interview.ID))
	s.logger.InfoContext(ctx, "webhook event matched", "event_type", ev.Type, "strategy", match.Strategy)

	applied, err := s.upserter.Apply(ctx, match.Interview.ID, ev)
	if err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	out.Status = applied.Status
	out.Result = applied.Result
	if ev.HasEvaluation() {
		s.validator.Check(ctx, ev.EvaluationName(), ev.Evaluation)
	}

	if ev.Kind == normalize.KindCallEnd && !applied.Result.HasEvaluation() {
		out.PollStarted = s.startPoll(ctx, match.Interview.ID, applied.Result)
	}

	out.Outcome = models.OutcomeProcessed
	return out, s.record(ctx, digest, body, out)
}

func (s *Service) startPoll(ctx context.Context, interviewID int64, res *models.InterviewResult) bool {
	if res.CallID == nil || *res.CallID == "" {
		s.logger.WarnContext(ctx, "call ended without evaluation or call id, needs manual intervention")
		return false
	}
	started, err := s.runner.Submit(ctx, *res.CallID, interviewID)
	if err != nil {
		s.logger.ErrorContext(ctx, "start poll task", logging.ErrKey, err)
		return false
	}
	if started {
		s.logger.InfoContext(ctx, "evaluation missing, polling provider", "call_id", *res.CallID)
	}
	return started
}

func (s *Service) record(ctx context.Context, digest string, body []byte, out *WebhookOutcome) error {
	e := &models.WebhookEvent{
		Digest:    digest,
		EventType: out.EventType,
		Outcome:   out.Outcome,
		Payload:   body,
	}
	if out.CallID != "" {
		e.CallID = &out.CallID
	}
	if out.InterviewID != 0 {
		e.InterviewID = &out.InterviewID
		e.Strategy = &out.Strategy
	}
	if err := s.events.RecordWebhookEvent(ctx, e); err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}
	return nil
}

// Digest returns the hex sha256 of the RFC 8785 canonical form of body, so
// re-serialized copies of the same delivery share a digest. Bodies that
// cannot be canonicalized are hashed as is.
func Digest(body []byte) string {
	canonical, err := jcs.Transform(body)
	if err != nil {
		canonical = body
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// FetchResults performs one provider fetch for the interview's stored call id
// and upserts the evaluation it carries.
func (s *Service) FetchResults(ctx context.Context, interviewID int64) (*models.InterviewResult, error) {
	iv, err := s.interviews.GetInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("get interview: %w", err)
	}
	if iv == nil {
		return nil, ErrInterviewNotFound
	}
	res, err := s.results.GetResultByInterview(ctx, interviewID)
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}
	if res == nil || res.CallID == nil || *res.CallID == "" {
		return nil, ErrNoCallID
	}
	return s.fetchOnce(ctx, interviewID, *res.CallID)
}

func (s *Service) fetchOnce(ctx context.Context, interviewID int64, callID string) (*models.InterviewResult, error) {
	ctx = logging.AppendCtx(ctx, slog.String("call_id", callID))
	ctx = logging.AppendCtx(ctx, slog.Int64("interview_id", interviewID))

	ev, err := s.fetchEvent(ctx, callID)
	if err != nil {
		return nil, err
	}
	if !ev.HasEvaluation() {
		return nil, ErrEvaluationNotReady
	}

	applied, err := s.upserter.ApplyCall(ctx, interviewID, ev)
	if err != nil {
		if errors.Is(err, ErrInterviewNotFound) || errors.Is(err, ErrCallSuperseded) {
			return nil, err
		}
		return nil, fmt.Errorf("upsert result: %w", err)
	}
	s.validator.Check(ctx, ev.EvaluationName(), ev.Evaluation)

	if err := s.tasks.MarkReconciled(ctx, callID); err != nil {
		s.logger.ErrorContext(ctx, "mark reconciliation resolved", logging.ErrKey, err)
	}
	s.logger.InfoContext(ctx, "results fetched from provider", "evaluation_source", ev.EvaluationSource)
	return applied.Result, nil
}

// fetchEvent reads and normalizes the provider call details for callID.
func (s *Service) fetchEvent(ctx context.Context, callID string) (*normalize.Event, error) {
	body, err := s.fetcher.GetCallDetails(ctx, callID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFetch, err)
	}
	ev, err := s.normalizer.FromCallDetails(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProviderFetch, err)
	}
	// the poll is keyed by the call id it was started for
	ev.CallID = callID
	return ev, nil
}

// ForceComplete stores an operator supplied evaluation and completes the interview.
func (s *Service) ForceComplete(ctx context.Context, interviewID int64, evaluation json.RawMessage) (*models.InterviewResult, error) {
	var doc map[string]any
	if err := json.Unmarshal(evaluation, &doc); err != nil || len(doc) == 0 {
		return nil, ErrInvalidEvaluation
	}
	applied, err := s.upserter.Complete(ctx, interviewID, evaluation)
	if err != nil {
		return nil, err
	}
	if res := applied.Result; res.CallID != nil {
		if err := s.tasks.MarkReconciled(ctx, *res.CallID); err != nil {
			s.logger.ErrorContext(ctx, "mark reconciliation resolved", logging.ErrKey, err)
		}
	}
	s.logger.InfoContext(ctx, "interview force completed", "interview_id", interviewID)
	return applied.Result, nil
}

// LinkCall binds a provider call id to the interview, replacing any stored one.
// Reconciliation of a replaced call id stops: its poll task is abandoned and
// its unresolved entry closed.
func (s *Service) LinkCall(ctx context.Context, interviewID int64, callID string) (*models.InterviewResult, error) {
	if callID == "" {
		return nil, ErrNoCallID
	}
	applied, err := s.upserter.LinkCall(ctx, interviewID, callID)
	if err != nil {
		return nil, err
	}
	if old := applied.ReplacedCallID; old != "" {
		if err := s.tasks.AbandonPollTask(ctx, old, "superseded by call "+callID); err != nil {
			s.logger.ErrorContext(ctx, "abandon superseded poll task", "call_id", old, logging.ErrKey, err)
		}
		s.runner.Cancel(old)
	}
	return applied.Result, nil
}

// RetryFailure is one unresolved reconciliation that could not be fetched.
type RetryFailure struct {
	CallID      string `json:"call_id"`
	InterviewID int64  `json:"interview_id"`
	Error       string `json:"error"`
}

// RetryReport summarises a RetryUnresolved run.
type RetryReport struct {
	Attempted int            `json:"attempted"`
	Resolved  int            `json:"resolved"`
	Failures  []RetryFailure `json:"failures,omitempty"`
}

// RetryUnresolved runs one manual fetch for every open unresolved
// reconciliation, at most Concurrency at a time. Individual failures are
// reported, not returned.
func (s *Service) RetryUnresolved(ctx context.Context) (*RetryReport, error) {
	entries, err := s.tasks.ListUnresolved(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list unresolved: %w", err)
	}

	report := &RetryReport{Attempted: len(entries)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			_, err := s.fetchOnce(gctx, e.InterviewID, e.CallID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, RetryFailure{CallID: e.CallID, InterviewID: e.InterviewID, Error: err.Error()})
				return nil
			}
			report.Resolved++
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}
	s.logger.InfoContext(ctx, "unresolved reconciliations retried",
		"attempted", report.Attempted, "resolved", report.Resolved, "failed", len(report.Failures))
	return report, nil
}

// IsClientError reports whether err is caused by the request rather than the
// system.
func IsClientError(err error) bool {
	return errors.Is(err, normalize.ErrMalformed) ||
		errors.Is(err, ErrNoCallID) ||
		errors.Is(err, ErrInvalidEvaluation)
}
