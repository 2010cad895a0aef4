package mock

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// Store is an in-memory implementation of every repository interface, for tests.
// It is safe for concurrent use. Code running inside WithTx must only use the tx
// it is handed, mirroring the single-connection sqlite store.
type Store struct {
	mu sync.Mutex

	nextID     int64
	interviews map[int64]models.Interview
	results    map[int64]models.InterviewResult // keyed by interview id
	operators  map[string]models.Operator
	tasks      map[string]models.PollTask // keyed by call id
	unresolved []models.UnresolvedReconciliation
	events     []models.WebhookEvent
	schemas    map[string]models.EvaluationSchema

	// TxErr, when set, is returned by WithTx before fn runs.
	TxErr error
	// Commits counts successful WithTx calls.
	Commits int
}

var (
	_ repository.InterviewRepo        = (*Store)(nil)
	_ repository.ResultRepo           = (*Store)(nil)
	_ repository.ResultStore          = (*Store)(nil)
	_ repository.OperatorRepo         = (*Store)(nil)
	_ repository.PollTaskRepo         = (*Store)(nil)
	_ repository.WebhookEventRepo     = (*Store)(nil)
	_ repository.EvaluationSchemaRepo = (*Store)(nil)
)

func NewStore() *Store {
	return &Store{
		interviews: make(map[int64]models.Interview),
		results:    make(map[int64]models.InterviewResult),
		operators:  make(map[string]models.Operator),
		tasks:      make(map[string]models.PollTask),
		schemas:    make(map[string]models.EvaluationSchema),
	}
}

func now() int64 {
	return time.Now().UTC().UnixMilli()
}

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// AddInterview stores iv as-is (status and timestamps included) and returns its id.
func (s *Store) AddInterview(iv models.Interview) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	iv.ID = s.id()
	if iv.Status == "" {
		iv.Status = models.StatusPending
	}
	if iv.Updated == 0 {
		iv.Updated = now()
	}
	if iv.Created == 0 {
		iv.Created = iv.Updated
	}
	s.interviews[iv.ID] = iv
	return iv.ID
}

// Result returns a copy of the stored result for an interview, or nil.
func (s *Store) Result(interviewID int64) *models.InterviewResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[interviewID]
	if !ok {
		return nil
	}
	return &r
}

// ResultCount returns how many result rows exist.
func (s *Store) ResultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *Store) CreateInterview(ctx context.Context, iv *models.Interview) (int64, error) {
	if iv == nil {
		return 0, fmt.Errorf("interview is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.interviews {
		if existing.Token == iv.Token {
			return 0, fmt.Errorf("UNIQUE constraint failed: interviews.token")
		}
	}
	if iv.Status == "" {
		iv.Status = models.StatusPending
	}
	ts := now()
	iv.ID = s.id()
	iv.Created, iv.Updated = ts, ts
	s.interviews[iv.ID] = *iv
	return iv.ID, nil
}

func (s *Store) GetInterview(ctx context.Context, id int64) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getInterview(id), nil
}

func (s *Store) getInterview(id int64) *models.Interview {
	iv, ok := s.interviews[id]
	if !ok {
		return nil
	}
	return &iv
}

func (s *Store) GetInterviewByToken(ctx context.Context, token string) (*models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, iv := range s.interviews {
		if iv.Token == token {
			return &iv, nil
		}
	}
	return nil, nil
}

func (s *Store) MostRecentInProgress(ctx context.Context) (*models.Interview, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  *models.Interview
		count int
	)
	for _, iv := range s.interviews {
		if iv.Status != models.StatusInProgress {
			continue
		}
		count++
		if best == nil || iv.Updated > best.Updated || (iv.Updated == best.Updated && iv.ID > best.ID) {
			cp := iv
			best = &cp
		}
	}
	return best, count, nil
}

func (s *Store) ListInterviews(ctx context.Context, status, role string) ([]models.Interview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Interview
	for _, iv := range s.interviews {
		if status != "" && iv.Status != status {
			continue
		}
		if role != "" && iv.Role != role {
			continue
		}
		out = append(out, iv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *Store) DeleteInterview(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.interviews, id)
	delete(s.results, id)
	return nil
}

func (s *Store) GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getResult(interviewID), nil
}

func (s *Store) getResult(interviewID int64) *models.InterviewResult {
	r, ok := s.results[interviewID]
	if !ok {
		return nil
	}
	return &r
}

// WithTx holds the store lock for the duration of fn and restores the previous
// interviews and results when fn fails.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.ResultTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.TxErr != nil {
		return s.TxErr
	}

	interviews := maps.Clone(s.interviews)
	results := maps.Clone(s.results)
	nextID := s.nextID

	if err := fn(&tx{s: s}); err != nil {
		s.interviews = interviews
		s.results = results
		s.nextID = nextID
		return err
	}
	s.Commits++
	return nil
}

// tx operates on the store while WithTx holds its lock.
type tx struct {
	s *Store
}

func (t *tx) GetInterview(ctx context.Context, id int64) (*models.Interview, error) {
	return t.s.getInterview(id), nil
}

func (t *tx) GetResultByInterview(ctx context.Context, interviewID int64) (*models.InterviewResult, error) {
	return t.s.getResult(interviewID), nil
}

func (t *tx) InsertResult(ctx context.Context, r *models.InterviewResult) (int64, error) {
	if r == nil {
		return 0, fmt.Errorf("result is nil")
	}
	if _, ok := t.s.results[r.InterviewID]; ok {
		return 0, fmt.Errorf("UNIQUE constraint failed: interview_results.interview_id")
	}
	ts := now()
	if r.Created == 0 {
		r.Created = ts
	}
	if r.Updated == 0 {
		r.Updated = ts
	}
	r.ID = t.s.id()
	t.s.results[r.InterviewID] = *r
	return r.ID, nil
}

func (t *tx) UpdateResult(ctx context.Context, r *models.InterviewResult) error {
	if r == nil {
		return fmt.Errorf("result is nil")
	}
	if r.Updated == 0 {
		r.Updated = now()
	}
	t.s.results[r.InterviewID] = *r
	return nil
}

func (t *tx) UpdateInterviewStatus(ctx context.Context, id int64, status string, updated int64) error {
	iv, ok := t.s.interviews[id]
	if !ok {
		return nil
	}
	if updated == 0 {
		updated = now()
	}
	iv.Status = status
	iv.Updated = updated
	t.s.interviews[id] = iv
	return nil
}

func (s *Store) CreateOperator(ctx context.Context, o *models.Operator) (int64, error) {
	if o == nil {
		return 0, fmt.Errorf("operator is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.operators[o.Email]; ok {
		return 0, fmt.Errorf("UNIQUE constraint failed: operators.email")
	}
	o.ID = s.id()
	o.Updated = now()
	s.operators[o.Email] = *o
	return o.ID, nil
}

func (s *Store) GetOperatorByEmail(ctx context.Context, email string) (*models.Operator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.operators[email]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *Store) CreatePollTask(ctx context.Context, t *models.PollTask) (int64, error) {
	if t == nil {
		return 0, fmt.Errorf("poll task is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.CallID]; ok {
		return 0, fmt.Errorf("UNIQUE constraint failed: poll_tasks.call_id")
	}
	if t.Status == "" {
		t.Status = models.PollStatusPolling
	}
	ts := now()
	t.ID = s.id()
	t.Created, t.Updated = ts, ts
	s.tasks[t.CallID] = *t
	return t.ID, nil
}

func (s *Store) GetPollTaskByCallID(ctx context.Context, callID string) (*models.PollTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[callID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (s *Store) UpdatePollTask(ctx context.Context, t *models.PollTask) error {
	if t == nil {
		return fmt.Errorf("poll task is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[t.CallID]; !ok || cur.Status != models.PollStatusPolling {
		return repository.ErrPollTaskFinished
	}
	t.Updated = now()
	s.tasks[t.CallID] = *t
	return nil
}

func (s *Store) ListPollTasks(ctx context.Context, status string) ([]models.PollTask, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.PollTask
	for _, t := range s.tasks {
		if status == "" || t.Status == status {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) MoveToUnresolved(ctx context.Context, t *models.PollTask) error {
	if t == nil {
		return fmt.Errorf("poll task is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.tasks[t.CallID]; !ok || cur.Status != models.PollStatusPolling {
		return repository.ErrPollTaskFinished
	}
	ts := now()
	t.Status = models.PollStatusExhausted
	t.NextTryAt = nil
	t.Updated = ts
	s.tasks[t.CallID] = *t
	s.unresolved = append(s.unresolved, models.UnresolvedReconciliation{
		ID: s.id(), PollTaskID: t.ID, CallID: t.CallID, InterviewID: t.InterviewID,
		Attempts: t.Attempts, LastError: t.LastError, FailedAt: ts,
	})
	return nil
}

func (s *Store) MarkReconciled(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	if t, ok := s.tasks[callID]; ok {
		t.Status = models.PollStatusResolved
		t.NextTryAt = nil
		t.Updated = ts
		s.tasks[callID] = t
	}
	for i := range s.unresolved {
		if s.unresolved[i].CallID == callID && s.unresolved[i].ResolvedAt == nil {
			s.unresolved[i].ResolvedAt = &ts
		}
	}
	return nil
}

func (s *Store) AbandonPollTask(ctx context.Context, callID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	if t, ok := s.tasks[callID]; ok && t.Status == models.PollStatusPolling {
		t.Status = models.PollStatusAbandoned
		t.NextTryAt = nil
		t.LastError = reason
		t.Updated = ts
		s.tasks[callID] = t
	}
	for i := range s.unresolved {
		if s.unresolved[i].CallID == callID && s.unresolved[i].ResolvedAt == nil {
			s.unresolved[i].ResolvedAt = &ts
		}
	}
	return nil
}

func (s *Store) ListUnresolved(ctx context.Context, includeResolved bool) ([]models.UnresolvedReconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.UnresolvedReconciliation
	for _, u := range s.unresolved {
		if includeResolved || u.ResolvedAt == nil {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) RecordWebhookEvent(ctx context.Context, e *models.WebhookEvent) error {
	if e == nil {
		return fmt.Errorf("webhook event is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.events {
		if existing.Digest == e.Digest {
			return nil
		}
	}
	if e.Received == 0 {
		e.Received = now()
	}
	e.ID = s.id()
	s.events = append(s.events, *e)
	return nil
}

func (s *Store) WebhookEventSeen(ctx context.Context, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.Digest == digest {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) ListWebhookEvents(ctx context.Context, outcome string, limit int) ([]models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = 50
	}
	var out []models.WebhookEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		if outcome == "" || s.events[i].Outcome == outcome {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

func (s *Store) UpsertEvaluationSchema(ctx context.Context, name, description, schemaJSON string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := now()
	sc, ok := s.schemas[name]
	if !ok {
		sc = models.EvaluationSchema{ID: s.id(), Name: name, Created: ts}
	}
	sc.Description = description
	sc.SchemaJSON = schemaJSON
	sc.Updated = ts
	s.schemas[name] = sc
	return sc.ID, nil
}

func (s *Store) GetEvaluationSchema(ctx context.Context, name string) (*models.EvaluationSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc, ok := s.schemas[name]
	if !ok {
		return nil, nil
	}
	return &sc, nil
}

func (s *Store) ListEvaluationSchemas(ctx context.Context) ([]models.EvaluationSchema, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.EvaluationSchema, 0, len(s.schemas))
	for _, sc := range s.schemas {
		out = append(out, sc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) DeleteEvaluationSchema(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.schemas, name)
	return nil
}
