package services

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/leadpulse/backend/internal/clients/inference"
	"github.com/leadpulse/backend/internal/models"
	"github.com/leadpulse/backend/internal/repositories"
	"gopkg.in/mail.v2"
)

// fakeTaskStore is an in-memory task table with the same conditional update rules as the
// MySQL repository
type fakeTaskStore struct {
	mu       sync.Mutex
	tasks    map[int]*models.Task
	nextID   int
	bulkErr  error
	created  [][]models.Task
	claimHit func()
}

func newFakeTaskStore(tasks ...models.Task) *fakeTaskStore {
	s := &fakeTaskStore{tasks: make(map[int]*models.Task), nextID: 1}
	for _, t := range tasks {
		t := t
		if t.Status == "" {
			t.Status = models.TaskStatusPending
		}
		s.tasks[t.ID] = &t
		if t.ID >= s.nextID {
			s.nextID = t.ID + 1
		}
	}
	return s
}

func (s *fakeTaskStore) get(id int) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *fakeTaskStore) Create(ctx context.Context, task *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.ID = s.nextID
	task.Status = models.TaskStatusPending
	s.nextID++
	t := *task
	s.tasks[t.ID] = &t
	return nil
}

func (s *fakeTaskStore) BulkCreate(ctx context.Context, tasks []models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulkErr != nil {
		return s.bulkErr
	}
	s.created = append(s.created, tasks)
	for _, t := range tasks {
		t.ID = s.nextID
		t.Status = models.TaskStatusPending
		s.nextID++
		s.tasks[t.ID] = &t
	}
	return nil
}

func (s *fakeTaskStore) GetByID(ctx context.Context, id int) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, repositories.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *fakeTaskStore) GetAll(ctx context.Context, page, count int, filter models.TaskFilter) ([]models.TaskListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var items []models.TaskListItem
	for _, t := range s.tasks {
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		items = append(items, models.TaskListItem{ID: t.ID, TaskType: t.TaskType, Status: t.Status, Priority: t.Priority, BrandID: t.BrandID})
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (s *fakeTaskStore) GetClaimable(ctx context.Context, limit int, staleBefore time.Time) ([]models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		orphaned := t.Status == models.TaskStatusProcessing && t.BatchHandle == nil &&
			t.StartedAt != nil && t.StartedAt.Before(staleBefore)
		if t.Status == models.TaskStatusPending || orphaned {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTaskStore) ClaimPending(ctx context.Context, id int, now time.Time) (bool, error) {
	if s.claimHit != nil {
		s.claimHit()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskStatusPending {
		return false, nil
	}
	t.Status = models.TaskStatusProcessing
	started := now
	t.StartedAt = &started
	return true, nil
}

func (s *fakeTaskStore) ReclaimStale(ctx context.Context, id int, staleBefore, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskStatusProcessing || t.BatchHandle != nil || t.StartedAt == nil || !t.StartedAt.Before(staleBefore) {
		return false, nil
	}
	started := now
	t.StartedAt = &started
	return true, nil
}

func (s *fakeTaskStore) RenewClaim(ctx context.Context, id int, claimedAt, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != models.TaskStatusProcessing || t.BatchHandle != nil || t.StartedAt == nil || !t.StartedAt.Equal(claimedAt) {
		return false, nil
	}
	started := now
	t.StartedAt = &started
	return true, nil
}

func (s *fakeTaskStore) UpdateStatus(ctx context.Context, id int, from, to models.TaskStatus, errorMsg string, now time.Time) error {
	if err := models.ValidateTransition(from, to); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok || t.Status != from {
		return repositories.ErrTaskStatusConflict
	}
	t.Status = to
	t.ErrorMessage = errorMsg
	if to.IsTerminal() {
		done := now
		t.CompletedAt = &done
	}
	return nil
}

func (s *fakeTaskStore) AttachBatch(ctx context.Context, ids []int, handle string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		t, ok := s.tasks[id]
		if ok && t.Status == models.TaskStatusProcessing && t.BatchHandle == nil {
			h := handle
			t.BatchHandle = &h
			n++
		}
	}
	return n, nil
}

func (s *fakeTaskStore) FinishMany(ctx context.Context, ids []int, to models.TaskStatus, errorMsg string, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		t, ok := s.tasks[id]
		if ok && t.Status == models.TaskStatusProcessing {
			t.Status = to
			t.ErrorMessage = errorMsg
			done := now
			t.CompletedAt = &done
			n++
		}
	}
	return n, nil
}

// fakeBatchStore is an in-memory batches table
type fakeBatchStore struct {
	mu        sync.Mutex
	batches   map[int]*models.Batch
	nextID    int
	createErr error
}

func newFakeBatchStore(batches ...models.Batch) *fakeBatchStore {
	s := &fakeBatchStore{batches: make(map[int]*models.Batch), nextID: 1}
	for _, b := range batches {
		b := b
		if b.Status == "" {
			b.Status = models.BatchStatusProcessing
		}
		s.batches[b.ID] = &b
		if b.ID >= s.nextID {
			s.nextID = b.ID + 1
		}
	}
	return s
}

func (s *fakeBatchStore) Create(ctx context.Context, batch *models.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	batch.ID = s.nextID
	batch.Status = models.BatchStatusProcessing
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = time.Now()
	}
	s.nextID++
	b := *batch
	s.batches[b.ID] = &b
	return nil
}

func (s *fakeBatchStore) GetProcessing(ctx context.Context) ([]models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Batch
	for _, b := range s.batches {
		if b.Status == models.BatchStatusProcessing {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeBatchStore) MarkCompleted(ctx context.Context, id int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok || b.Status != models.BatchStatusProcessing {
		return false, nil
	}
	b.Status = models.BatchStatusCompleted
	done := now
	b.CompletedAt = &done
	return true, nil
}

func (s *fakeBatchStore) GetByID(ctx context.Context, id int) (*models.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return nil, repositories.ErrBatchNotFound
	}
	cp := *b
	return &cp, nil
}

func (s *fakeBatchStore) GetAll(ctx context.Context, page, count int, status models.BatchStatus) ([]models.BatchListItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BatchListItem
	for _, b := range s.batches {
		if status != "" && b.Status != status {
			continue
		}
		out = append(out, models.BatchListItem{ID: b.ID, BatchHandle: b.BatchHandle, Status: b.Status, BrandID: b.BrandID, TaskCount: len(b.TaskIDs)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// fakeLeadStore is an in-memory leads table
type fakeLeadStore struct {
	mu        sync.Mutex
	leads     map[int]*models.Lead
	nextID    int
	bulkErr   error
	updates   int
	orphans   []models.UnprocessedLead
	updateErr error
}

func newFakeLeadStore(leads ...models.Lead) *fakeLeadStore {
	s := &fakeLeadStore{leads: make(map[int]*models.Lead), nextID: 1}
	for _, l := range leads {
		l := l
		s.leads[l.ID] = &l
		if l.ID >= s.nextID {
			s.nextID = l.ID + 1
		}
	}
	return s
}

func (s *fakeLeadStore) lead(id int) models.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.leads[id]
}

func (s *fakeLeadStore) BulkCreate(ctx context.Context, leads []models.Lead) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bulkErr != nil {
		return 0, 0, s.bulkErr
	}
	first := s.nextID
	for _, l := range leads {
		l.ID = s.nextID
		s.nextID++
		s.leads[l.ID] = &l
	}
	return first, len(leads), nil
}

func (s *fakeLeadStore) GetIDsByEmails(ctx context.Context, brandID int, emails []string, minID, maxID int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int)
	for _, email := range emails {
		for id, l := range s.leads {
			if l.BrandID != brandID || id < minID || id >= maxID || strings.ToLower(l.LeadEmail) != strings.ToLower(email) {
				continue
			}
			if cur, ok := out[strings.ToLower(email)]; !ok || id < cur {
				out[strings.ToLower(email)] = id
			}
		}
	}
	return out, nil
}

func (s *fakeLeadStore) GetByID(ctx context.Context, id int) (*models.Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[id]
	if !ok {
		return nil, repositories.ErrLeadNotFound
	}
	cp := *l
	return &cp, nil
}

func (s *fakeLeadStore) UpdateConversation(ctx context.Context, leadID int, raw json.RawMessage, parsed models.ConversationSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return repositories.ErrLeadNotFound
	}
	if raw != nil {
		l.RawConversation = raw
	}
	p := parsed
	l.ParsedConversation = &p
	return nil
}

func (s *fakeLeadStore) UpdateIntentScore(ctx context.Context, leadID int, score *int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return false, s.updateErr
	}
	l, ok := s.leads[leadID]
	if !ok || l.Processed {
		return false, nil
	}
	s.updates++
	l.IntentScore = score
	l.Processed = true
	return true, nil
}

func (s *fakeLeadStore) MarkProcessed(ctx context.Context, ids []int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, id := range ids {
		if l, ok := s.leads[id]; ok && !l.Processed {
			l.Processed = true
			s.updates++
			n++
		}
	}
	return n, nil
}

func (s *fakeLeadStore) GetUnprocessedWithoutTask(ctx context.Context, olderThan time.Time, limit int) ([]models.UnprocessedLead, error) {
	return s.orphans, nil
}

// fakeBrandStore is an in-memory brands table
type fakeBrandStore struct {
	mu          sync.Mutex
	usage       map[int]*models.BrandUsage
	resets      int
	released    int
	rolloverErr error
}

func newFakeBrandStore(usages ...models.BrandUsage) *fakeBrandStore {
	s := &fakeBrandStore{usage: make(map[int]*models.BrandUsage)}
	for _, u := range usages {
		u := u
		s.usage[u.BrandID] = &u
	}
	return s
}

func (s *fakeBrandStore) used(brandID int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usage[brandID].LeadsUsedThisMonth
}

func (s *fakeBrandStore) GetUsage(ctx context.Context, brandID int) (*models.BrandUsage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[brandID]
	if !ok {
		return nil, repositories.ErrBrandNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeBrandStore) ReserveLeads(ctx context.Context, brandID int, decide func(models.BrandUsage) int) (*models.BrandUsage, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[brandID]
	if !ok {
		return nil, 0, repositories.ErrBrandNotFound
	}
	before := *u
	reserved := decide(before)
	if reserved > 0 {
		u.LeadsUsedThisMonth += reserved
	}
	return &before, reserved, nil
}

func (s *fakeBrandStore) ReleaseLeads(ctx context.Context, brandID, count int, periodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[brandID]
	if !ok || !u.UsagePeriodStart.Equal(periodStart) {
		return false, nil
	}
	u.LeadsUsedThisMonth = max(0, u.LeadsUsedThisMonth-count)
	s.released += count
	return true, nil
}

func (s *fakeBrandStore) GetDueForRollover(ctx context.Context, periodStart time.Time) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rolloverErr != nil {
		return nil, s.rolloverErr
	}
	var ids []int
	for id, u := range s.usage {
		if u.UsagePeriodStart.Before(periodStart) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

func (s *fakeBrandStore) ResetMonthlyUsage(ctx context.Context, brandID int, periodStart, newPeriodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.usage[brandID]
	if !ok || !u.UsagePeriodStart.Equal(periodStart) {
		return false, nil
	}
	u.LeadsUsedThisMonth = 0
	u.UsagePeriodStart = newPeriodStart
	s.resets++
	return true, nil
}

// fakeInferenceClient serves canned batch statuses and results
type fakeInferenceClient struct {
	mu        sync.Mutex
	createErr error
	statusErr error
	status    map[string]string
	results   map[string][]inference.Result
	requests  [][]inference.Request
	nextID    int
}

func newFakeInferenceClient() *fakeInferenceClient {
	return &fakeInferenceClient{status: make(map[string]string), results: make(map[string][]inference.Result)}
}

func (c *fakeInferenceClient) CreateBatch(ctx context.Context, requests []inference.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.createErr != nil {
		return "", c.createErr
	}
	c.nextID++
	c.requests = append(c.requests, requests)
	handle := "msgbatch_" + string(rune('a'+c.nextID-1))
	c.status[handle] = inference.StatusInProgress
	return handle, nil
}

func (c *fakeInferenceClient) GetBatchStatus(ctx context.Context, handle string) (*inference.BatchStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.statusErr != nil {
		return nil, c.statusErr
	}
	return &inference.BatchStatus{ID: handle, ProcessingStatus: c.status[handle]}, nil
}

func (c *fakeInferenceClient) GetResults(ctx context.Context, handle string) ([]inference.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results[handle], nil
}

// fakeFetcher returns canned message histories keyed by upstream lead id
type fakeFetcher struct {
	mu      sync.Mutex
	history map[string][]models.RawMessage
	err     error
	calls   int
	apiKeys []string
}

func (f *fakeFetcher) GetMessageHistory(ctx context.Context, apiKey, campaignID, leadID string) ([]models.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.apiKeys = append(f.apiKeys, apiKey)
	if f.err != nil {
		return nil, f.err
	}
	return f.history[leadID], nil
}

// fakeAccountRepo maps account ids to settings
type fakeAccountRepo struct {
	settings map[string]models.AccountSettings
}

func (r *fakeAccountRepo) GetByAccountID(ctx context.Context, accountID string) (*models.AccountSettings, error) {
	s, ok := r.settings[accountID]
	if !ok {
		return nil, repositories.ErrAccountNotFound
	}
	return &s, nil
}

func (r *fakeAccountRepo) GetByBrandID(ctx context.Context, brandID int) (*models.AccountSettings, error) {
	for _, s := range r.settings {
		if s.BrandID == brandID {
			cp := s
			return &cp, nil
		}
	}
	return nil, repositories.ErrAccountNotFound
}

// fakeMailSender records sent messages
type fakeMailSender struct {
	mu   sync.Mutex
	sent int
	err  error
}

func (m *fakeMailSender) DialAndSend(msgs ...*mail.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent += len(msgs)
	return nil
}

func intPtr(v int) *int { return &v }

func replyEvent(accountID, email string) models.BufferedEvent {
	return models.BufferedEvent{
		AccountID: accountID,
		Event: models.LeadEvent{
			LeadEmail: email,
			Messages: []models.RawMessage{
				{Type: "SENT", Time: "2024-05-01T10:00:00Z", Body: "Hi there"},
				{Type: "REPLY", Time: "2024-05-02T10:00:00Z", Body: "<p>Sounds <b>great</b></p>"},
			},
		},
	}
}
