package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cleared-dev/picker/internal/filter"
	"github.com/cleared-dev/picker/internal/model"
	"github.com/cleared-dev/picker/internal/reconcile"
)

// fakeBackend implements all three services.
type fakeBackend struct {
	mu        sync.Mutex
	batch     []model.Transaction
	uploadErr error
	persisted []model.Transaction
	persistFn func(model.Transaction) error
	submitted [][]model.Transaction
	submitErr error
	block     chan struct{} // when non-nil, calls wait on it
	started   chan struct{} // signaled when a call begins
}

func (f *fakeBackend) wait() {
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeBackend) Upload(ctx context.Context, name string, data []byte) ([]model.Transaction, error) {
	f.wait()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	out := make([]model.Transaction, len(f.batch))
	copy(out, f.batch)
	return out, nil
}

func (f *fakeBackend) Persist(ctx context.Context, t model.Transaction) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.persisted = append(f.persisted, t)
	if f.persistFn != nil {
		return f.persistFn(t)
	}
	return nil
}

func (f *fakeBackend) Submit(ctx context.Context, txns []model.Transaction) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, txns)
	return f.submitErr
}

type recorder struct {
	mu      sync.Mutex
	notices []Notice
}

func (r *recorder) Notify(n Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) last() Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.notices) == 0 {
		return Notice{}
	}
	return r.notices[len(r.notices)-1]
}

func txn(id int, date string, cd model.CreditDebit, amount int64) model.Transaction {
	return model.Transaction{
		ID:          id,
		Date:        date,
		Description: "txn",
		CreditDebit: cd,
		Amount:      decimal.NewFromInt(amount),
	}
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func ids(txns []model.Transaction) []int {
	out := make([]int, 0, len(txns))
	for _, t := range txns {
		out = append(out, t.ID)
	}
	return out
}

func newTestSession(t *testing.T, fb *fakeBackend, opts Options) (*Session, *recorder) {
	t.Helper()
	rec := &recorder{}
	opts.Notifier = rec
	return New(Services{Uploader: fb, Persister: fb, Submitter: fb}, opts), rec
}

func loaded(t *testing.T, batch ...model.Transaction) (*Session, *fakeBackend, *recorder) {
	t.Helper()
	fb := &fakeBackend{batch: batch}
	s, rec := newTestSession(t, fb, Options{})
	require.NoError(t, s.UploadFile(context.Background(), "statement.pdf", []byte("data")))
	return s, fb, rec
}

func TestNew_Empty(t *testing.T) {
	s, _ := newTestSession(t, &fakeBackend{}, Options{})
	assert.Empty(t, s.Transactions())
	assert.Empty(t, s.View())
	assert.Empty(t, s.Selected())
	assert.Equal(t, Idle, s.State())
	assert.False(t, s.Busy())
	_, applied := s.AppliedCriteria()
	assert.False(t, applied)
}

func TestUpload_PopulatesStoreAndView(t *testing.T) {
	s, _, rec := loaded(t,
		txn(1, "01/01/2024", "CR", 100),
		txn(2, "15/02/2024", "Debit", 50),
	)
	assert.Equal(t, []int{1, 2}, ids(s.Transactions()))
	assert.Equal(t, []int{1, 2}, ids(s.View()))
	assert.Equal(t, model.Debit, s.Transactions()[1].CreditDebit, "flags are normalized")
	assert.Equal(t, LevelSuccess, rec.last().Level)
	assert.Equal(t, Idle, s.State())
}

// Scenario A.
func TestApplyFilters_StartDate(t *testing.T) {
	s, _, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2024, 1, 10)}))

	assert.Equal(t, []int{1, 2}, ids(s.View()), "view waits for ApplyFilters")
	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, []int{2}, ids(s.View()))

	applied, ok := s.AppliedCriteria()
	require.True(t, ok)
	assert.Equal(t, *day(2024, 1, 10), *applied.Start)
}

func TestApplyFilters_Idempotent(t *testing.T) {
	s, _, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
		txn(3, "20/02/2024", model.Credit, 5),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Type: model.Credit}))
	require.NoError(t, s.ApplyFilters())
	first := s.View()
	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, first, s.View())
}

func TestApplyFilters_EmptyStoreKeepsView(t *testing.T) {
	s, rec := newTestSession(t, &fakeBackend{}, Options{})
	err := s.ApplyFilters()
	require.Error(t, err)
	assert.ErrorIs(t, err, filter.ErrEmptyDataset)
	assert.Empty(t, s.View())
	assert.Equal(t, Notice{Level: LevelError, Message: "No transactions found"}, rec.last())
	_, applied := s.AppliedCriteria()
	assert.False(t, applied)
}

func TestApplyFilters_FailFastKeepsView(t *testing.T) {
	fb := &fakeBackend{batch: []model.Transaction{
		txn(1, "01/01/2024", model.Credit, 1),
		txn(2, "bad", model.Credit, 1),
	}}
	s, _ := newTestSession(t, fb, Options{DatePolicy: filter.FailFast})
	require.NoError(t, s.UploadFile(context.Background(), "a.csv", []byte("x")))
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2023, 1, 1)}))

	err := s.ApplyFilters()
	var dpe *filter.DateParseError
	require.True(t, errors.As(err, &dpe))
	assert.Equal(t, 2, dpe.ID)
	assert.Equal(t, []int{1, 2}, ids(s.View()))
}

func TestApplyFilters_SkipWarns(t *testing.T) {
	s, _, rec := loaded(t,
		txn(1, "01/01/2024", model.Credit, 1),
		txn(2, "bad", model.Credit, 1),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2023, 1, 1)}))
	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, []int{1}, ids(s.View()))
	assert.Equal(t, LevelWarn, rec.last().Level)
	assert.Contains(t, rec.last().Message, "unreadable dates")
}

func TestSetFilterCriteria_Invalid(t *testing.T) {
	s, rec := newTestSession(t, &fakeBackend{}, Options{})
	err := s.SetFilterCriteria(filter.Criteria{Start: day(2024, 3, 1), End: day(2024, 1, 1)})
	require.Error(t, err)
	assert.Equal(t, LevelError, rec.last().Level)
	assert.True(t, s.Criteria().IsZero())
}

func TestCriteria_ReturnsCopies(t *testing.T) {
	s, _, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2024, 1, 10)}))
	require.NoError(t, s.ApplyFilters())

	pending := s.Criteria()
	*pending.Start = *day(1999, 1, 1)
	applied, _ := s.AppliedCriteria()
	*applied.Start = *day(1999, 1, 1)

	assert.Equal(t, *day(2024, 1, 10), *s.Criteria().Start)
	got, _ := s.AppliedCriteria()
	assert.Equal(t, *day(2024, 1, 10), *got.Start)

	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, []int{2}, ids(s.View()))
}

// Scenario C.
func TestToggle_PairIsIdentity(t *testing.T) {
	s, _ := newTestSession(t, &fakeBackend{}, Options{})
	assert.True(t, s.ToggleSelection(1))
	assert.False(t, s.ToggleSelection(1))
	assert.Empty(t, s.Selected())
}

func TestSelection_PersistsAcrossFilters(t *testing.T) {
	s, _, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	s.ToggleSelection(1)

	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Type: model.Debit}))
	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, []int{2}, ids(s.View()))
	assert.True(t, s.IsSelected(1))
	assert.Empty(t, s.SelectedWithinView())

	require.NoError(t, s.SetFilterCriteria(filter.Criteria{}))
	require.NoError(t, s.ApplyFilters())
	assert.True(t, s.IsSelected(1))
	assert.Equal(t, []int{1}, ids(s.SelectedWithinView()))
}

// Scenario B.
func TestManualEntry_MissingDescription(t *testing.T) {
	s, fb, rec := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	before := s.Transactions()

	_, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date:        "02/01/2024",
		CreditDebit: "Credit",
		Amount:      "5",
	})
	var ve *reconcile.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "description", ve.Field)
	assert.Equal(t, before, s.Transactions())
	assert.Empty(t, fb.persisted)
	assert.Equal(t, "Please fill in all fields", rec.last().Message)
}

func TestManualEntry_Confirmed(t *testing.T) {
	s, fb, rec := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	id, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date:        "03/03/2024",
		Description: "Cash deposit",
		CreditDebit: "Credit",
		Amount:      "20.00",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, id)

	require.Len(t, fb.persisted, 1)
	assert.Equal(t, 3, fb.persisted[0].ID)
	assert.Equal(t, model.Credit, fb.persisted[0].CreditDebit)

	assert.Equal(t, []int{1, 2, 3}, ids(s.Transactions()))
	assert.Equal(t, []int{1, 2, 3}, ids(s.View()))
	assert.Equal(t, "Transaction added successfully", rec.last().Message)
	assert.Equal(t, Idle, s.State())
}

func TestManualEntry_ConfirmedFailureLeavesStore(t *testing.T) {
	s, fb, rec := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	fb.persistFn = func(model.Transaction) error { return errors.New("connection reset") }

	id, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "03/03/2024", Description: "x", CreditDebit: "DR", Amount: "1",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.Equal(t, 0, id)
	assert.Equal(t, []int{1}, ids(s.Transactions()))
	assert.Equal(t, []int{1}, ids(s.View()))
	assert.Equal(t, LevelError, rec.last().Level)
	assert.Equal(t, Idle, s.State())

	// The reserved ID is burnt, not reused.
	fb.persistFn = nil
	id, err = s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "04/03/2024", Description: "y", CreditDebit: "DR", Amount: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, 3, id)
}

func TestManualEntry_OptimisticKeepsRowOnFailure(t *testing.T) {
	fb := &fakeBackend{
		batch:     []model.Transaction{txn(1, "01/01/2024", model.Credit, 100)},
		persistFn: func(model.Transaction) error { return errors.New("503") },
	}
	s, _ := newTestSession(t, fb, Options{EntryPolicy: reconcile.Optimistic})
	require.NoError(t, s.UploadFile(context.Background(), "a.csv", []byte("x")))

	id, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "03/03/2024", Description: "x", CreditDebit: "Debit", Amount: "1",
	})
	require.Error(t, err)
	assert.Equal(t, 2, id)
	assert.Equal(t, []int{1, 2}, ids(s.Transactions()))
}

func TestManualEntry_OptimisticVisibleDuringCall(t *testing.T) {
	fb := &fakeBackend{block: make(chan struct{}), started: make(chan struct{})}
	s, _ := newTestSession(t, fb, Options{EntryPolicy: reconcile.Optimistic})

	done := make(chan error)
	go func() {
		_, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
			Date: "03/03/2024", Description: "x", CreditDebit: "CR", Amount: "1",
		})
		done <- err
	}()
	<-fb.started
	assert.Equal(t, []int{1}, ids(s.Transactions()))
	assert.Equal(t, Saving, s.State())
	close(fb.block)
	require.NoError(t, <-done)
}

func TestManualEntry_ReappliesFilters(t *testing.T) {
	s, _, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Type: model.Debit}))
	require.NoError(t, s.ApplyFilters())

	_, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "01/03/2024", Description: "credit row", CreditDebit: "Credit", Amount: "9",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2}, ids(s.View()), "credit row is filtered out")

	_, err = s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "02/03/2024", Description: "debit row", CreditDebit: "Debit", Amount: "9",
	})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 4}, ids(s.View()))
	assert.Len(t, s.Transactions(), 4)
}

func TestManualEntry_IntoEmptyStore(t *testing.T) {
	s, _ := newTestSession(t, &fakeBackend{}, Options{})
	id, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "01/03/2024", Description: "first", CreditDebit: "CR", Amount: "1",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id)
	assert.Equal(t, []int{1}, ids(s.View()))
}

// Scenario D.
func TestUpload_ReplacesStoreAndReappliesCriteria(t *testing.T) {
	s, fb, _ := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
	)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Type: model.Credit}))
	require.NoError(t, s.ApplyFilters())
	s.ToggleSelection(1)

	fb.batch = []model.Transaction{
		txn(1, "01/04/2024", model.Debit, 1),
		txn(2, "02/04/2024", model.Credit, 2),
		txn(3, "03/04/2024", model.Credit, 3),
		txn(4, "04/04/2024", model.Debit, 4),
		txn(5, "05/04/2024", model.Credit, 5),
	}
	require.NoError(t, s.UploadFile(context.Background(), "april.pdf", []byte("x")))

	assert.Len(t, s.Transactions(), 5)
	assert.Equal(t, []int{2, 3, 5}, ids(s.View()))
	assert.Empty(t, s.Selected(), "selection is cleared with the old store")

	require.NoError(t, s.ApplyFilters())
	assert.Equal(t, []int{2, 3, 5}, ids(s.View()))
	for _, got := range s.View() {
		assert.Contains(t, got.Date, "/04/2024")
	}
}

func TestUpload_FailureLeavesState(t *testing.T) {
	s, fb, rec := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	s.ToggleSelection(1)
	fb.uploadErr = errors.New("timeout")

	err := s.UploadFile(context.Background(), "b.pdf", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
	assert.Equal(t, []int{1}, ids(s.Transactions()))
	assert.Equal(t, []int{1}, s.Selected())
	assert.Equal(t, "Error uploading file", rec.last().Message)
	assert.Equal(t, Idle, s.State())
}

func TestUpload_RejectsUnknownFlag(t *testing.T) {
	s, fb, _ := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	fb.batch = []model.Transaction{txn(1, "01/01/2024", "??", 1)}

	err := s.UploadFile(context.Background(), "b.pdf", []byte("x"))
	var ve *reconcile.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, model.Credit, s.Transactions()[0].CreditDebit)
}

func TestUpload_EmptyFile(t *testing.T) {
	s, _ := newTestSession(t, &fakeBackend{}, Options{})
	err := s.UploadFile(context.Background(), "empty.pdf", nil)
	var ve *reconcile.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "file", ve.Field)
}

func TestUpload_FailFastFallsBackToAll(t *testing.T) {
	fb := &fakeBackend{batch: []model.Transaction{txn(1, "01/01/2024", model.Credit, 1)}}
	s, rec := newTestSession(t, fb, Options{DatePolicy: filter.FailFast})
	require.NoError(t, s.UploadFile(context.Background(), "a.csv", []byte("x")))
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2023, 1, 1)}))
	require.NoError(t, s.ApplyFilters())

	fb.batch = []model.Transaction{txn(1, "01/01/2024", model.Credit, 1), txn(2, "??", model.Credit, 1)}
	require.NoError(t, s.UploadFile(context.Background(), "b.csv", []byte("x")))

	assert.Equal(t, []int{1, 2}, ids(s.View()))
	_, applied := s.AppliedCriteria()
	assert.False(t, applied)

	var sawWarn bool
	for _, n := range rec.notices {
		if n.Level == LevelWarn {
			sawWarn = true
		}
	}
	assert.True(t, sawWarn)
}

func TestSubmitSelected_IntersectsView(t *testing.T) {
	s, fb, rec := loaded(t,
		txn(1, "01/01/2024", model.Credit, 100),
		txn(2, "15/02/2024", model.Debit, 50),
		txn(3, "20/02/2024", model.Debit, 5),
	)
	s.ToggleSelection(3)
	s.ToggleSelection(1)
	s.ToggleSelection(99)
	require.NoError(t, s.SetFilterCriteria(filter.Criteria{Start: day(2024, 2, 1)}))
	require.NoError(t, s.ApplyFilters())

	n, err := s.SubmitSelected(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, fb.submitted, 1)
	assert.Equal(t, []int{3}, ids(fb.submitted[0]))
	assert.Equal(t, LevelSuccess, rec.last().Level)

	// Submission does not change local state.
	assert.Equal(t, []int{1, 3, 99}, s.Selected())
	assert.Len(t, s.Transactions(), 3)
}

func TestSubmitSelected_Nothing(t *testing.T) {
	s, fb, rec := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	s.ToggleSelection(5)

	_, err := s.SubmitSelected(context.Background())
	assert.ErrorIs(t, err, ErrNothingSelected)
	assert.Empty(t, fb.submitted)
	assert.Equal(t, LevelInfo, rec.last().Level)
}

func TestSubmitSelected_Failure(t *testing.T) {
	s, fb, rec := loaded(t, txn(1, "01/01/2024", model.Credit, 100))
	s.ToggleSelection(1)
	fb.submitErr = errors.New("500")

	_, err := s.SubmitSelected(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Error submitting transactions", rec.last().Message)
	assert.Equal(t, []int{1}, s.Selected())
	assert.Equal(t, Idle, s.State())
}

func TestBusy_GatesLongOperations(t *testing.T) {
	fb := &fakeBackend{
		batch:   []model.Transaction{txn(1, "01/01/2024", model.Credit, 100)},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	s, rec := newTestSession(t, fb, Options{})

	done := make(chan error)
	go func() { done <- s.UploadFile(context.Background(), "a.pdf", []byte("x")) }()
	<-fb.started

	assert.True(t, s.Busy())
	assert.Equal(t, Uploading, s.State())

	assert.ErrorIs(t, s.UploadFile(context.Background(), "b.pdf", []byte("x")), ErrBusy)
	assert.Equal(t, Notice{Level: LevelError, Message: ErrBusy.Error()}, rec.last())
	rec.notices = nil

	_, err := s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "01/01/2024", Description: "x", CreditDebit: "CR", Amount: "1",
	})
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, Notice{Level: LevelError, Message: ErrBusy.Error()}, rec.last())

	// Synchronous mutations still run while the upload is in flight.
	s.ToggleSelection(7)
	assert.True(t, s.IsSelected(7))

	close(fb.block)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
	assert.Empty(t, s.Selected())
}

func TestBusy_SubmitWhileSubmitting(t *testing.T) {
	fb := &fakeBackend{batch: []model.Transaction{txn(1, "01/01/2024", model.Credit, 100)}}
	s, rec := newTestSession(t, fb, Options{})
	require.NoError(t, s.UploadFile(context.Background(), "a.pdf", []byte("x")))
	s.ToggleSelection(1)

	fb.block = make(chan struct{})
	fb.started = make(chan struct{})
	done := make(chan error)
	go func() {
		_, err := s.SubmitSelected(context.Background())
		done <- err
	}()
	<-fb.started
	assert.Equal(t, Submitting, s.State())

	_, err := s.SubmitSelected(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, Notice{Level: LevelError, Message: ErrBusy.Error()}, rec.last())

	close(fb.block)
	require.NoError(t, <-done)
}

func TestMissingServices(t *testing.T) {
	s := New(Services{}, Options{})
	assert.Error(t, s.UploadFile(context.Background(), "a", []byte("x")))
	_, err := s.SubmitSelected(context.Background())
	assert.Error(t, err)
	_, err = s.SubmitManualEntry(context.Background(), reconcile.ManualEntry{
		Date: "01/01/2024", Description: "x", CreditDebit: "CR", Amount: "1",
	})
	assert.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "uploading", Uploading.String())
	assert.Equal(t, "saving", Saving.String())
	assert.Equal(t, "submitting", Submitting.String())
	assert.Equal(t, "unknown", State(42).String())
}
