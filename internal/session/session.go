package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/cleared-dev/picker/internal/filter"
	"github.com/cleared-dev/picker/internal/ledger"
	"github.com/cleared-dev/picker/internal/logger"
	"github.com/cleared-dev/picker/internal/model"
	"github.com/cleared-dev/picker/internal/reconcile"
	"github.com/cleared-dev/picker/internal/selection"
)

var (
	// ErrBusy is returned when a long-running operation is already in flight.
	ErrBusy = errors.New("another operation is in progress")
	// ErrNothingSelected is returned by SubmitSelected when no visible
	// transaction is selected.
	ErrNothingSelected = errors.New("no transactions selected")
)

// Options tunes a Session. Zero values pick the defaults.
type Options struct {
	DatePolicy  filter.DatePolicy
	EntryPolicy reconcile.Policy
	Notifier    Notifier
	Logger      *log.Logger
}

// Session owns every piece of state for one user session: the transaction
// store, the filter criteria, the filtered view and the selection. The view
// is always derived from the store and the last applied criteria.
type Session struct {
	svc         Services
	datePolicy  filter.DatePolicy
	entryPolicy reconcile.Policy
	notifier    Notifier
	log         *log.Logger

	mu         sync.Mutex
	store      *ledger.Store
	selection  *selection.Tracker
	pending    filter.Criteria
	applied    filter.Criteria
	hasApplied bool
	view       []model.Transaction
	state      State
}

// New creates an empty Session.
func New(svc Services, opts Options) *Session {
	s := &Session{
		svc:         svc,
		datePolicy:  opts.DatePolicy,
		entryPolicy: opts.EntryPolicy,
		notifier:    opts.Notifier,
		log:         opts.Logger,
		store:       ledger.NewStore(),
		selection:   selection.NewTracker(),
	}
	if s.datePolicy == "" {
		s.datePolicy = filter.SkipUnparseable
	}
	if s.entryPolicy == "" {
		s.entryPolicy = reconcile.Confirmed
	}
	if s.notifier == nil {
		s.notifier = discardNotifier{}
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

// Transactions returns the whole store in insertion order.
func (s *Session) Transactions() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.All()
}

// Transaction looks up a stored transaction by ID.
func (s *Session) Transaction(id int) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(id)
}

// View returns the current filtered view.
func (s *Session) View() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Transaction, len(s.view))
	copy(out, s.view)
	return out
}

// Selected returns every selected ID, visible or not, in ascending order.
func (s *Session) Selected() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.IDs()
}

// IsSelected reports whether id is selected.
func (s *Session) IsSelected(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.IsSelected(id)
}

// SelectedWithinView returns what SubmitSelected would send right now.
func (s *Session) SelectedWithinView() []model.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.SelectedWithin(s.view)
}

// Criteria returns the configured, not necessarily applied, filter criteria.
func (s *Session) Criteria() filter.Criteria {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCriteria(s.pending)
}

// AppliedCriteria returns the criteria behind the current view and whether
// any have been applied.
func (s *Session) AppliedCriteria() (filter.Criteria, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyCriteria(s.applied), s.hasApplied
}

// copyCriteria detaches c from the session's date bounds.
func copyCriteria(c filter.Criteria) filter.Criteria {
	return filter.NewCriteria(c.Start, c.End, c.Type)
}

// State returns the current operation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether a long-running operation is in flight.
func (s *Session) Busy() bool {
	return s.State() != Idle
}

// SetFilterCriteria replaces the configured criteria. The view is not
// touched until ApplyFilters.
func (s *Session) SetFilterCriteria(c filter.Criteria) error {
	if err := c.Validate(); err != nil {
		s.notify(LevelError, err.Error())
		return fmt.Errorf("setting filter: %w", err)
	}
	c = filter.NewCriteria(c.Start, c.End, c.Type)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = c
	return nil
}

// ApplyFilters derives a new view from the whole store and the configured
// criteria. On failure the previous view is kept.
func (s *Session) ApplyFilters() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := filter.Apply(s.store.All(), s.pending, s.datePolicy)
	if err != nil {
		if errors.Is(err, filter.ErrEmptyDataset) {
			s.notify(LevelError, "No transactions found")
		} else {
			s.notify(LevelError, err.Error())
		}
		s.log.Warn("filter not applied", "err", err)
		return fmt.Errorf("applying filters: %w", err)
	}

	s.view = res.Transactions
	s.applied = s.pending
	s.hasApplied = true
	s.warnSkipped(res.Skipped)
	s.log.Debug("filter applied", "matched", len(res.Transactions), "total", s.store.Len())
	return nil
}

// ToggleSelection flips the selection of id and reports whether it is now selected.
func (s *Session) ToggleSelection(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection.Toggle(id)
}

// SubmitManualEntry validates entry, records it with the backend and adds it
// to the store according to the entry policy. It returns the new ID.
//
// Under the Optimistic policy a failed backend call still leaves the row in
// the store; the returned ID is then valid alongside the error.
func (s *Session) SubmitManualEntry(ctx context.Context, entry reconcile.ManualEntry) (int, error) {
	txn, err := entry.Validate()
	if err != nil {
		var ve *reconcile.ValidationError
		if errors.As(err, &ve) && ve.Reason == "missing" {
			s.notify(LevelError, "Please fill in all fields")
		} else {
			s.notify(LevelError, err.Error())
		}
		return 0, fmt.Errorf("manual entry: %w", err)
	}
	if s.svc.Persister == nil {
		return 0, errors.New("manual entry: no persistence service configured")
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		s.notify(LevelError, ErrBusy.Error())
		return 0, ErrBusy
	}
	s.setStateLocked(Saving)
	txn.ID = s.store.Reserve()
	if s.entryPolicy == reconcile.Optimistic {
		s.addLocked(txn)
	}
	s.mu.Unlock()

	perr := s.svc.Persister.Persist(ctx, txn)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(Idle)

	if perr != nil {
		s.notify(LevelError, "Error adding transaction")
		s.log.Error("manual entry failed", "id", txn.ID, "policy", s.entryPolicy, "err", perr)
		if s.entryPolicy == reconcile.Optimistic {
			return txn.ID, fmt.Errorf("saving transaction %d: %w", txn.ID, perr)
		}
		return 0, fmt.Errorf("saving transaction: %w", perr)
	}

	if s.entryPolicy == reconcile.Confirmed {
		s.addLocked(txn)
	}
	s.notify(LevelSuccess, "Transaction added successfully")
	s.log.Info("manual entry saved", "id", txn.ID)
	return txn.ID, nil
}

// UploadFile sends a statement to the upload service and, on success,
// replaces the store with its transactions. The selection is cleared since
// the IDs it referred to are gone.
func (s *Session) UploadFile(ctx context.Context, name string, data []byte) error {
	if len(data) == 0 {
		err := &reconcile.ValidationError{Field: "file", Reason: "missing"}
		s.notify(LevelError, "Please choose a file to upload")
		return fmt.Errorf("upload: %w", err)
	}
	if s.svc.Uploader == nil {
		return errors.New("upload: no upload service configured")
	}
	if err := s.begin(Uploading); err != nil {
		return err
	}

	txns, err := s.svc.Uploader.Upload(ctx, name, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setStateLocked(Idle)

	if err != nil {
		s.notify(LevelError, "Error uploading file")
		s.log.Error("upload failed", "file", name, "err", err)
		return fmt.Errorf("uploading %s: %w", name, err)
	}

	norm, err := reconcile.NormalizeBatch(txns)
	if err != nil {
		s.notify(LevelError, "Uploaded statement was rejected: "+err.Error())
		s.log.Error("upload rejected", "file", name, "err", err)
		return fmt.Errorf("uploading %s: %w", name, err)
	}

	s.store.ReplaceAll(norm)
	s.selection.Clear()
	s.refreshLocked()
	s.notify(LevelSuccess, "File uploaded successfully")
	s.log.Info("upload succeeded", "file", name, "count", len(norm))
	return nil
}

// SubmitSelected sends the selected transactions of the current view and
// returns how many were sent. Selected IDs outside the view are not sent.
func (s *Session) SubmitSelected(ctx context.Context) (int, error) {
	if s.svc.Submitter == nil {
		return 0, errors.New("submit: no submission service configured")
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		s.notify(LevelError, ErrBusy.Error())
		return 0, ErrBusy
	}
	picked := s.selection.SelectedWithin(s.view)
	if len(picked) == 0 {
		s.mu.Unlock()
		s.notify(LevelInfo, "Please select at least one transaction")
		return 0, ErrNothingSelected
	}
	s.setStateLocked(Submitting)
	s.mu.Unlock()

	err := s.svc.Submitter.Submit(ctx, picked)

	s.mu.Lock()
	s.setStateLocked(Idle)
	s.mu.Unlock()

	if err != nil {
		s.notify(LevelError, "Error submitting transactions")
		s.log.Error("submit failed", "count", len(picked), "err", err)
		return 0, fmt.Errorf("submitting: %w", err)
	}
	s.notify(LevelSuccess, fmt.Sprintf("Submitted %d transaction(s)", len(picked)))
	s.log.Info("submit succeeded", "count", len(picked))
	return len(picked), nil
}

func (s *Session) begin(st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		s.notify(LevelError, ErrBusy.Error())
		return ErrBusy
	}
	s.setStateLocked(st)
	return nil
}

func (s *Session) setStateLocked(st State) {
	if s.state != st {
		s.log.Debug("state change", "from", s.state, "to", st)
	}
	s.state = st
}

// addLocked appends an already-identified transaction and re-derives the view.
func (s *Session) addLocked(txn model.Transaction) {
	if err := s.store.Add(txn); err != nil {
		// Reserved IDs are unique, so this is a programming error.
		panic(fmt.Sprintf("session: %v", err))
	}
	s.refreshLocked()
}

// refreshLocked re-derives the view after the store changed, honoring the
// last applied criteria. If they can no longer be applied the view falls
// back to the whole store.
func (s *Session) refreshLocked() {
	all := s.store.All()
	if len(all) == 0 {
		s.view = nil
		return
	}
	if !s.hasApplied {
		s.view = all
		return
	}

	res, err := filter.Apply(all, s.applied, s.datePolicy)
	if err != nil {
		s.view = all
		s.applied = filter.Criteria{}
		s.hasApplied = false
		s.notify(LevelWarn, "Filters were cleared: "+err.Error())
		s.log.Warn("filters cleared", "err", err)
		return
	}
	s.view = res.Transactions
	s.warnSkipped(res.Skipped)
}

func (s *Session) warnSkipped(ids []int) {
	if len(ids) == 0 {
		return
	}
	s.notify(LevelWarn, fmt.Sprintf("%d transaction(s) with unreadable dates were left out: %v", len(ids), ids))
}

func (s *Session) notify(level Level, msg string) {
	s.notifier.Notify(Notice{Level: level, Message: msg})
}
