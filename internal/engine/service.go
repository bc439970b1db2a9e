// Package engine implements the quorum authorization state machine.
//
// Every transaction starts Pending and ends Executed or Cancelled, never
// both. Confirmation and cancellation counters advance independently as
// owners vote; whichever threshold is reached first, in call order, freezes
// the transaction in that terminal state.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"quorumgate/internal/events"
	"quorumgate/internal/executor"
	"quorumgate/internal/ledger"
	"quorumgate/internal/ledger/cache"
	"quorumgate/internal/owner"
	"quorumgate/internal/platform/metrics"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/platform/sentinel"
)

// TxRunner runs a function atomically against the durable store. The
// Postgres-backed runner opens a SQL transaction and carries it through
// context; the pass-through runner is used with the in-memory stores, which
// are mutated only after all checks and invocations succeed.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type passthroughTxRunner struct{}

func (passthroughTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Service is the authorization engine. A single mutex serializes every
// mutating operation, including nested auto-execution and governance
// dispatch, providing the global sequential-consistency model: an operation
// either fully commits its effects or fully reverts them, and no two
// operations interleave.
type Service struct {
	mu sync.Mutex

	owners    *owner.Registry
	store     ledger.Store
	invoker   executor.Invoker
	publisher events.Publisher
	logger    *slog.Logger

	cache   *cache.Cache
	metrics *metrics.Metrics
	runner  TxRunner
	tracer  trace.Tracer

	// pending collects notifications during a mutating operation and is
	// flushed only after the commit succeeds. Guarded by mu.
	pending []events.Event
}

// Option configures the Service.
type Option func(*Service)

// WithCache installs a transaction read cache.
func WithCache(c *cache.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithMetrics installs the Prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTxRunner installs an atomic persistence runner.
func WithTxRunner(r TxRunner) Option {
	return func(s *Service) { s.runner = r }
}

func NewService(
	owners *owner.Registry,
	store ledger.Store,
	invoker executor.Invoker,
	publisher events.Publisher,
	logger *slog.Logger,
	opts ...Option,
) *Service {
	s := &Service{
		owners:    owners,
		store:     store,
		invoker:   invoker,
		publisher: publisher,
		logger:    logger,
		runner:    passthroughTxRunner{},
		tracer:    otel.Tracer("quorumgate/engine"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit appends a new transaction to the ledger and returns its id.
func (s *Service) Submit(ctx context.Context, submitter, target string, value int64, payload json.RawMessage) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "engine.Submit")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, submitter); err != nil {
		return 0, err
	}

	tx := &ledger.Transaction{
		Target:    target,
		Value:     value,
		Payload:   payload,
		Submitter: submitter,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.Validate(); err != nil {
		return 0, err
	}

	var id int64
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.store.Append(ctx, tx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "append transaction")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.TransactionsSubmitted.Inc()
	}
	s.note(events.Event{
		Type:          events.TypeTransactionSubmitted,
		TransactionID: &id,
		Owner:         submitter,
		Target:        target,
	})
	s.flush(ctx)
	return id, nil
}

// Confirm records the owner's yes vote. When the vote brings the count to the
// quorum threshold and the transaction is still pending, execution is
// triggered immediately as part of the same operation; an execution failure
// aborts the whole confirm, vote included.
func (s *Service) Confirm(ctx context.Context, ownerID string, id int64) error {
	ctx, span := s.tracer.Start(ctx, "engine.Confirm")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		s.pending = s.pending[:0]
		tx, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		if err := requirePending(tx); err != nil {
			return err
		}
		if tx.HasConfirmed(ownerID) {
			return dErrors.New(dErrors.CodeAlreadyConfirmed,
				"owner %q already confirmed transaction %d", ownerID, id)
		}

		tx.RecordConfirmation(ownerID)
		s.note(events.Event{
			Type:          events.TypeTransactionConfirmed,
			TransactionID: &id,
			Owner:         ownerID,
		})

		threshold, err := s.owners.Threshold(ctx)
		if err != nil {
			return err
		}
		if tx.Confirmations >= threshold && !tx.Terminal() {
			if err := s.invokeAndMark(ctx, tx); err != nil {
				return err
			}
		}

		if err := s.store.Update(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist transaction %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ConfirmationsRecorded.Inc()
	}
	s.cache.Invalidate(ctx, id)
	s.flush(ctx)
	return nil
}

// RevokeConfirmation withdraws the owner's yes vote from a pending
// transaction.
func (s *Service) RevokeConfirmation(ctx context.Context, ownerID string, id int64) error {
	ctx, span := s.tracer.Start(ctx, "engine.RevokeConfirmation")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		s.pending = s.pending[:0]
		tx, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		if err := requirePending(tx); err != nil {
			return err
		}
		if !tx.HasConfirmed(ownerID) {
			return dErrors.New(dErrors.CodeConfirmationNotFound,
				"owner %q has no confirmation on transaction %d", ownerID, id)
		}

		tx.RevokeConfirmation(ownerID)
		s.note(events.Event{
			Type:          events.TypeConfirmationRevoked,
			TransactionID: &id,
			Owner:         ownerID,
		})

		if err := s.store.Update(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist transaction %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id)
	s.flush(ctx)
	return nil
}

// RequestCancellation records the owner's cancellation vote. Reaching the
// threshold marks the transaction Cancelled, which is as final as execution.
func (s *Service) RequestCancellation(ctx context.Context, ownerID string, id int64) error {
	ctx, span := s.tracer.Start(ctx, "engine.RequestCancellation")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		s.pending = s.pending[:0]
		tx, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		if err := requirePending(tx); err != nil {
			return err
		}
		if tx.HasRequestedCancellation(ownerID) {
			return dErrors.New(dErrors.CodeCancellationAlreadyRequested,
				"owner %q already requested cancellation of transaction %d", ownerID, id)
		}

		tx.RecordCancellation(ownerID)
		s.note(events.Event{
			Type:          events.TypeCancellationRequested,
			TransactionID: &id,
			Owner:         ownerID,
		})

		threshold, err := s.owners.Threshold(ctx)
		if err != nil {
			return err
		}
		if tx.Cancellations >= threshold && !tx.Executed {
			tx.Cancelled = true
			s.note(events.Event{
				Type:          events.TypeTransactionCancelled,
				TransactionID: &id,
			})
		}

		if err := s.store.Update(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist transaction %d", id)
		}
		if tx.Cancelled && s.metrics != nil {
			s.metrics.TransactionsCancelled.Inc()
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.CancellationsRecorded.Inc()
	}
	s.cache.Invalidate(ctx, id)
	s.flush(ctx)
	return nil
}

// RevokeCancellationRequest withdraws the owner's cancellation vote from a
// pending transaction.
func (s *Service) RevokeCancellationRequest(ctx context.Context, ownerID string, id int64) error {
	ctx, span := s.tracer.Start(ctx, "engine.RevokeCancellationRequest")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		s.pending = s.pending[:0]
		tx, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		if err := requirePending(tx); err != nil {
			return err
		}
		if !tx.HasRequestedCancellation(ownerID) {
			return dErrors.New(dErrors.CodeCancellationNotFound,
				"owner %q has no cancellation request on transaction %d", ownerID, id)
		}

		tx.RevokeCancellation(ownerID)
		s.note(events.Event{
			Type:          events.TypeCancellationRevoked,
			TransactionID: &id,
			Owner:         ownerID,
		})

		if err := s.store.Update(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist transaction %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id)
	s.flush(ctx)
	return nil
}

// Execute manually triggers execution of a transaction whose confirmation
// count already reached the threshold. The auto-trigger in Confirm makes this
// unnecessary in the common path; it exists for transactions that reached
// quorum without executing, such as after an earlier invocation failure.
func (s *Service) Execute(ctx context.Context, ownerID string, id int64) error {
	ctx, span := s.tracer.Start(ctx, "engine.Execute")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = s.pending[:0]

	if err := s.requireOwner(ctx, ownerID); err != nil {
		return err
	}

	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		s.pending = s.pending[:0]
		tx, err := s.getTx(ctx, id)
		if err != nil {
			return err
		}
		if err := requirePending(tx); err != nil {
			return err
		}
		threshold, err := s.owners.Threshold(ctx)
		if err != nil {
			return err
		}
		if tx.Confirmations < threshold {
			return dErrors.New(dErrors.CodeInsufficientConfirmations,
				"transaction %d has %d of %d required confirmations", id, tx.Confirmations, threshold)
		}

		if err := s.invokeAndMark(ctx, tx); err != nil {
			return err
		}
		if err := s.store.Update(ctx, tx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "persist transaction %d", id)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.cache.Invalidate(ctx, id)
	s.flush(ctx)
	return nil
}

// invokeAndMark performs the target invocation and, only on success, sets the
// executed flag. Callers persist afterwards, so a failed invocation aborts
// the enclosing operation with nothing written: the transaction stays
// Pending and remains eligible for a future attempt.
func (s *Service) invokeAndMark(ctx context.Context, tx *ledger.Transaction) error {
	action := executor.Action{Target: tx.Target, Value: tx.Value, Payload: tx.Payload}

	start := time.Now()
	var err error
	if action.Target == executor.SelfTarget {
		err = s.dispatchSelf(ctx, action)
	} else {
		err = s.invoker.Invoke(ctx, action)
	}
	if s.metrics != nil {
		s.metrics.ObserveExecution(time.Since(start), err)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "target invocation failed",
			"transaction_id", tx.ID,
			"target", tx.Target,
			"error", err,
		)
		return dErrors.Wrap(err, dErrors.CodeExecutionFailed,
			"execution of transaction %d against %s failed", tx.ID, tx.Target)
	}

	tx.Executed = true
	id := tx.ID
	s.note(events.Event{
		Type:          events.TypeTransactionExecuted,
		TransactionID: &id,
		Target:        tx.Target,
	})
	if s.metrics != nil {
		s.metrics.TransactionsExecuted.Inc()
	}
	return nil
}

// GetTransaction returns a transaction by id, serving repeat reads from the
// cache when one is configured.
func (s *Service) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	if tx, ok := s.cache.Get(ctx, id); ok {
		return tx, nil
	}
	tx, err := s.getTx(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, tx)
	return tx, nil
}

// TransactionCount returns the ledger length.
func (s *Service) TransactionCount(ctx context.Context) (int64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "count transactions")
	}
	return count, nil
}

// HasConfirmed reports whether the owner holds an active confirmation vote.
func (s *Service) HasConfirmed(ctx context.Context, id int64, ownerID string) (bool, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return false, err
	}
	return tx.HasConfirmed(ownerID), nil
}

// HasRequestedCancellation reports whether the owner holds an active
// cancellation vote.
func (s *Service) HasRequestedCancellation(ctx context.Context, id int64, ownerID string) (bool, error) {
	tx, err := s.GetTransaction(ctx, id)
	if err != nil {
		return false, err
	}
	return tx.HasRequestedCancellation(ownerID), nil
}

// Owners returns the owner set in insertion order.
func (s *Service) Owners(ctx context.Context) ([]string, error) {
	return s.owners.List(ctx)
}

// OwnerCount returns the owner set size.
func (s *Service) OwnerCount(ctx context.Context) (int, error) {
	return s.owners.Count(ctx)
}

// Threshold returns the current minimum confirmations.
func (s *Service) Threshold(ctx context.Context) (int, error) {
	return s.owners.Threshold(ctx)
}

func (s *Service) requireOwner(ctx context.Context, ownerID string) error {
	ok, err := s.owners.IsOwner(ctx, ownerID)
	if err != nil {
		return err
	}
	if !ok {
		return dErrors.New(dErrors.CodeNotAnOwner, "identity %q is not a registered owner", ownerID)
	}
	return nil
}

func (s *Service) getTx(ctx context.Context, id int64) (*ledger.Transaction, error) {
	tx, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeTransactionNotFound, "transaction %d does not exist", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "load transaction %d", id)
	}
	return tx, nil
}

func requirePending(tx *ledger.Transaction) error {
	if tx.Executed {
		return dErrors.New(dErrors.CodeAlreadyExecuted, "transaction %d already executed", tx.ID)
	}
	if tx.Cancelled {
		return dErrors.New(dErrors.CodeAlreadyCancelled, "transaction %d already cancelled", tx.ID)
	}
	return nil
}

// note queues a notification for emission after commit.
func (s *Service) note(event events.Event) {
	s.pending = append(s.pending, event)
}

// flush emits queued notifications. Called only after the operation
// committed, so observers never see events for rolled-back state.
func (s *Service) flush(ctx context.Context) {
	for _, event := range s.pending {
		s.publisher.Emit(ctx, event)
	}
	s.pending = s.pending[:0]
}
