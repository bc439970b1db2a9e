package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"quorumgate/internal/engine"
	"quorumgate/internal/engine/mocks"
	"quorumgate/internal/events"
	"quorumgate/internal/executor"
	"quorumgate/internal/ledger"
	"quorumgate/internal/owner"
	dErrors "quorumgate/pkg/domain-errors"
)

const (
	ownerAlice = "alice"
	ownerBob   = "bob"
	ownerCarol = "carol"
	ownerDave  = "dave"

	targetURL = "https://settlement.internal/hooks/payout"
)

// capturePublisher records emitted notifications in order.
type capturePublisher struct {
	events []events.Event
}

func (p *capturePublisher) Emit(_ context.Context, event events.Event) {
	p.events = append(p.events, event)
}

func (p *capturePublisher) types() []events.Type {
	out := make([]events.Type, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type ServiceSuite struct {
	suite.Suite

	ctx       context.Context
	ctrl      *gomock.Controller
	invoker   *mocks.MockInvoker
	publisher *capturePublisher
	store     ledger.Store
	svc       *engine.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

// SetupTest builds a fresh engine with three owners and a two-vote quorum.
func (s *ServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.invoker = mocks.NewMockInvoker(s.ctrl)
	s.publisher = &capturePublisher{}
	s.store = ledger.NewInMemoryStore()

	registry := owner.NewRegistry(owner.NewInMemoryStore())
	s.Require().NoError(registry.Bootstrap(s.ctx, []string{ownerAlice, ownerBob, ownerCarol}, 2))

	s.svc = engine.NewService(
		registry,
		s.store,
		s.invoker,
		s.publisher,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "want code %s, got %v", code, err)
}

func (s *ServiceSuite) submit(submitter string) int64 {
	id, err := s.svc.Submit(s.ctx, submitter, targetURL, 250, json.RawMessage(`{"amount":250}`))
	s.Require().NoError(err)
	return id
}

// --- submission ---

func (s *ServiceSuite) TestSubmitAssignsDenseIDs() {
	s.Require().Equal(int64(0), s.submit(ownerAlice))
	s.Require().Equal(int64(1), s.submit(ownerBob))
	s.Require().Equal(int64(2), s.submit(ownerAlice))

	count, err := s.svc.TransactionCount(s.ctx)
	s.Require().NoError(err)
	s.Require().Equal(int64(3), count)
}

func (s *ServiceSuite) TestSubmitRecordsSubmitterWithoutImplicitVote() {
	id := s.submit(ownerAlice)

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(ownerAlice, tx.Submitter)
	s.Require().Zero(tx.Confirmations)
	s.Require().False(tx.HasConfirmed(ownerAlice))
	s.Require().Equal([]events.Type{events.TypeTransactionSubmitted}, s.publisher.types())
}

func (s *ServiceSuite) TestSubmitRejectsNonOwner() {
	_, err := s.svc.Submit(s.ctx, "mallory", targetURL, 0, nil)
	s.requireCode(err, dErrors.CodeNotAnOwner)
	s.Require().Empty(s.publisher.events)
}

func (s *ServiceSuite) TestSubmitRejectsEmptyTarget() {
	_, err := s.svc.Submit(s.ctx, ownerAlice, "", 0, nil)
	s.requireCode(err, dErrors.CodeZeroIdentity)
}

func (s *ServiceSuite) TestSubmitRejectsNegativeValue() {
	_, err := s.svc.Submit(s.ctx, ownerAlice, targetURL, -1, nil)
	s.requireCode(err, dErrors.CodeBadRequest)
}

// --- confirmation and execution ---

// Two owners confirm a payout against a three-owner, two-vote quorum. The
// second confirmation must trigger exactly one invocation and freeze the
// entry as executed.
func (s *ServiceSuite) TestQuorumReachedExecutesExactlyOnce() {
	id := s.submit(ownerAlice)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(1, tx.Confirmations)
	s.Require().False(tx.Executed)

	s.invoker.EXPECT().
		Invoke(gomock.Any(), executor.Action{Target: targetURL, Value: 250, Payload: json.RawMessage(`{"amount":250}`)}).
		Return(nil).
		Times(1)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))

	tx, err = s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(tx.Executed)
	s.Require().False(tx.Cancelled)
	s.Require().Equal(2, tx.Confirmations)
}

func (s *ServiceSuite) TestConfirmRejectsDoubleVote() {
	id := s.submit(ownerAlice)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))

	err := s.svc.Confirm(s.ctx, ownerAlice, id)
	s.requireCode(err, dErrors.CodeAlreadyConfirmed)

	tx, getErr := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(getErr)
	s.Require().Equal(1, tx.Confirmations)
}

func (s *ServiceSuite) TestConfirmRejectsNonOwnerAndUnknownTransaction() {
	id := s.submit(ownerAlice)

	s.requireCode(s.svc.Confirm(s.ctx, "mallory", id), dErrors.CodeNotAnOwner)
	s.requireCode(s.svc.Confirm(s.ctx, ownerAlice, 99), dErrors.CodeTransactionNotFound)
}

func (s *ServiceSuite) TestConfirmRejectedOnExecutedTransaction() {
	id := s.submit(ownerAlice)
	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))

	s.requireCode(s.svc.Confirm(s.ctx, ownerCarol, id), dErrors.CodeAlreadyExecuted)
	s.requireCode(s.svc.RevokeConfirmation(s.ctx, ownerAlice, id), dErrors.CodeAlreadyExecuted)
	s.requireCode(s.svc.RequestCancellation(s.ctx, ownerCarol, id), dErrors.CodeAlreadyExecuted)
}

// A failed target invocation aborts the whole confirmation: the vote is not
// kept, nothing is persisted, no notification leaves the engine. The entry
// stays pending and the same owner can try again.
func (s *ServiceSuite) TestInvocationFailureRollsBackConfirmation() {
	id := s.submit(ownerAlice)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.publisher.events = nil

	s.invoker.EXPECT().
		Invoke(gomock.Any(), gomock.Any()).
		Return(errors.New("target returned status 503"))

	err := s.svc.Confirm(s.ctx, ownerBob, id)
	s.requireCode(err, dErrors.CodeExecutionFailed)
	s.Require().Empty(s.publisher.events)

	tx, getErr := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(getErr)
	s.Require().False(tx.Executed)
	s.Require().Equal(1, tx.Confirmations)
	s.Require().False(tx.HasConfirmed(ownerBob))

	// Retry once the target recovered.
	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))

	tx, getErr = s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(getErr)
	s.Require().True(tx.Executed)
}

func (s *ServiceSuite) TestRevokeConfirmationRequiresExistingVote() {
	id := s.submit(ownerAlice)

	s.requireCode(s.svc.RevokeConfirmation(s.ctx, ownerBob, id), dErrors.CodeConfirmationNotFound)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))
	s.Require().NoError(s.svc.RevokeConfirmation(s.ctx, ownerBob, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Zero(tx.Confirmations)
	s.Require().False(tx.HasConfirmed(ownerBob))

	// The slate is clean: the same owner can vote again.
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))
}

func (s *ServiceSuite) TestExecuteRequiresQuorum() {
	id := s.submit(ownerAlice)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))

	err := s.svc.Execute(s.ctx, ownerBob, id)
	s.requireCode(err, dErrors.CodeInsufficientConfirmations)
}

// Execute covers entries that reached quorum without executing, which happens
// when the invocation failed at confirmation time in a deployment persisting
// votes independently, or after the threshold was lowered under the entry.
func (s *ServiceSuite) TestExecuteRunsTransactionAtQuorum() {
	seeded := &ledger.Transaction{
		Target:        targetURL,
		Submitter:     ownerAlice,
		Confirmations: 2,
		ConfirmedBy:   map[string]bool{ownerAlice: true, ownerBob: true},
	}
	id, err := s.store.Append(s.ctx, seeded)
	s.Require().NoError(err)

	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.Execute(s.ctx, ownerCarol, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(tx.Executed)
}

// --- cancellation ---

// Two cancellation votes against a two-vote quorum kill the entry; the
// target is never invoked and later confirmations bounce off the terminal
// state.
func (s *ServiceSuite) TestCancellationQuorumCancelsWithoutInvocation() {
	id := s.submit(ownerAlice)

	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerBob, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(tx.Cancelled)
	s.Require().False(tx.Executed)
	s.Require().Equal(2, tx.Cancellations)

	s.requireCode(s.svc.Confirm(s.ctx, ownerCarol, id), dErrors.CodeAlreadyCancelled)
	s.requireCode(s.svc.RequestCancellation(s.ctx, ownerCarol, id), dErrors.CodeAlreadyCancelled)
	s.requireCode(s.svc.RevokeCancellationRequest(s.ctx, ownerAlice, id), dErrors.CodeAlreadyCancelled)
}

func (s *ServiceSuite) TestRequestCancellationRejectsDoubleVote() {
	id := s.submit(ownerAlice)
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerAlice, id))

	err := s.svc.RequestCancellation(s.ctx, ownerAlice, id)
	s.requireCode(err, dErrors.CodeCancellationAlreadyRequested)
}

func (s *ServiceSuite) TestRevokeCancellationRequestRequiresExistingVote() {
	id := s.submit(ownerAlice)

	s.requireCode(s.svc.RevokeCancellationRequest(s.ctx, ownerAlice, id), dErrors.CodeCancellationNotFound)

	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RevokeCancellationRequest(s.ctx, ownerAlice, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Zero(tx.Cancellations)
}

// Confirmation and cancellation tallies race independently; whichever crosses
// the threshold first wins, in call order.
func (s *ServiceSuite) TestConfirmationWinsRaceAgainstCancellation() {
	id := s.submit(ownerAlice)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerBob, id))

	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerCarol, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(tx.Executed)
	s.Require().False(tx.Cancelled)
	// The losing side's vote stays on record.
	s.Require().Equal(1, tx.Cancellations)

	s.requireCode(s.svc.RequestCancellation(s.ctx, ownerCarol, id), dErrors.CodeAlreadyExecuted)
}

func (s *ServiceSuite) TestCancellationWinsRaceAgainstConfirmation() {
	id := s.submit(ownerAlice)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerBob, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerCarol, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().True(tx.Cancelled)
	s.Require().Equal(1, tx.Confirmations)

	s.requireCode(s.svc.Confirm(s.ctx, ownerBob, id), dErrors.CodeAlreadyCancelled)
}

// --- vote bookkeeping ---

func (s *ServiceSuite) TestCountersMatchVoteSetsThroughMixedSequence() {
	id := s.submit(ownerAlice)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerBob, id))
	s.Require().NoError(s.svc.RevokeConfirmation(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RequestCancellation(s.ctx, ownerAlice, id))
	s.Require().NoError(s.svc.RevokeCancellationRequest(s.ctx, ownerBob, id))
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerCarol, id))

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(len(tx.ConfirmedBy), tx.Confirmations)
	s.Require().Equal(len(tx.CancelRequestedBy), tx.Cancellations)
	s.Require().Equal(1, tx.Confirmations)
	s.Require().Equal(1, tx.Cancellations)

	confirmed, err := s.svc.HasConfirmed(s.ctx, id, ownerCarol)
	s.Require().NoError(err)
	s.Require().True(confirmed)
	cancelVote, err := s.svc.HasRequestedCancellation(s.ctx, id, ownerBob)
	s.Require().NoError(err)
	s.Require().False(cancelVote)
}

// --- notifications ---

func (s *ServiceSuite) TestLifecycleEmitsOrderedNotifications() {
	id := s.submit(ownerAlice)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.invoker.EXPECT().Invoke(gomock.Any(), gomock.Any()).Return(nil)
	s.Require().NoError(s.svc.Confirm(s.ctx, ownerBob, id))

	s.Require().Equal([]events.Type{
		events.TypeTransactionSubmitted,
		events.TypeTransactionConfirmed,
		events.TypeTransactionConfirmed,
		events.TypeTransactionExecuted,
	}, s.publisher.types())

	for _, e := range s.publisher.events {
		s.Require().NotNil(e.TransactionID)
		s.Require().Equal(id, *e.TransactionID)
	}
}

func (s *ServiceSuite) TestFailedOperationEmitsNothing() {
	id := s.submit(ownerAlice)
	s.publisher.events = nil

	s.requireCode(s.svc.Confirm(s.ctx, "mallory", id), dErrors.CodeNotAnOwner)
	s.requireCode(s.svc.Confirm(s.ctx, ownerAlice, 42), dErrors.CodeTransactionNotFound)

	s.Require().NoError(s.svc.Confirm(s.ctx, ownerAlice, id))
	s.publisher.events = nil
	s.requireCode(s.svc.Confirm(s.ctx, ownerAlice, id), dErrors.CodeAlreadyConfirmed)

	s.Require().Empty(s.publisher.events)
}

// --- reads ---

func (s *ServiceSuite) TestGetTransactionRoundTripsFields() {
	payload := json.RawMessage(`{"invoice":"INV-7"}`)
	id, err := s.svc.Submit(s.ctx, ownerBob, targetURL, 900, payload)
	s.Require().NoError(err)

	tx, err := s.svc.GetTransaction(s.ctx, id)
	s.Require().NoError(err)
	s.Require().Equal(id, tx.ID)
	s.Require().Equal(targetURL, tx.Target)
	s.Require().Equal(int64(900), tx.Value)
	s.Require().JSONEq(string(payload), string(tx.Payload))
	s.Require().Equal(ownerBob, tx.Submitter)
	s.Require().False(tx.CreatedAt.IsZero())
}

func (s *ServiceSuite) TestGetTransactionUnknownID() {
	_, err := s.svc.GetTransaction(s.ctx, 7)
	s.requireCode(err, dErrors.CodeTransactionNotFound)
}

func TestQuorumReadSurface(t *testing.T) {
	ctx := context.Background()
	registry := owner.NewRegistry(owner.NewInMemoryStore())
	require.NoError(t, registry.Bootstrap(ctx, []string{ownerAlice, ownerBob, ownerCarol}, 2))

	svc := engine.NewService(
		registry,
		ledger.NewInMemoryStore(),
		nil,
		events.NopPublisher{},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	owners, err := svc.Owners(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{ownerAlice, ownerBob, ownerCarol}, owners)

	count, err := svc.OwnerCount(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, count)

	threshold, err := svc.Threshold(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, threshold)
}
