package engine

import (
	"context"
	"encoding/json"

	"quorumgate/internal/events"
	"quorumgate/internal/executor"
	dErrors "quorumgate/pkg/domain-errors"
	"quorumgate/pkg/requestcontext"
)

// Governance changes are not privileged calls. AddNewOwner and
// UpdateMinConfirmations submit ordinary ledger entries whose target is the
// engine itself; the mutation runs only when that transaction reaches quorum
// and the executor dispatches it back here. No bypass path exists.

const (
	opAddOwner        = "add_owner"
	opUpdateThreshold = "update_min_confirmations"
)

// command is the tagged payload of a self-targeted transaction.
type command struct {
	Op        string `json:"op"`
	Owner     string `json:"owner,omitempty"`
	Threshold int    `json:"threshold"`
}

// AddNewOwner submits a governance transaction that, once confirmed by the
// current quorum, admits a new owner and moves the threshold. Basic
// preconditions are checked up front so obviously doomed proposals never
// reach the ledger; the authoritative validation happens at execution time
// against the then-current owner set.
func (s *Service) AddNewOwner(ctx context.Context, submitter, newOwner string, newThreshold int) (int64, error) {
	if newOwner == "" {
		return 0, dErrors.New(dErrors.CodeZeroIdentity, "new owner identity must not be empty")
	}
	if already, err := s.owners.IsOwner(ctx, newOwner); err != nil {
		return 0, err
	} else if already {
		return 0, dErrors.New(dErrors.CodeDuplicateOwner, "identity %q is already an owner", newOwner)
	}
	if newThreshold < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidThreshold, "threshold must be at least 1")
	}

	payload, err := json.Marshal(command{Op: opAddOwner, Owner: newOwner, Threshold: newThreshold})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "encode governance command")
	}
	return s.Submit(ctx, submitter, executor.SelfTarget, 0, payload)
}

// UpdateMinConfirmations submits a governance transaction that changes the
// quorum threshold once confirmed by the current quorum.
func (s *Service) UpdateMinConfirmations(ctx context.Context, submitter string, newThreshold int) (int64, error) {
	if newThreshold < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidThreshold, "threshold must be at least 1")
	}

	payload, err := json.Marshal(command{Op: opUpdateThreshold, Threshold: newThreshold})
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "encode governance command")
	}
	return s.Submit(ctx, submitter, executor.SelfTarget, 0, payload)
}

// dispatchSelf runs a quorum-approved governance command. It is matched
// before the generic invocation path, so the guarded mutations below can only
// run as a side effect of normal execution.
func (s *Service) dispatchSelf(ctx context.Context, action executor.Action) error {
	var cmd command
	if err := json.Unmarshal(action.Payload, &cmd); err != nil {
		return dErrors.Wrap(err, dErrors.CodeBadRequest, "decode governance command")
	}

	ctx = requestcontext.WithSelfCall(ctx)
	switch cmd.Op {
	case opAddOwner:
		return s.ExecuteAddOwner(ctx, cmd.Owner, cmd.Threshold)
	case opUpdateThreshold:
		return s.ExecuteUpdateMinConfirmations(ctx, cmd.Threshold)
	default:
		return dErrors.New(dErrors.CodeBadRequest, "unknown governance op %q", cmd.Op)
	}
}

// ExecuteAddOwner performs the owner-set mutation. It refuses to run unless
// the context carries the executor dispatch marker: the engine acting on its
// own behalf is the only legitimate caller.
func (s *Service) ExecuteAddOwner(ctx context.Context, newOwner string, newThreshold int) error {
	if !requestcontext.IsSelfCall(ctx) {
		return dErrors.New(dErrors.CodeNotSelf, "owner mutation requires quorum execution")
	}
	if err := s.owners.AddOwner(ctx, newOwner, newThreshold); err != nil {
		return err
	}

	count, err := s.owners.Count(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetQuorum(count, newThreshold)
	}
	s.note(events.Event{
		Type:       events.TypeOwnerAdded,
		Owner:      newOwner,
		Threshold:  newThreshold,
		OwnerCount: count,
	})
	s.note(events.Event{
		Type:       events.TypeThresholdUpdated,
		Threshold:  newThreshold,
		OwnerCount: count,
	})
	return nil
}

// ExecuteUpdateMinConfirmations performs the threshold mutation under the
// same self-call guard.
func (s *Service) ExecuteUpdateMinConfirmations(ctx context.Context, newThreshold int) error {
	if !requestcontext.IsSelfCall(ctx) {
		return dErrors.New(dErrors.CodeNotSelf, "threshold mutation requires quorum execution")
	}
	if err := s.owners.UpdateThreshold(ctx, newThreshold); err != nil {
		return err
	}

	count, err := s.owners.Count(ctx)
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.SetQuorum(count, newThreshold)
	}
	s.note(events.Event{
		Type:       events.TypeThresholdUpdated,
		Threshold:  newThreshold,
		OwnerCount: count,
	})
	return nil
}
