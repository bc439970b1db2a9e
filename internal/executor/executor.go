// Package executor performs the target invocation once a transaction reaches
// quorum. It is the single point where control leaves the engine.
package executor

import (
	"context"
	"encoding/json"
)

// SelfTarget is the reserved target identifier for governance transactions.
// The engine matches it before the generic invocation path, so privileged
// mutations can only happen through the same quorum machinery as any other
// action.
const SelfTarget = "quorumgate://self"

// Action is the opaque unit of work attached to a transaction. The engine
// never inspects or specializes it beyond the SelfTarget match.
type Action struct {
	Target  string
	Value   int64
	Payload json.RawMessage
}

// Invoker performs an action and reports atomic success or failure. A nil
// error means the target accepted the call; any error means the invocation
// must be treated as if it never happened.
type Invoker interface {
	Invoke(ctx context.Context, action Action) error
}
