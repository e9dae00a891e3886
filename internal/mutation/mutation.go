// Package mutation implements the read, merge, conditional-write cycle used
// for every update of an existing remote object.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"github.com/ncmcp/ncclient/ncerr"
)

// Ops are the three steps of one mutation. Read returns the current value
// and its version tag; Write must send the tag as a precondition so that a
// concurrent change turns into ncerr.KindConflict.
type Ops[T any] struct {
	Resource string
	Read     func(ctx context.Context) (value T, tag string, err error)
	Merge    func(current T) (T, error)
	Write    func(ctx context.Context, merged T, tag string) (newTag string, err error)
}

// Result is the written value and the tag the server returned for it.
type Result[T any] struct {
	Value T
	Tag   string
}

// Apply runs one read, merge and write. A Conflict from Write is returned as
// is; the caller decides whether to re-read.
func Apply[T any](ctx context.Context, ops Ops[T]) (Result[T], error) {
	var zero Result[T]
	if ops.Read == nil || ops.Merge == nil || ops.Write == nil {
		return zero, errors.New("mutation requires read, merge and write")
	}

	current, tag, err := ops.Read(ctx)
	if err != nil {
		return zero, fmt.Errorf("failed to read %s: %w", ops.Resource, err)
	}
	if tag == "" {
		return zero, ncerr.Malformed("update", ops.Resource, errors.New("resource has no version tag"))
	}

	merged, err := ops.Merge(current)
	if err != nil {
		return zero, fmt.Errorf("failed to merge %s: %w", ops.Resource, err)
	}

	newTag, err := ops.Write(ctx, merged, tag)
	if err != nil {
		return zero, fmt.Errorf("failed to write %s: %w", ops.Resource, err)
	}
	return Result[T]{Value: merged, Tag: newTag}, nil
}
