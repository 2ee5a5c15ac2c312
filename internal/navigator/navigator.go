// Package navigator moves between lists by id order. It keeps no state of its
// own; every answer is computed from the ids the Source reports at call time.
package navigator

import (
	"context"
	"math"
)

// Source enumerates list ids. *storage.Store satisfies it.
type Source interface {
	ListIDs(ctx context.Context) ([]int64, error)
	ListIDsAfter(ctx context.Context, id int64) ([]int64, error)
	ListIDsBefore(ctx context.Context, id int64) ([]int64, error)
	CountListsBefore(ctx context.Context, id int64) (int, error)
	DeleteList(ctx context.Context, id int64) error
}

const (
	// EmptyFirst is what First reports when no list exists.
	EmptyFirst int64 = 1
	// EmptyLast is what Last reports when no list exists.
	EmptyLast int64 = 0
)

type Navigator struct {
	src Source
}

func New(src Source) *Navigator {
	return &Navigator{src: src}
}

func (n *Navigator) First(ctx context.Context) (int64, error) {
	ids, err := n.src.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return EmptyFirst, nil
	}
	return ids[0], nil
}

func (n *Navigator) Last(ctx context.Context) (int64, error) {
	ids, err := n.src.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return EmptyLast, nil
	}
	return ids[len(ids)-1], nil
}

// Next returns the smallest id above cur, or cur at the tail. It never wraps.
func (n *Navigator) Next(ctx context.Context, cur int64) (int64, error) {
	ids, err := n.src.ListIDsAfter(ctx, cur)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return cur, nil
	}
	return ids[0], nil
}

// Prev returns the largest id below cur, or cur at the head.
func (n *Navigator) Prev(ctx context.Context, cur int64) (int64, error) {
	ids, err := n.src.ListIDsBefore(ctx, cur)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return cur, nil
	}
	return ids[0], nil
}

// Position is the 0-based rank of cur among all lists.
func (n *Navigator) Position(ctx context.Context, cur int64) (int, error) {
	return n.src.CountListsBefore(ctx, cur)
}

// DeleteAndSelect deletes cur and returns the list to show instead: the
// following list, or the preceding one when cur was the tail. When cur was
// the only list the result is the pre-delete first id, which no longer
// exists; callers must recreate a list in that case.
func (n *Navigator) DeleteAndSelect(ctx context.Context, cur int64) (int64, error) {
	next, err := n.Next(ctx, cur)
	if err != nil {
		return 0, err
	}
	prev, err := n.Prev(ctx, cur)
	if err != nil {
		return 0, err
	}
	first, err := n.First(ctx)
	if err != nil {
		return 0, err
	}
	last, err := n.Last(ctx)
	if err != nil {
		return 0, err
	}

	if err := n.src.DeleteList(ctx, cur); err != nil {
		return 0, err
	}

	switch {
	case cur != last:
		return next, nil
	case cur != first:
		return prev, nil
	default:
		return first, nil
	}
}

// Swipe resolves a horizontal drag into a list id. Drags no longer than
// threshold leave the selection alone; a leftward drag (negative distance)
// moves to the next list and a rightward one to the previous list.
func (n *Navigator) Swipe(ctx context.Context, cur int64, distance, threshold float64) (int64, error) {
	if math.Abs(distance) <= threshold {
		return cur, nil
	}
	if distance < 0 {
		return n.Next(ctx, cur)
	}
	return n.Prev(ctx, cur)
}
