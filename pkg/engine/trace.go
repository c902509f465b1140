package engine

import (
	"context"

	"github.com/mnemohq/mnemo/pkg/core"
)

// TraceDirection selects which way TraceCausality walks the event DAG.
type TraceDirection string

const (
	TraceUp   TraceDirection = "up"
	TraceDown TraceDirection = "down"
	TraceBoth TraceDirection = "both"
)

// TracedEvent is one hop of a causal trace, annotated with its distance
// from the starting event (spec.md §4.10).
type TracedEvent struct {
	Event *core.AgentEvent
	Depth int
}

// TraceCausality walks parent_event_id upward and/or child links downward
// from eventID, stopping at maxDepth hops and optionally filtering by
// event type. Used to answer "which input caused this output" (spec.md
// §4.10).
func (e *Engine) TraceCausality(ctx context.Context, eventID core.ID, direction TraceDirection, maxDepth int, eventTypeFilter *core.EventType) ([]TracedEvent, error) {
	const op = "TraceCausality"

	start, err := e.driver.GetEvent(ctx, eventID)
	if err != nil {
		return nil, core.NewEngineError(op, core.KindNotFound, err)
	}

	var out []TracedEvent
	seen := map[core.ID]bool{start.ID: true}

	if direction == TraceUp || direction == TraceBoth {
		up, err := e.traceUp(ctx, start, maxDepth, eventTypeFilter, seen)
		if err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
		out = append(out, up...)
	}
	if direction == TraceDown || direction == TraceBoth {
		down, err := e.traceDown(ctx, start, maxDepth, eventTypeFilter, seen)
		if err != nil {
			return nil, core.NewEngineError(op, core.KindStorage, err)
		}
		out = append(out, down...)
	}

	return out, nil
}

func (e *Engine) traceUp(ctx context.Context, start *core.AgentEvent, maxDepth int, filter *core.EventType, seen map[core.ID]bool) ([]TracedEvent, error) {
	var out []TracedEvent
	cur := start
	depth := 0
	for cur.ParentEventID != (core.ID{}) && (maxDepth <= 0 || depth < maxDepth) {
		parent, err := e.driver.GetEvent(ctx, cur.ParentEventID)
		if err != nil {
			break
		}
		depth++
		if !seen[parent.ID] {
			seen[parent.ID] = true
			if filter == nil || parent.EventType == *filter {
				out = append(out, TracedEvent{Event: parent, Depth: depth})
			}
		}
		cur = parent
	}
	return out, nil
}

func (e *Engine) traceDown(ctx context.Context, start *core.AgentEvent, maxDepth int, filter *core.EventType, seen map[core.ID]bool) ([]TracedEvent, error) {
	var out []TracedEvent
	type frontierEntry struct {
		id    core.ID
		depth int
	}
	frontier := []frontierEntry{{start.ID, 0}}

	for len(frontier) > 0 {
		cur := frontier[0]
		frontier = frontier[1:]
		if maxDepth > 0 && cur.depth >= maxDepth {
			continue
		}
		children, err := e.driver.ListChildEvents(ctx, cur.id)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			if seen[child.ID] {
				continue
			}
			seen[child.ID] = true
			depth := cur.depth + 1
			if filter == nil || child.EventType == *filter {
				out = append(out, TracedEvent{Event: child, Depth: depth})
			}
			frontier = append(frontier, frontierEntry{child.ID, depth})
		}
	}
	return out, nil
}
