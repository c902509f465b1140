package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/mnemohq/mnemo/pkg/core"
)

// appendEvent appends one AgentEvent to agentID's event chain: it reads the
// chain tail (hash and logical clock), links the new event to it, and
// inserts. The insert is linearized per agent by the storage backend's
// per-agent lock (spec.md §5), the same critical section InsertMemory uses.
func (e *Engine) appendEvent(ctx context.Context, agentID, threadID string, parentEventID core.ID, eventType core.EventType, payload map[string]interface{}) (*core.AgentEvent, error) {
	prevHash, err := e.driver.GetLatestEventHash(ctx, agentID)
	if err != nil {
		return nil, core.NewEngineError("appendEvent", core.KindStorage, err)
	}
	clock, err := e.nextLogicalClock(ctx, agentID)
	if err != nil {
		return nil, err
	}

	ev := &core.AgentEvent{
		ID:            core.NewID(),
		AgentID:       agentID,
		ThreadID:      threadID,
		ParentEventID: parentEventID,
		EventType:     eventType,
		Payload:       payload,
		Timestamp:     time.Now(),
		LogicalClock:  clock,
		PrevHash:      prevHash,
	}
	ev.ContentHash = core.HashEventContent(ev)

	if err := e.driver.InsertEvent(ctx, ev); err != nil {
		return nil, core.NewEngineError("appendEvent", core.KindStorage, err)
	}
	return ev, nil
}

// nextLogicalClock returns the next Lamport clock value for agentID: one
// past the highest clock value currently on its event chain, or 0 for a
// fresh agent (spec.md §3: "logical_clock monotonically increases per
// agent").
func (e *Engine) nextLogicalClock(ctx context.Context, agentID string) (int64, error) {
	events, err := e.driver.ListEvents(ctx, agentID, "", core.ID{}, 0)
	if err != nil {
		return 0, core.NewEngineError("nextLogicalClock", core.KindStorage, err)
	}
	if len(events) == 0 {
		return 0, nil
	}
	return events[len(events)-1].LogicalClock + 1, nil
}

func trimFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
