package pipeline

import (
	"fmt"
	"strings"
	"time"

	"outletops/pkg/domain"
)

// Direction is a single step along the ordered stage list.
type Direction string

const (
	Forward  Direction = "forward"
	Backward Direction = "backward"
)

// ParseDirection accepts "forward"/"next" and "backward"/"back"/"prev".
func ParseDirection(raw string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "forward", "next":
		return Forward, nil
	case "backward", "back", "prev", "previous":
		return Backward, nil
	default:
		return "", fmt.Errorf("unknown direction %q", raw)
	}
}

func (d Direction) step() int {
	switch d {
	case Forward:
		return 1
	case Backward:
		return -1
	default:
		return 0
	}
}

// Move steps the outlet one stage in dir. Stepping past either end of the
// pipeline is a silent no-op. A successful move always appends a fresh log
// entry, even when the stage was visited before.
func Move(o *domain.Outlet, dir Direction, now time.Time) bool {
	step := dir.step()
	if step == 0 {
		return false
	}
	current := o.CurrentStage.Index()
	if current < 0 {
		return false
	}
	next, ok := domain.StageAt(current + step)
	if !ok {
		return false
	}
	o.CurrentStage = next
	o.LastMovedAt = now
	o.History = append(o.History, domain.StageLog{Stage: next, Timestamp: now})
	return true
}

// Jump moves the outlet straight to stage and always appends a new log entry
// stamped at and carrying note, then re-sorts the history by timestamp.
// lastMovedAt becomes at when that is later than its current value and now
// otherwise, so it never moves backwards. Bulk reconciliation uses it; it is a
// no-op when the stage is unchanged or unknown.
func Jump(o *domain.Outlet, stage domain.Stage, at, now time.Time, note string) bool {
	if !stage.Valid() || stage == o.CurrentStage {
		return false
	}
	o.CurrentStage = stage
	if at.After(o.LastMovedAt) {
		o.LastMovedAt = at
	} else {
		o.LastMovedAt = now
	}
	o.History = append(o.History, domain.StageLog{Stage: stage, Timestamp: at, Note: note})
	sortHistory(o)
	return true
}

// SetStage jumps directly to stage. It refreshes the timestamp of the most
// recent visit to that stage when one exists and appends otherwise; it does
// nothing when the outlet is already there or stage is unknown.
func SetStage(o *domain.Outlet, stage domain.Stage, now time.Time) bool {
	if !stage.Valid() || stage == o.CurrentStage {
		return false
	}
	if idx := lastLogIndex(o, stage); idx >= 0 {
		o.History[idx].Timestamp = now
	} else {
		o.History = append(o.History, domain.StageLog{Stage: stage, Timestamp: now})
	}
	o.CurrentStage = stage
	o.LastMovedAt = now
	return true
}
