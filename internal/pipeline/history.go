// Package pipeline implements the outlet state machine: the per-stage history
// log, stage transitions, and the archive lifecycle. Every function mutates
// the outlet it is given and never fails.
package pipeline

import (
	"sort"
	"time"

	"outletops/pkg/domain"
)

// lastLogIndex scans history from the end and returns the position of the
// most recent entry for stage, or -1.
func lastLogIndex(o *domain.Outlet, stage domain.Stage) int {
	for i := len(o.History) - 1; i >= 0; i-- {
		if o.History[i].Stage == stage {
			return i
		}
	}
	return -1
}

// FindLastLogForStage returns the most recent log entry for stage. Earlier
// visits to the same stage are never returned.
func FindLastLogForStage(o domain.Outlet, stage domain.Stage) (domain.StageLog, bool) {
	idx := lastLogIndex(&o, stage)
	if idx < 0 {
		return domain.StageLog{}, false
	}
	return o.History[idx], true
}

// UpsertNoteForStage replaces the note on the most recent visit to stage,
// keeping its timestamp, or appends a new entry stamped now.
func UpsertNoteForStage(o *domain.Outlet, stage domain.Stage, note string, now time.Time) {
	if idx := lastLogIndex(o, stage); idx >= 0 {
		o.History[idx].Note = note
		return
	}
	o.History = append(o.History, domain.StageLog{Stage: stage, Timestamp: now, Note: note})
}

// UpsertTimestampForStage moves the most recent visit to stage to ts, or
// appends a new entry at ts, then re-sorts the whole history by timestamp.
// Entries with equal timestamps keep their relative order.
func UpsertTimestampForStage(o *domain.Outlet, stage domain.Stage, ts time.Time) {
	if idx := lastLogIndex(o, stage); idx >= 0 {
		o.History[idx].Timestamp = ts
	} else {
		o.History = append(o.History, domain.StageLog{Stage: stage, Timestamp: ts})
	}
	sortHistory(o)
}

func sortHistory(o *domain.Outlet) {
	sort.SliceStable(o.History, func(i, j int) bool {
		return o.History[i].Timestamp.Before(o.History[j].Timestamp)
	})
}
