package analytics

import (
	"math"
	"time"

	"outletops/pkg/domain"
)

// TimelineEntry is one visit in an outlet's journey, newest first.
type TimelineEntry struct {
	Stage     domain.Stage `json:"stage"`
	Label     string       `json:"label"`
	Timestamp time.Time    `json:"timestamp"`
	Note      string       `json:"note,omitempty"`
	DaysSpent int          `json:"days_spent"`
	Delayed   bool         `json:"delayed"`
	Latest    bool         `json:"latest"`
}

// Timeline lists the outlet history newest first. A visit lasts until the
// next logged visit; the latest one runs until now. Durations round to whole
// days with a floor of one.
func Timeline(o domain.Outlet, now time.Time) []TimelineEntry {
	n := len(o.History)
	out := make([]TimelineEntry, 0, n)
	for i := n - 1; i >= 0; i-- {
		log := o.History[i]
		end := now
		if i < n-1 {
			end = o.History[i+1].Timestamp
		}
		spent := int(math.Max(1, math.Round(float64(end.Sub(log.Timestamp))/float64(day))))
		target := log.Stage.TargetDays()
		out = append(out, TimelineEntry{
			Stage:     log.Stage,
			Label:     log.Stage.Label(),
			Timestamp: log.Timestamp,
			Note:      log.Note,
			DaysSpent: spent,
			Delayed:   target > 0 && spent > target,
			Latest:    i == n-1,
		})
	}
	return out
}
