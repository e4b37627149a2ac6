// Package analytics derives pipeline health figures from the active outlet set.
package analytics

import (
	"math"
	"time"

	"outletops/internal/pipeline"
	"outletops/pkg/domain"
)

const day = 24 * time.Hour

// DelayedOutlet is an outlet that has sat in its current stage past the
// stage target.
type DelayedOutlet struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Stage       domain.Stage `json:"stage"`
	DaysInStage int          `json:"days_in_stage"`
	DaysOver    int          `json:"days_over_target"`
}

// StageMetric summarises the outlets currently sitting in one stage.
type StageMetric struct {
	Stage      domain.StageInfo `json:"stage"`
	Count      int              `json:"count"`
	AvgDays    float64          `json:"avg_days"`
	Bottleneck bool             `json:"bottleneck"`
}

// Report is the dashboard summary over active outlets.
type Report struct {
	GeneratedAt  time.Time       `json:"generated_at"`
	Total        int             `json:"total"`
	Live         int             `json:"live"`
	InPipeline   int             `json:"in_pipeline"`
	Delayed      []DelayedOutlet `json:"delayed"`
	AvgCycleDays int             `json:"avg_cycle_days"`
	Stages       []StageMetric   `json:"stages"`
}

// DelayedCount is the number of delayed outlets.
func (r Report) DelayedCount() int { return len(r.Delayed) }

// Build computes the report at now. Archived outlets are ignored.
func Build(outlets []domain.Outlet, now time.Time) Report {
	active := pipeline.Active(outlets)
	rep := Report{GeneratedAt: now, Total: len(active), Delayed: []DelayedOutlet{}}

	var cycle time.Duration
	perStage := make(map[domain.Stage][]time.Duration)
	for _, o := range active {
		inStage := now.Sub(o.LastMovedAt)
		perStage[o.CurrentStage] = append(perStage[o.CurrentStage], inStage)
		if o.CurrentStage.IsTerminal() {
			rep.Live++
			cycle += o.LastMovedAt.Sub(o.CreatedAt)
			continue
		}
		info, ok := o.CurrentStage.Info()
		if !ok {
			continue
		}
		days := wholeDays(inStage)
		if days > info.TargetDays {
			rep.Delayed = append(rep.Delayed, DelayedOutlet{
				ID:          o.ID,
				Name:        o.Name,
				Stage:       o.CurrentStage,
				DaysInStage: days,
				DaysOver:    days - info.TargetDays,
			})
		}
	}
	rep.InPipeline = rep.Total - rep.Live
	if rep.Live > 0 {
		rep.AvgCycleDays = int(math.Round(float64(cycle) / float64(rep.Live) / float64(day)))
	}

	for _, info := range domain.StageInfos() {
		m := StageMetric{Stage: info}
		durations := perStage[info.ID]
		m.Count = len(durations)
		if m.Count > 0 {
			var sum time.Duration
			for _, d := range durations {
				sum += d
			}
			m.AvgDays = math.Round(float64(sum)/float64(m.Count)/float64(day)*10) / 10
		}
		m.Bottleneck = info.TargetDays > 0 && m.AvgDays > float64(info.TargetDays)
		rep.Stages = append(rep.Stages, m)
	}
	return rep
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(float64(d) / float64(day)))
}
