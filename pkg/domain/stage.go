package domain

import "strings"

// Stage identifies one phase of the onboarding pipeline. The identifier is
// stable and independent of the import code and display label.
type Stage string

// Pipeline stages in their canonical order.
const (
	StageOnboardingRequest Stage = "ONBOARDING_REQUEST"
	StageOverlapCheck      Stage = "OVERLAP_CHECK"
	StageChefApproval      Stage = "CHEF_APPROVAL"
	StageFassiApply        Stage = "FASSI_APPLY"
	StageIDCreation        Stage = "ID_CREATION"
	StageIntegration       Stage = "INTEGRATION"
	StageTraining          Stage = "TRAINING"
	StageHandover          Stage = "HANDOVER"
	StageOutletLive        Stage = "OUTLET_LIVE"
)

// StageInfo carries the presentation and import metadata for a stage.
type StageInfo struct {
	ID         Stage  `json:"id"`
	Code       string `json:"code"`
	Label      string `json:"label"`
	TargetDays int    `json:"target_days"`
}

var stageTable = []StageInfo{
	{ID: StageOnboardingRequest, Code: "ONBOARDING REQUEST", Label: "Onboarding Request", TargetDays: 2},
	{ID: StageOverlapCheck, Code: "OVERLAP CHECK", Label: "Overlap Check", TargetDays: 1},
	{ID: StageChefApproval, Code: "CHEF APPROVAL", Label: "Chef Approval", TargetDays: 3},
	{ID: StageFassiApply, Code: "FASSI APPLY", Label: "FASSI Apply", TargetDays: 7},
	{ID: StageIDCreation, Code: "ID CREATION", Label: "ID Creation", TargetDays: 2},
	{ID: StageIntegration, Code: "INTEGRATION", Label: "Integration", TargetDays: 2},
	{ID: StageTraining, Code: "TRAINING OF OUTLET", Label: "Training", TargetDays: 3},
	{ID: StageHandover, Code: "HANDOVER", Label: "Handover", TargetDays: 1},
	{ID: StageOutletLive, Code: "OUTLET LIVE", Label: "Outlet Live", TargetDays: 0},
}

// Stages returns the pipeline stages in order.
func Stages() []Stage {
	out := make([]Stage, len(stageTable))
	for i, info := range stageTable {
		out[i] = info.ID
	}
	return out
}

// StageInfos returns the metadata for every stage in order.
func StageInfos() []StageInfo {
	out := make([]StageInfo, len(stageTable))
	copy(out, stageTable)
	return out
}

// StageAt returns the stage at the zero-based pipeline position.
func StageAt(index int) (Stage, bool) {
	if index < 0 || index >= len(stageTable) {
		return "", false
	}
	return stageTable[index].ID, true
}

// FirstStage is the initial state of every outlet.
func FirstStage() Stage { return stageTable[0].ID }

// LastStage is the terminal pipeline state.
func LastStage() Stage { return stageTable[len(stageTable)-1].ID }

// Index returns the zero-based pipeline position, or -1 for unknown stages.
func (s Stage) Index() int {
	for i, info := range stageTable {
		if info.ID == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a member of the enumeration.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Info returns the metadata for s.
func (s Stage) Info() (StageInfo, bool) {
	idx := s.Index()
	if idx < 0 {
		return StageInfo{}, false
	}
	return stageTable[idx], true
}

// Code returns the spreadsheet code for s, or the raw identifier when unknown.
func (s Stage) Code() string {
	if info, ok := s.Info(); ok {
		return info.Code
	}
	return string(s)
}

// Label returns the display label for s, or the raw identifier when unknown.
func (s Stage) Label() string {
	if info, ok := s.Info(); ok {
		return info.Label
	}
	return string(s)
}

// TargetDays returns the expected dwell time for s in days.
func (s Stage) TargetDays() int {
	info, _ := s.Info()
	return info.TargetDays
}

// IsTerminal reports whether s is the last pipeline stage.
func (s Stage) IsTerminal() bool { return s == LastStage() }

func (s Stage) String() string { return string(s) }

// ParseStage resolves a stage from its identifier, import code, or label.
func ParseStage(raw string) (Stage, bool) {
	needle := strings.TrimSpace(raw)
	if needle == "" {
		return "", false
	}
	for _, info := range stageTable {
		if strings.EqualFold(needle, string(info.ID)) ||
			strings.EqualFold(needle, info.Code) ||
			strings.EqualFold(needle, info.Label) {
			return info.ID, true
		}
	}
	return "", false
}
