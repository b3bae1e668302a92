package types

import "fmt"

// Stage statuses. A stage only ever advances Pending -> InProgress -> Complete.
const (
	StatusPending    = "Pending"
	StatusInProgress = "InProgress"
	StatusComplete   = "Complete"
)

// Call statuses.
const (
	CallPending             = "Pending"
	CallInProgress          = "InProgress"
	CallTranscriptDone      = "TranscriptDone"
	CallAuditing            = "Auditing"
	CallAuditDone           = "AuditDone"
	CallComplete            = "Complete"
	CallShortCall           = "ShortCall"
	CallUnsupportedLanguage = "UnsupportedLanguage"
)

// Stage identifies one pipeline phase of a batch.
type Stage string

const (
	StageDBInsertion Stage = "dbInsertion"
	StageDenoise     Stage = "denoise"
	StageIVR         Stage = "ivr"
	StageLID         Stage = "lid"
	StageSTT         Stage = "stt"
	StageAudit       Stage = "audit"
	StageTriaging    Stage = "triaging"
)

// PipelineStages is the fixed stage order of the batch pipeline.
var PipelineStages = []Stage{
	StageDBInsertion,
	StageDenoise,
	StageIVR,
	StageLID,
	StageSTT,
	StageAudit,
	StageTriaging,
}

var statusRank = map[string]int{
	StatusPending:    0,
	StatusInProgress: 1,
	StatusComplete:   2,
}

// Phase returns the mutable stage phase for the given stage.
func (b *Batch) Phase(stage Stage) *StagePhase {
	switch stage {
	case StageDBInsertion:
		return &b.DBInsertion
	case StageDenoise:
		return &b.Denoise
	case StageIVR:
		return &b.IVR
	case StageLID:
		return &b.LID
	case StageSTT:
		return &b.STT
	case StageAudit:
		return &b.Audit
	case StageTriaging:
		return &b.Triaging
	}
	return nil
}

// Advance moves the phase to the given status, rejecting backward
// transitions so a batch can never regress a completed stage.
func (p *StagePhase) Advance(status string) error {
	next, ok := statusRank[status]
	if !ok {
		return fmt.Errorf("unknown stage status %q", status)
	}
	if p.Status == "" {
		p.Status = StatusPending
	}
	current := statusRank[p.Status]
	if next < current {
		return fmt.Errorf("stage status cannot move from %s to %s", p.Status, status)
	}
	p.Status = status
	return nil
}

// IsComplete reports whether the phase has finished.
func (p *StagePhase) IsComplete() bool {
	return p.Status == StatusComplete
}

// IsPending reports whether the phase has not started.
func (p *StagePhase) IsPending() bool {
	return p.Status == "" || p.Status == StatusPending
}
