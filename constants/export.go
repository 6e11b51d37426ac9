package constants

// ExportState is the lifecycle state of one export request.
type ExportState string

const (
	ExportRequested   ExportState = "REQUESTED"
	ExportValidating  ExportState = "VALIDATING"
	ExportReadyForced ExportState = "READY_FORCED"
	ExportReadyClean  ExportState = "READY_CLEAN"
	ExportRejected    ExportState = "REJECTED"
	ExportAssembled   ExportState = "ASSEMBLED"
	ExportDownload    ExportState = "DOWNLOADABLE"
	ExportFailed      ExportState = "FAILED"
)

var exportTransitions = map[ExportState][]ExportState{
	ExportRequested:   {ExportValidating, ExportFailed},
	ExportValidating:  {ExportReadyForced, ExportReadyClean, ExportRejected, ExportFailed},
	ExportReadyForced: {ExportAssembled, ExportFailed},
	ExportReadyClean:  {ExportAssembled, ExportFailed},
	ExportAssembled:   {ExportDownload, ExportFailed},
}

// CanTransition reports whether an export may move from one state to another.
func CanTransition(from, to ExportState) bool {
	for _, next := range exportTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal states never transition again.
func (s ExportState) Terminal() bool {
	return s == ExportRejected || s == ExportFailed || s == ExportDownload
}

// AuditOutcome is the recorded result of an export attempt.
type AuditOutcome string

const (
	OutcomeSuccess AuditOutcome = "success"
	OutcomePartial AuditOutcome = "partial"
	OutcomeFailure AuditOutcome = "failure"
)

// ImagePolicy decides how a billable ticket without a matched image is reported.
type ImagePolicy string

const (
	ImagePolicyWarn  ImagePolicy = "warn"
	ImagePolicyBlock ImagePolicy = "block"
)
