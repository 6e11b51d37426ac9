package constants

// IssueCode identifies one kind of finding in a parse or validation report.
type IssueCode string

// Parse findings.
const (
	IssueMalformedBlock     IssueCode = "MALFORMED_BLOCK"
	IssueMalformedWeight    IssueCode = "MALFORMED_WEIGHT"
	IssueWeightOutOfRange   IssueCode = "WEIGHT_OUT_OF_RANGE"
	IssueNetMismatch        IssueCode = "NET_MISMATCH"
	IssueMissingEntryDate   IssueCode = "MISSING_ENTRY_DATE"
	IssueDuplicateInFile    IssueCode = "DUPLICATE_IN_FILE"
	IssueVoidWithoutReprint IssueCode = "VOID_WITHOUT_REPRINT"
	IssueStrayRow           IssueCode = "STRAY_ROW"
)

// Recognition findings.
const (
	IssuePageFailed  IssueCode = "PAGE_EXTRACTION_FAILED"
	IssuePageTimeout IssueCode = "PAGE_TIMEOUT"
)

// Resolution findings.
const (
	IssueNoClient        IssueCode = "NO_CLIENT"
	IssueAmbiguousClient IssueCode = "AMBIGUOUS_CLIENT"
	IssueNoRate          IssueCode = "NO_RATE"
	IssueAmbiguousRate   IssueCode = "AMBIGUOUS_RATE"
)

// Validation findings.
const (
	IssueDuplicateTicket   IssueCode = "DUPLICATE_TICKET"
	IssueUnresolved        IssueCode = "UNRESOLVED_BILLABLE"
	IssueSubtotalMismatch  IssueCode = "SUBTOTAL_MISMATCH"
	IssueWeekTotalMismatch IssueCode = "WEEK_TOTAL_MISMATCH"
	IssueLineMismatch      IssueCode = "LINE_MISMATCH"
	IssueMissingImage      IssueCode = "MISSING_IMAGE"
	IssueLowConfidence     IssueCode = "LOW_MATCH_CONFIDENCE"
	IssueNonPositiveNet    IssueCode = "NON_POSITIVE_NET"
	IssueSundayEntry       IssueCode = "SUNDAY_ENTRY"
	IssueOmitted           IssueCode = "OMITTED_FORCED"
)

// Export findings.
const (
	IssueExportFailed IssueCode = "EXPORT_FAILED"
	IssueLockTimeout  IssueCode = "RANGE_LOCK_TIMEOUT"
)

// Consistency reports whether the code signals corrupted aggregation.
func (c IssueCode) Consistency() bool {
	switch c {
	case IssueSubtotalMismatch, IssueWeekTotalMismatch, IssueLineMismatch:
		return true
	}
	return false
}
