package model

// IntegrityIssue is a single finding of the integrity verifier.
type IntegrityIssue struct {
	Check    string `json:"check"`
	Severity string `json:"severity"`
	PageID   string `json:"page_id,omitempty"`
	Message  string `json:"message"`
}

// IntegrityCheck is the outcome of one verification check.
type IntegrityCheck struct {
	Name   string  `json:"name"`
	Passed bool    `json:"passed"`
	Score  float64 `json:"score"`
	Issues int     `json:"issues"`
}

// IntegritySummary holds the headline numbers of a verification pass.
// TotalIssues is -1 when verification itself could not run.
type IntegritySummary struct {
	Score           float64 `json:"integrity_score"`
	TotalIssues     int     `json:"total_issues"`
	ChecksPerformed int     `json:"checks_performed"`
	ChecksPassed    int     `json:"checks_passed"`
}

// IntegrityReport is attached to the tree by the verification phase and
// copied verbatim into the final report.
type IntegrityReport struct {
	Summary         IntegritySummary `json:"summary"`
	Checks          []IntegrityCheck `json:"checks,omitempty"`
	Issues          []IntegrityIssue `json:"issues,omitempty"`
	Recommendations []string         `json:"recommendations,omitempty"`
	Error           string           `json:"error,omitempty"`
}
