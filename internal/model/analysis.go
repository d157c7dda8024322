package model

// IssueLevel grades a potential error found in a document.
type IssueLevel string

const (
	IssueCritical IssueLevel = "critical"
	IssueWarning  IssueLevel = "warning"
)

// PotentialError is one problem the reviewer model flagged in a document.
type PotentialError struct {
	IssueLevel      IssueLevel `json:"issue_level"`
	IssueDetails    string     `json:"issue_details"`
	PageNumber      string     `json:"page_number"`
	ApproximateCost string     `json:"approximate_cost"`
	Delay           string     `json:"delay"`
}

// OpenQuestion is a clarifying question raised by the analysis.
type OpenQuestion struct {
	Question   string `json:"question"`
	PageNumber string `json:"page_number"`
}

// TradeRequirement is the scope of work for one construction trade,
// formatted as Markdown.
type TradeRequirement struct {
	NameOfTrade string `json:"name_of_trade"`
	Scope       string `json:"scope"`
}

// AnalysisResult is the structured output of one analysis pass over a file.
// The orchestrator stores it verbatim; only the AI adapter constructs it.
type AnalysisResult struct {
	PotentialErrors   []PotentialError   `json:"potential_errors"`
	Questions         []OpenQuestion     `json:"questions"`
	TradeRequirements []TradeRequirement `json:"trade_requirements"`
}

// Normalize constrains field values to the documented vocabulary: unknown
// issue levels degrade to warning, empty cost and delay estimates get their
// documented placeholders.
func (a *AnalysisResult) Normalize() {
	for i := range a.PotentialErrors {
		pe := &a.PotentialErrors[i]
		if pe.IssueLevel != IssueCritical {
			pe.IssueLevel = IssueWarning
		}
		if pe.ApproximateCost == "" {
			pe.ApproximateCost = "N/A"
		}
		if pe.Delay == "" {
			pe.Delay = "0"
		}
	}
	if a.PotentialErrors == nil {
		a.PotentialErrors = []PotentialError{}
	}
	if a.Questions == nil {
		a.Questions = []OpenQuestion{}
	}
	if a.TradeRequirements == nil {
		a.TradeRequirements = []TradeRequirement{}
	}
}
