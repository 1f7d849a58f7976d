package model

type IntentStatus int

const (
	// IntentNone means no capability applies ("Other", empty or none).
	IntentNone IntentStatus = iota
	// IntentSelected carries a registered capability name.
	IntentSelected
	// IntentRejected means the classifier answered outside the vocabulary.
	IntentRejected
)

func (s IntentStatus) String() string {
	switch s {
	case IntentSelected:
		return "selected"
	case IntentRejected:
		return "rejected"
	default:
		return "none"
	}
}

// IntentResult is the outcome of one classification.
type IntentResult struct {
	Status IntentStatus
	Name   string // registered capability name when Selected
	Raw    string // cleaned classifier output
}

func Selected(name, raw string) IntentResult {
	return IntentResult{Status: IntentSelected, Name: name, Raw: raw}
}

func NoIntent(raw string) IntentResult {
	return IntentResult{Status: IntentNone, Raw: raw}
}

func Rejected(raw string) IntentResult {
	return IntentResult{Status: IntentRejected, Raw: raw}
}

// Tool returns the capability to run. Rejected results never select a tool.
func (r IntentResult) Tool() (string, bool) {
	if r.Status != IntentSelected || r.Name == "" {
		return "", false
	}
	return r.Name, true
}
