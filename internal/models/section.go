// Package models defines data structures for the Inkwell content pipeline.
package models

// TerminationReason records how a section's refinement loop reached DONE.
type TerminationReason string

const (
	// TerminationGradedPass means the grader accepted the draft.
	TerminationGradedPass TerminationReason = "graded_pass"
	// TerminationBudgetExhausted means the search depth budget ran out.
	// Treated identically to a pass downstream; recorded so consumers can
	// tell the two apart.
	TerminationBudgetExhausted TerminationReason = "budget_exhausted"
)

// Source is a citation record attached to a section after drafting.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Date  string `json:"date,omitempty"`
}

// Section is one content unit of a document. Sections are passed by value
// between pipeline stages; each refinement iteration produces a new value
// rather than mutating shared state.
type Section struct {
	Index            int               `json:"index"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Content          string            `json:"content,omitempty"`
	Sources          []Source          `json:"sources,omitempty"`
	RequiresResearch bool              `json:"requires_research"`
	Iterations       int               `json:"iterations"`
	Termination      TerminationReason `json:"termination,omitempty"`
}

// Verdict is the grader's decision for one drafted section. FollowUpQueries
// is empty on a pass and names concrete information gaps on a fail.
type Verdict struct {
	Pass            bool     `json:"pass"`
	FollowUpQueries []string `json:"follow_up_queries,omitempty"`
}

// Outline is the section plan produced before any research begins.
type Outline struct {
	Title    string    `json:"title"`
	Sections []Section `json:"sections"`
}

// NewOutline builds an outline from ordered section plans. The first and
// last sections never research: introduction and conclusion synthesize
// from the body sections instead of searching.
func NewOutline(title string, sections []Section) Outline {
	for i := range sections {
		sections[i].Index = i
		sections[i].RequiresResearch = i != 0 && i != len(sections)-1
	}
	return Outline{Title: title, Sections: sections}
}

// BodySections returns the sections that run the refinement loop.
func (o Outline) BodySections() []Section {
	body := make([]Section, 0, len(o.Sections))
	for _, s := range o.Sections {
		if s.RequiresResearch {
			body = append(body, s)
		}
	}
	return body
}
