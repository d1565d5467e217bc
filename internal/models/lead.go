// Package models defines lead lifecycle structures for LeadPulse.
package models

import "time"

// LeadStatus is the lifecycle stage of a lead.
type LeadStatus string

const (
	// StatusNew indicates a lead that has not been contacted yet.
	StatusNew LeadStatus = "new"
	// StatusContacted indicates at least one outreach attempt was made.
	StatusContacted LeadStatus = "contacted"
	// StatusInterested indicates the lead expressed interest.
	StatusInterested LeadStatus = "interested"
	// StatusQualified indicates the lead passed qualification.
	StatusQualified LeadStatus = "qualified"
	// StatusProposalSent indicates a proposal was delivered.
	StatusProposalSent LeadStatus = "proposal_sent"
	// StatusNegotiating indicates active negotiation.
	StatusNegotiating LeadStatus = "negotiating"
	// StatusConverted indicates a closed-won lead. Terminal.
	StatusConverted LeadStatus = "converted"
	// StatusNotInterested indicates a closed-lost lead. Terminal.
	StatusNotInterested LeadStatus = "not_interested"
	// StatusCold indicates a lead that went unresponsive.
	StatusCold LeadStatus = "cold"
)

// IsValidLeadStatus checks if the given lead status is supported.
func IsValidLeadStatus(s LeadStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// allowedTransitions is the status transition table keyed by current status.
// Terminal statuses (converted, not_interested) have no outgoing edges.
var allowedTransitions = map[LeadStatus][]LeadStatus{
	StatusNew:           {StatusContacted, StatusNotInterested, StatusCold},
	StatusContacted:     {StatusInterested, StatusQualified, StatusNotInterested, StatusCold},
	StatusInterested:    {StatusQualified, StatusNotInterested, StatusCold},
	StatusQualified:     {StatusProposalSent, StatusNegotiating, StatusNotInterested, StatusCold},
	StatusProposalSent:  {StatusNegotiating, StatusConverted, StatusNotInterested, StatusCold},
	StatusNegotiating:   {StatusConverted, StatusNotInterested, StatusCold},
	StatusConverted:     {},
	StatusNotInterested: {},
	StatusCold:          {StatusContacted, StatusNotInterested},
}

// CanTransition reports whether moving a lead from one status to another is
// allowed by the transition table.
func CanTransition(from, to LeadStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminalStatus reports whether the status has no outgoing transitions.
// The rule engine itself never consults this: operators are expected to list
// terminal statuses in each rule's excluded statuses.
func IsTerminalStatus(s LeadStatus) bool {
	next, ok := allowedTransitions[s]
	return ok && len(next) == 0
}

// Lead is the rolling per-lead signal state that rules read and the action
// executor writes. Version supports optimistic concurrency: every write
// carries the version it read, and the store rejects stale writes.
type Lead struct {
	ID                      string     `json:"id"`
	Name                    string     `json:"name,omitempty"`
	Company                 string     `json:"company,omitempty"`
	Phone                   string     `json:"phone,omitempty"`
	Status                  LeadStatus `json:"status"`
	QualificationScore      float64    `json:"qualification_score"`
	SentimentScore          float64    `json:"sentiment_score"`
	EngagementScore         float64    `json:"engagement_score"`
	PreviousEngagementScore float64    `json:"previous_engagement_score"`
	LastContactDate         time.Time  `json:"last_contact_date"`
	StatusUpdatedAt         time.Time  `json:"status_updated_at"`
	Version                 int64      `json:"version"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
}

// Context derives the scorer-facing lead context from the lead record.
func (l Lead) Context() LeadContext {
	return LeadContext{LeadID: l.ID, Name: l.Name, Company: l.Company, Status: l.Status}
}

// ApplyTimeline folds a completed analysis run into the lead's signal state.
// Only sentiment and contact recency are owned by the analysis pipeline;
// engagement scores are maintained by the caller that computes them.
func (l *Lead) ApplyTimeline(tl SentimentTimeline, at time.Time) {
	l.SentimentScore = tl.OverallSentiment.Score
	l.LastContactDate = at
	l.UpdatedAt = at
}
