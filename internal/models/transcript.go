// Package models defines the core data structures for LeadPulse.
//
// It includes transcript, sentiment-timeline, lead, rule and audit types
// shared across modules.
package models

// MessageRole identifies who produced a transcript message.
type MessageRole string

const (
	// RoleAgent marks a message spoken by the sales agent.
	RoleAgent MessageRole = "agent"
	// RoleLead marks a message spoken by the lead.
	RoleLead MessageRole = "lead"
	// RoleSystem marks synthetic messages (IVR prompts, hold notices).
	RoleSystem MessageRole = "system"
)

// IsValidMessageRole checks if the given role is supported.
func IsValidMessageRole(r MessageRole) bool {
	switch r {
	case RoleAgent, RoleLead, RoleSystem:
		return true
	default:
		return false
	}
}

// ConversationMessage is a single utterance in a finalized call transcript,
// stamped with its offset in seconds from the start of the call.
type ConversationMessage struct {
	Role             MessageRole `json:"role"`
	Content          string      `json:"content"`
	TimestampSeconds float64     `json:"timestamp_seconds"`
}

// ConversationTranscript is a finished call transcript as delivered by the
// call-recording ingestion pipeline. Messages are ordered by timestamp.
type ConversationTranscript struct {
	CallID          string                `json:"call_id"`
	LeadID          string                `json:"lead_id"`
	Messages        []ConversationMessage `json:"messages"`
	DurationSeconds float64               `json:"duration_seconds"`
	TotalWords      int                   `json:"total_words"`
}

// Segment is a bounded time window [StartSeconds, EndSeconds) of a transcript
// together with the messages whose timestamps fall inside it.
type Segment struct {
	StartSeconds float64               `json:"start_seconds"`
	EndSeconds   float64               `json:"end_seconds"`
	Messages     []ConversationMessage `json:"messages"`
}

// LeadText concatenates the content of lead messages in the segment,
// separated by newlines. Returns "" when the lead did not speak.
func (s Segment) LeadText() string {
	var out string
	for _, m := range s.Messages {
		if m.Role != RoleLead {
			continue
		}
		if out != "" {
			out += "\n"
		}
		out += m.Content
	}
	return out
}

// LeadContext carries lead identity hints passed to the sentiment scorer so
// it can disambiguate references in the segment text.
type LeadContext struct {
	LeadID  string     `json:"lead_id"`
	Name    string     `json:"name,omitempty"`
	Company string     `json:"company,omitempty"`
	Status  LeadStatus `json:"status,omitempty"`
}
