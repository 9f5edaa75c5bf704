package decision

import "screener/internal/domain"

// Priority orders review work.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Route says where a decision goes for follow-up. It never changes the action.
type Route struct {
	Queue            string   `json:"queue"`
	Priority         Priority `json:"priority"`
	SLAHours         int      `json:"sla_hours"`
	RequiresApproval bool     `json:"requires_approval"`
	Notify           bool     `json:"notify"`
	EscalationPath   string   `json:"escalation_path,omitempty"`
}

var slaHours = map[domain.Action]map[Priority]int{
	domain.ActionClear:    {PriorityLow: 0, PriorityMedium: 0, PriorityHigh: 0, PriorityCritical: 0},
	domain.ActionEscalate: {PriorityLow: 48, PriorityMedium: 12, PriorityHigh: 4, PriorityCritical: 1},
	domain.ActionBlock:    {PriorityLow: 24, PriorityMedium: 8, PriorityHigh: 2, PriorityCritical: 0},
}

const defaultSLAHours = 24

// priorityListFloor is the lowest SourceList.Priority whose matches are
// worked ahead of others.
var priorityListFloor = domain.SourceUN.Priority()

// PriorityFor derives review priority from the risk level. An exact alias
// match on a block is always critical. A non-clear decision whose top
// candidate comes from a priority list is raised one level.
func PriorityFor(d domain.Decision, risk domain.RiskLevel) Priority {
	if d.Action == domain.ActionBlock && len(d.MatchedCandidates) > 0 && d.MatchedCandidates[0].Exact {
		return PriorityCritical
	}
	p := PriorityLow
	switch risk {
	case domain.RiskHigh:
		p = PriorityHigh
	case domain.RiskMedium:
		p = PriorityMedium
	}
	if d.Action != domain.ActionClear && len(d.MatchedCandidates) > 0 &&
		d.MatchedCandidates[0].Source.Priority() >= priorityListFloor {
		p = p.raise()
	}
	return p
}

func (p Priority) raise() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// Routing maps an action and priority to a review queue.
func Routing(action domain.Action, p Priority) Route {
	r := Route{Priority: p, SLAHours: defaultSLAHours}
	if sla, ok := slaHours[action][p]; ok {
		r.SLAHours = sla
	}

	switch action {
	case domain.ActionClear:
		r.Queue = "auto_processed"
	case domain.ActionEscalate:
		r.Queue = "senior_analyst"
		r.RequiresApproval = true
		r.Notify = true
		r.EscalationPath = "compliance_manager"
	case domain.ActionBlock:
		r.Queue = "immediate_action"
		r.RequiresApproval = true
		r.Notify = true
		r.EscalationPath = "compliance_manager"
	default:
		r.Queue = "analyst_review"
		r.RequiresApproval = true
		r.Notify = true
	}
	return r
}
