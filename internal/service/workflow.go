package service

import (
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/models"
)

// Transitions maps a current category to the categories a ticket may move to
type Transitions map[models.StatusCategory][]models.StatusCategory

// DefaultTransitions is the table applied in strict mode
func DefaultTransitions() Transitions {
	return Transitions{
		models.CategoryNew:      {models.CategoryInWork, models.CategoryWaiting, models.CategoryLost},
		models.CategoryInWork:   {models.CategoryWaiting, models.CategoryFinished, models.CategoryLost},
		models.CategoryWaiting:  {models.CategoryInWork, models.CategoryFinished, models.CategoryLost},
		models.CategoryFinished: {models.CategoryWon, models.CategoryLost, models.CategoryCourier},
		models.CategoryCourier:  {models.CategoryWon, models.CategoryLost},
	}
}

// Policy decides whether a ticket may change category. In open mode every
// move is allowed, including reopening a final ticket.
type Policy struct {
	strict    bool
	table     Transitions
	overrides map[string]bool
}

// NewPolicy builds the policy from configuration
func NewPolicy(cfg config.WorkflowConfig) *Policy {
	p := &Policy{
		strict:    cfg.Mode == config.WorkflowStrict,
		table:     DefaultTransitions(),
		overrides: make(map[string]bool),
	}
	for _, role := range cfg.OverrideRoles {
		p.overrides[role] = true
	}
	return p
}

// Strict reports whether the transition table is enforced
func (p *Policy) Strict() bool {
	return p.strict
}

// Allow reports whether role may move a ticket from one category to another
func (p *Policy) Allow(from, to models.StatusCategory, role string) bool {
	if !p.strict || from == to || p.overrides[role] {
		return true
	}
	for _, c := range p.table[from] {
		if c == to {
			return true
		}
	}
	return false
}
