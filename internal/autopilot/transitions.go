package autopilot

import (
	"log"

	"magabot/internal/models"
)

// validTransitions lists the allowed stage moves. Forward moves go one step at
// a time; Failed may only return to the stage that failed (checked in transition).
var validTransitions = map[models.Stage]map[models.Stage]bool{
	models.StageDiscover: {
		models.StageApply:  true,
		models.StageFailed: true,
	},
	models.StageApply: {
		models.StageInterview: true,
		models.StageFailed:    true,
	},
	models.StageInterview: {
		models.StageNegotiate: true,
		models.StageFailed:    true,
	},
	models.StageNegotiate: {
		models.StageClose:  true,
		models.StageFailed: true,
	},
	models.StageClose: {
		models.StageDone:   true,
		models.StageFailed: true,
	},
	models.StageFailed: {
		models.StageDiscover:  true,
		models.StageApply:     true,
		models.StageInterview: true,
		models.StageNegotiate: true,
		models.StageClose:     true,
	},
}

// canTransition reports whether c may move to the desired stage
func canTransition(c *models.Case, desired models.Stage) bool {
	allowed, exists := validTransitions[c.Stage]
	if !exists || !allowed[desired] {
		return false
	}
	if c.Stage == models.StageFailed && desired != c.FailedStage {
		return false
	}
	return true
}

// transition moves c to desired and records the visit. Invalid moves are
// rejected and leave the case untouched.
func (m *Machine) transition(c *models.Case, desired models.Stage, note string) bool {
	if !canTransition(c, desired) {
		log.Printf("⚠️ [STATE] Invalid case transition: %s → %s (rejected, case %s)", c.Stage, desired, c.ID)
		return false
	}
	from := c.Stage
	now := m.now()
	c.Stage = desired
	c.History = append(c.History, models.StageVisit{Stage: desired, At: now, Note: note})
	c.UpdatedAt = now
	if m.deps.Observer != nil {
		m.deps.Observer.ObserveTransition(string(from), string(desired))
	}
	return true
}
