// Package health computes progress/health scores for project plans.
package health

import (
	"time"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/plantree"
)

// PlanHealth represents the computed health of a project plan.
type PlanHealth struct {
	Total      int `json:"total"`      // 0-100
	Completion int `json:"completion"` // 0-40
	Schedule   int `json:"schedule"`   // 0-30
	Flow       int `json:"flow"`       // 0-20
	Recency    int `json:"recency"`    // 0-10

	TaskCount    int `json:"taskCount"`
	DoneCount    int `json:"doneCount"`
	OverdueCount int `json:"overdueCount"`
	BlockedCount int `json:"blockedCount"`
}

// Scorer computes health scores for plans.
type Scorer struct {
	// Now is replaceable in tests; defaults to time.Now.
	Now func() time.Time
}

// NewScorer returns a new plan Scorer.
func NewScorer() *Scorer {
	return &Scorer{Now: time.Now}
}

// Score computes a health score (0-100) for a plan: completion ratio,
// schedule pressure (overdue tasks), flow (dependency-blocked tasks), and
// how recently the document changed.
func (s *Scorer) Score(project *models.Project) *PlanHealth {
	now := s.Now()
	h := &PlanHealth{}

	for node := range plantree.Walk(project) {
		h.TaskCount++
		t := node.Task
		if t.Completed {
			h.DoneCount++
			continue
		}
		if t.Due != nil && t.Due.Before(now) {
			h.OverdueCount++
		}
	}
	h.BlockedCount = len(plantree.Blocked(project))

	if h.TaskCount == 0 {
		// An empty plan is neither healthy nor sick; call it neutral.
		h.Completion = 20
		h.Schedule = 30
		h.Flow = 20
		h.Recency = scoreRecency(project.UpdatedAt, now, 10)
		h.Total = h.Completion + h.Schedule + h.Flow + h.Recency
		return h
	}

	h.Completion = int(40 * float64(h.DoneCount) / float64(h.TaskCount))

	open := h.TaskCount - h.DoneCount
	if open == 0 {
		h.Schedule = 30
		h.Flow = 20
	} else {
		h.Schedule = int(30 * (1 - float64(h.OverdueCount)/float64(open)))
		h.Flow = int(20 * (1 - float64(h.BlockedCount)/float64(open)))
	}

	h.Recency = scoreRecency(project.UpdatedAt, now, 10)
	h.Total = h.Completion + h.Schedule + h.Flow + h.Recency
	return h
}

// scoreRecency converts time since last plan update to points.
func scoreRecency(t, now time.Time, maxPoints int) int {
	if t.IsZero() {
		return 0
	}
	days := int(now.Sub(t).Hours() / 24)
	switch {
	case days <= 1:
		return maxPoints
	case days <= 7:
		return int(float64(maxPoints) * 0.7)
	case days <= 30:
		return int(float64(maxPoints) * 0.4)
	default:
		return int(float64(maxPoints) * 0.1)
	}
}
