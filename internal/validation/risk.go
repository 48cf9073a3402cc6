package validation

import (
	"regexp"

	"github.com/jonathan/queryforge/internal/db"
)

var fileDeletionPattern = regexp.MustCompile(`(?m)(^|[\s;|&(])rm\s`)

// RiskScore computes the commit risk of a step list: one point per query
// step, ten per destructive SQL operation, five per file deletion, and two
// per step as a proxy for surface area.
func RiskScore(steps []db.PipelineStep) int {
	score := 0
	for _, step := range steps {
		score += 2
		switch step.Kind {
		case db.KindQuery:
			score++
			score += 10 * CountDestructiveOperations(step.Content)
		default:
			if fileDeletionPattern.MatchString(step.Content) {
				score += 5
			}
		}
	}
	return score
}

// HasFileDeletion reports whether shell content invokes rm.
func HasFileDeletion(content string) bool {
	return fileDeletionPattern.MatchString(content)
}
