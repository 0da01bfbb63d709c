package scan

import (
	"sort"

	"github.com/CodeMonkeyCybersecurity/domainrisk/pkg/types"
)

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func scoreLabel(score int) types.ScoreLabel {
	switch {
	case score >= 90:
		return types.ScoreLabelLowRisk
	case score >= 70:
		return types.ScoreLabelModerate
	case score >= 50:
		return types.ScoreLabelElevated
	default:
		return types.ScoreLabelHighRisk
	}
}

// ComputeCategoryScores starts every category at 100 and subtracts each
// finding's weight from its category, clamped to [0,100]. Pure subtraction:
// any permutation of the same findings yields the same scores.
func ComputeCategoryScores(findings []types.Finding) map[types.Category]int {
	scores := make(map[types.Category]int, 4)
	for _, cat := range types.Categories() {
		scores[cat] = 100
	}
	for _, f := range findings {
		scores[f.Category] = clampScore(scores[f.Category] - f.Weight)
	}
	return scores
}

// ComputeOverallScore derives the full score card. Overall is 100 minus the
// sum of all weights, clamped; it is deliberately NOT an average of the
// category scores, so the two can diverge.
func ComputeOverallScore(findings []types.Finding) types.ScoreCard {
	total := 0
	for _, f := range findings {
		total += f.Weight
	}
	overall := clampScore(100 - total)
	return types.ScoreCard{
		Overall:    overall,
		Label:      scoreLabel(overall),
		Categories: ComputeCategoryScores(findings),
	}
}

// SelectTopFindings returns up to limit findings ordered by severity rank
// descending, ties broken by weight descending. The sort is stable so exact
// ties keep their original order.
func SelectTopFindings(findings []types.Finding, limit int) []types.Finding {
	top := make([]types.Finding, len(findings))
	copy(top, findings)

	sort.SliceStable(top, func(i, j int) bool {
		if top[i].Severity.Rank() != top[j].Severity.Rank() {
			return top[i].Severity.Rank() > top[j].Severity.Rank()
		}
		return top[i].Weight > top[j].Weight
	})

	if limit >= 0 && len(top) > limit {
		top = top[:limit]
	}
	return top
}
