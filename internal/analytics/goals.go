package analytics

import (
	"sort"
	"strings"

	"finsight/internal/core"
)

// GoalSummary is one goal's funding position against its matched pot.
// An unmatched goal carries a nil pot and a full shortfall.
type GoalSummary struct {
	GoalID        string   `json:"goalId"`
	Title         string   `json:"title"`
	ThemeID       int      `json:"themeId"`
	ThemeName     string   `json:"themeName"`
	EstimatedCost float64  `json:"estimatedCost"`
	PotID         *string  `json:"potId"`
	PotName       *string  `json:"potName"`
	PotBalance    float64  `json:"potBalance"`
	FundedAmount  float64  `json:"fundedAmount"`
	FundedPercent *float64 `json:"fundedPercent"`
	Shortfall     float64  `json:"shortfall"`
}

// ThemeProgress rolls goal funding up to one theme.
type ThemeProgress struct {
	ThemeID            int      `json:"themeId"`
	ThemeName          string   `json:"themeName"`
	GoalCount          int      `json:"goalCount"`
	TotalEstimatedCost float64  `json:"totalEstimatedCost"`
	TotalPotBalance    float64  `json:"totalPotBalance"`
	TotalShortfall     float64  `json:"totalShortfall"`
	FundedPercent      *float64 `json:"fundedPercent"`
}

// GoalAlignment pairs per-goal summaries with their theme rollups.
type GoalAlignment struct {
	Goals  []GoalSummary   `json:"goals"`
	Themes []ThemeProgress `json:"themes"`
}

// GoalProgressEntry is the dashboard's minor-unit view of one goal.
type GoalProgressEntry struct {
	ID            string  `json:"id"`
	Title         string  `json:"title"`
	TargetAmount  int64   `json:"targetAmount"`
	CurrentAmount int64   `json:"currentAmount"`
	LinkedPotName *string `json:"linkedPotName"`
	Status        int     `json:"status"`
}

// BuildGoalAlignment matches goals to pots and computes funding. An
// explicit pot-id link wins; otherwise a case-insensitive substring
// match between goal title and pot name is attempted in both
// directions.
func BuildGoalAlignment(goals []core.Goal, pots []core.Pot) GoalAlignment {
	potByID := make(map[string]core.Pot, len(pots))
	for _, pot := range pots {
		if pot.ID != "" {
			potByID[strings.ToLower(pot.ID)] = pot
		}
	}

	alignment := GoalAlignment{}
	themeTotals := make(map[int]*ThemeProgress)

	for _, goal := range goals {
		matched, ok := matchPot(goal, potByID, pots)

		potBalance := 0.0
		if ok {
			potBalance = float64(matched.BalanceMinor) / 100
		}

		summary := GoalSummary{
			GoalID:        goal.ID,
			Title:         goal.Title,
			ThemeID:       goal.Theme,
			ThemeName:     core.GoalThemeName(goal.Theme),
			EstimatedCost: goal.EstimatedCost,
			PotBalance:    potBalance,
			Shortfall:     0,
		}
		if ok {
			summary.PotID = ptrString(matched.ID)
			summary.PotName = ptrString(matched.Name)
		}
		if goal.EstimatedCost > 0 {
			summary.FundedAmount = potBalance
			if potBalance > goal.EstimatedCost {
				summary.FundedAmount = goal.EstimatedCost
			}
			summary.Shortfall = goal.EstimatedCost - potBalance
			if summary.Shortfall < 0 {
				summary.Shortfall = 0
			}
			percent := potBalance / goal.EstimatedCost * 100
			if percent > 100 {
				percent = 100
			}
			summary.FundedPercent = ptr(round2(percent))
		} else {
			summary.FundedAmount = potBalance
		}

		alignment.Goals = append(alignment.Goals, summary)

		theme := themeTotals[goal.Theme]
		if theme == nil {
			theme = &ThemeProgress{
				ThemeID:   goal.Theme,
				ThemeName: core.GoalThemeName(goal.Theme),
			}
			themeTotals[goal.Theme] = theme
		}
		theme.GoalCount++
		theme.TotalEstimatedCost += goal.EstimatedCost
		theme.TotalPotBalance += potBalance
		theme.TotalShortfall += summary.Shortfall
	}

	for _, theme := range themeTotals {
		if theme.TotalEstimatedCost > 0 {
			percent := theme.TotalPotBalance / theme.TotalEstimatedCost * 100
			if percent > 100 {
				percent = 100
			}
			theme.FundedPercent = ptr(round2(percent))
		}
		alignment.Themes = append(alignment.Themes, *theme)
	}
	sort.Slice(alignment.Themes, func(i, j int) bool {
		return alignment.Themes[i].ThemeID < alignment.Themes[j].ThemeID
	})

	return alignment
}

func matchPot(goal core.Goal, potByID map[string]core.Pot, pots []core.Pot) (core.Pot, bool) {
	if goal.LinkedPotID != "" {
		if pot, ok := potByID[strings.ToLower(goal.LinkedPotID)]; ok {
			return pot, true
		}
	}

	title := strings.ToLower(strings.TrimSpace(goal.Title))
	if title == "" {
		return core.Pot{}, false
	}
	for _, pot := range pots {
		name := strings.ToLower(strings.TrimSpace(pot.Name))
		if name == "" {
			continue
		}
		if strings.Contains(title, name) || strings.Contains(name, title) {
			return pot, true
		}
	}
	return core.Pot{}, false
}

// BuildGoalProgress produces the dashboard goal cards. Amounts are in
// minor units to match the pot balances the banking sync delivers.
// Completed goals are excluded.
func BuildGoalProgress(goals []core.Goal, pots []core.Pot) []GoalProgressEntry {
	potByID := make(map[string]core.Pot, len(pots))
	for _, pot := range pots {
		if pot.ID != "" {
			potByID[strings.ToLower(pot.ID)] = pot
		}
	}

	entries := make([]GoalProgressEntry, 0, len(goals))
	for _, goal := range goals {
		if goal.Status == core.GoalStatusDone {
			continue
		}

		entry := GoalProgressEntry{
			ID:     goal.ID,
			Title:  goal.Title,
			Status: goal.Status,
		}
		if goal.EstimatedCost > 0 {
			entry.TargetAmount = int64(goal.EstimatedCost*100 + 0.5)
		}
		if goal.LinkedPotID != "" {
			if pot, ok := potByID[strings.ToLower(goal.LinkedPotID)]; ok {
				entry.CurrentAmount = pot.BalanceMinor
				entry.LinkedPotName = ptrString(pot.Name)
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func ptrString(s string) *string { return &s }
