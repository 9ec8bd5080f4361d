package core

// categoryThemes is the static category-to-theme table used for the
// dashboard theme rollup. Could move to configuration later if themes
// become user-editable.
var categoryThemes = map[string]string{
	"groceries":     "Living",
	"rent":          "Housing",
	"utilities":     "Housing",
	"salary":        "Income",
	"investment":    "Wealth",
	"entertainment": "Leisure",
	"travel":        "Leisure",
}

// ThemeForCategory maps a category key onto its dashboard theme.
func ThemeForCategory(categoryKey string) string {
	if theme, ok := categoryThemes[categoryKey]; ok {
		return theme
	}
	return "Other"
}

// goalThemeNames labels the numeric goal themes used by the planner.
var goalThemeNames = map[int]string{
	1: "Health",
	2: "Growth",
	3: "Finance & Wealth",
	4: "Tribe",
	5: "Home",
}

// GoalThemeName labels a goal theme id, defaulting to General.
func GoalThemeName(theme int) string {
	if name, ok := goalThemeNames[theme]; ok {
		return name
	}
	return "General"
}
