package cashflow

import "strings"

// CodeScheme maps chart-of-accounts code prefixes onto cash-flow sections.
// Companies follow the numbering conventions seeded with the default chart;
// a custom chart can supply its own scheme.
type CodeScheme struct {
	Depreciation       []string
	CurrentAssets      []string
	CurrentLiabilities []string
	Investing          []string
	Financing          []string
}

// DefaultCodeScheme matches the seeded chart: 1xx assets, 2xx liabilities,
// 3xx equity, 69x depreciation expense.
func DefaultCodeScheme() CodeScheme {
	return CodeScheme{
		Depreciation:       []string{"690"},
		CurrentAssets:      []string{"120", "130", "140"},
		CurrentLiabilities: []string{"210", "220", "230"},
		Investing:          []string{"150", "160", "170"},
		Financing:          []string{"250", "260", "300", "310"},
	}
}

func matchesPrefix(code string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(code, p) {
			return true
		}
	}
	return false
}

// Classify places a non-cash account code into a section. Anything not
// recognized as investing or financing is treated as operating.
func (s CodeScheme) Classify(code string) Category {
	switch {
	case matchesPrefix(code, s.Investing):
		return CategoryInvesting
	case matchesPrefix(code, s.Financing):
		return CategoryFinancing
	default:
		return CategoryOperating
	}
}
