package question

import "math/rand"

// Focus 出题角度，同一主题反复出题时用于拉开差异
type Focus string

const (
	FocusImplementation Focus = "implementation details and code structure"
	FocusComplexity     Focus = "time and space complexity analysis"
	FocusEdgeCases      Focus = "edge cases and error handling"
	FocusTradeoffs      Focus = "algorithm comparison and tradeoffs"
	FocusTheory         Focus = "theoretical foundations"
	FocusApplications   Focus = "practical applications"
)

var allFocuses = []Focus{
	FocusImplementation,
	FocusComplexity,
	FocusEdgeCases,
	FocusTradeoffs,
	FocusTheory,
	FocusApplications,
}

// AllFocuses 返回全部出题角度
func AllFocuses() []Focus {
	out := make([]Focus, len(allFocuses))
	copy(out, allFocuses)
	return out
}

// PickFocus 从随机源中取一个出题角度，给定相同的源结果可复现
func PickFocus(src rand.Source) Focus {
	return allFocuses[rand.New(src).Intn(len(allFocuses))]
}
