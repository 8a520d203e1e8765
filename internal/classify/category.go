// Package classify implements the two-stage classification pipeline: a cheap
// batch filter over message headers and a per-message deep analysis of the
// body. Both stages talk to an OpenAI-compatible chat endpoint and share one
// strict parse-and-validate boundary for category labels.
package classify

import "strings"

// Category is a coarse message label. The set is closed: anything a model
// returns outside it collapses to CategoryUnknown at the parse boundary.
type Category string

const (
	// CategoryTrash is terminal: trash never reaches deep analysis.
	CategoryTrash    Category = "TRASH"
	CategoryPaper    Category = "PAPER"
	CategoryReview   Category = "REVIEW"
	CategoryBilling  Category = "BILLING"
	CategoryNotice   Category = "NOTICE"
	CategoryExam     Category = "EXAM"
	CategoryPersonal Category = "PERSONAL"
	CategoryUnknown  Category = "UNKNOWN"

	// CategoryNoise is assigned by the spam override during deep analysis.
	// It is terminal like trash but records that the message looked academic
	// at first glance.
	CategoryNoise Category = "NOISE"
)

// categories holds every valid label, including the deep-analysis-only noise
// label.
var categories = map[Category]bool{
	CategoryTrash:    true,
	CategoryPaper:    true,
	CategoryReview:   true,
	CategoryBilling:  true,
	CategoryNotice:   true,
	CategoryExam:     true,
	CategoryPersonal: true,
	CategoryUnknown:  true,
	CategoryNoise:    true,
}

// ParseCategory maps an arbitrary model-produced string onto the closed
// category set. Matching is case-insensitive and tolerant of surrounding
// whitespace; everything unrecognized becomes CategoryUnknown. This is the
// single entry point for labels crossing the LLM boundary.
func ParseCategory(s string) Category {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	if categories[c] {
		return c
	}
	return CategoryUnknown
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	return categories[c]
}

// Terminal reports whether messages with this label skip deep analysis and
// routing.
func (c Category) Terminal() bool {
	return c == CategoryTrash || c == CategoryNoise
}

// NeedsDeepAnalysis reports whether the coarse label warrants a stage-2 pass
// over the message body. Paper and review mail carries structure worth
// extracting; notices, exams and personal mail need a body read to judge
// importance and required action; unknown gets a second opinion. Trash is
// terminal, and billing routes on the coarse label alone with its facts
// extracted by the billing handler.
func (c Category) NeedsDeepAnalysis() bool {
	switch c {
	case CategoryPaper, CategoryReview, CategoryNotice, CategoryExam, CategoryPersonal, CategoryUnknown:
		return true
	default:
		return false
	}
}
