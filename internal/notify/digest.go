package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuqing-ac/mailtriage/internal/classify"
)

// Item is one processed message as seen by the digest.
type Item struct {
	Category    classify.Category
	Subject     string
	Summary     string
	Importance  int
	NeedsAction bool
}

const (
	digestLimit = 10
	alertLimit  = 5
)

var categoryIcons = map[classify.Category]string{
	classify.CategoryPaper:    "📄",
	classify.CategoryReview:   "📝",
	classify.CategoryBilling:  "💳",
	classify.CategoryNotice:   "📢",
	classify.CategoryExam:     "📋",
	classify.CategoryPersonal: "👤",
	classify.CategoryUnknown:  "📧",
	classify.CategoryTrash:    "🗑️",
	classify.CategoryNoise:    "🗑️",
}

func icon(c classify.Category) string {
	if ic, ok := categoryIcons[c]; ok {
		return ic
	}
	return "📧"
}

// urgent marks items worth immediate attention.
func urgent(it Item) bool {
	return it.Importance >= 4 || it.NeedsAction
}

func onlyImportant(items []Item) []Item {
	var out []Item
	for _, it := range items {
		if !it.Category.Terminal() && urgent(it) {
			out = append(out, it)
		}
	}
	return out
}

// formatDigest renders one line per non-trash message, capped at digestLimit.
func formatDigest(items []Item, now time.Time) string {
	var kept []Item
	for _, it := range items {
		if !it.Category.Terminal() {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📬 %d new message(s)\n%s\n\n", len(kept), now.Format("15:04"))
	for i, it := range kept {
		if i == digestLimit {
			fmt.Fprintf(&b, "... and %d more\n", len(kept)-digestLimit)
			break
		}
		mark := ""
		if urgent(it) {
			mark = "⚡"
		}
		line := it.Summary
		if line == "" {
			line = it.Subject
		}
		fmt.Fprintf(&b, "%s%s %s\n", icon(it.Category), mark, line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatImportant renders the urgent-only alert, capped at alertLimit.
func formatImportant(items []Item) string {
	if len(items) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("⚠️ Important mail\n\n")
	for i, it := range items {
		if i == alertLimit {
			fmt.Fprintf(&b, "... and %d more\n", len(items)-alertLimit)
			break
		}
		fmt.Fprintf(&b, "• %s\n", it.Subject)
		if it.Summary != "" {
			fmt.Fprintf(&b, "  %s\n", it.Summary)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatSummary renders category counts only, trash included.
func formatSummary(items []Item, now time.Time) string {
	if len(items) == 0 {
		return ""
	}

	counts := map[classify.Category]int{}
	for _, it := range items {
		counts[it.Category]++
	}

	order := []classify.Category{
		classify.CategoryPaper, classify.CategoryReview, classify.CategoryBilling,
		classify.CategoryNotice, classify.CategoryExam, classify.CategoryPersonal,
		classify.CategoryUnknown, classify.CategoryNoise, classify.CategoryTrash,
	}
	var parts []string
	for _, c := range order {
		if n := counts[c]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s %s: %d", icon(c), strings.ToLower(string(c)), n))
		}
	}

	return fmt.Sprintf("📬 processed %d message(s)\n%s\n\n%s",
		len(items), now.Format("15:04"), strings.Join(parts, " | "))
}
