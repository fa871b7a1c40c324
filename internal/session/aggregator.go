package session

import (
	"sort"
	"time"

	"github.com/formsight-data/form.report/internal/feedback"
	"github.com/formsight-data/form.report/internal/pose"
)

// SummaryItem is one merged entry in the session summary: a representative
// feedback item plus how many reps raised it.
type SummaryItem struct {
	feedback.Item
	Count int `json:"count"`
}

// Aggregate merges a session's feedback list into the presentation summary:
// duplicate types are grouped with a count, entries are ordered by the
// fixed priority table then by timestamp, and a session whose only entries
// are positive/detection-quality collapses to a single good-form item.
//
// The output is a deterministic, idempotent function of the input list;
// callers must only invoke it once the session is terminal, so the input
// can no longer change underneath the sort.
func Aggregate(items []feedback.Item) []SummaryItem {
	if len(items) == 0 {
		return nil
	}

	// Group by type, keeping the earliest item as representative.
	byType := make(map[feedback.Type]*SummaryItem)
	order := make([]feedback.Type, 0, len(items))
	for _, it := range items {
		if g, ok := byType[it.Type]; ok {
			g.Count++
			if earlier(it.FrameTS, g.FrameTS) {
				g.Item = it
			}
			continue
		}
		byType[it.Type] = &SummaryItem{Item: it, Count: 1}
		order = append(order, it.Type)
	}

	// A set with nothing but positive/detection-quality entries collapses
	// to the single good-form representative.
	onlyGood := true
	for typ := range byType {
		if typ != feedback.TypePositive && typ != feedback.TypeDetectionQuality {
			onlyGood = false
			break
		}
	}
	if onlyGood {
		if g, ok := byType[feedback.TypePositive]; ok {
			return []SummaryItem{*g}
		}
		// Only detection-quality entries: still a good-form session as
		// far as the rules could see.
		return []SummaryItem{{
			Item:  feedback.NewItem(feedback.TypePositive, pose.ModeLive, 0, time.Time{}),
			Count: 1,
		}}
	}

	summary := make([]SummaryItem, 0, len(order))
	for _, typ := range order {
		summary = append(summary, *byType[typ])
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].Priority != summary[j].Priority {
			return summary[i].Priority < summary[j].Priority
		}
		return earlier(summary[i].FrameTS, summary[j].FrameTS)
	})
	return summary
}

// earlier orders optional frame timestamps; items without one sort after
// items that carry one.
func earlier(a, b *time.Time) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return a.Before(*b)
	}
}
