package announce

import (
	"fmt"
	"strings"
)

const (
	summaryLineMax = 160
	ellipsis       = "…"
)

// elideText collapses all whitespace runs to single spaces and truncates
// the result to summaryLineMax characters, marking the cut with an ellipsis.
func elideText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	rs := []rune(s)
	if len(rs) <= summaryLineMax {
		return s
	}
	return string(rs[:summaryLineMax]) + ellipsis
}

// takeOverflowSummary builds the human-readable overflow report for q and
// resets the drop bookkeeping. It returns "" unless the policy is
// DropEvictSummarize and evictions are pending. Destructive: call at most
// once per send that will carry its result.
func (q *queueState) takeOverflowSummary() string {
	if q.dropPolicy != DropEvictSummarize || q.dropped == 0 {
		return ""
	}

	var b strings.Builder
	if q.dropped == 1 {
		b.WriteString("Dropped 1 announce due to cap.")
	} else {
		fmt.Fprintf(&b, "Dropped %d announces due to cap.", q.dropped)
	}
	b.WriteString("\nSummary:")
	for _, line := range q.summaries {
		b.WriteString("\n- ")
		b.WriteString(line)
	}

	q.dropped = 0
	q.summaries = nil
	return b.String()
}

// mergeBatch builds the single outgoing item for a collect-mode batch: the
// overflow summary (if any) followed by each body in original order, each
// numbered and delimited. The merged item carries the metadata envelope of
// the batch's last item.
func mergeBatch(summary string, batch []*Item) *Item {
	last := batch[len(batch)-1]
	cp := *last
	cp.Prompt = batchBody(summary, batch)
	return &cp
}

func batchBody(summary string, batch []*Item) string {
	if len(batch) == 1 && summary == "" {
		return batch[0].Prompt
	}

	var b strings.Builder
	if summary != "" {
		b.WriteString(summary)
	}
	n := len(batch)
	for i, it := range batch {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d/%d] %s", i+1, n, it.Prompt)
	}
	return b.String()
}
