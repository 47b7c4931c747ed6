package services

import (
	"fmt"
	"strings"

	"github.com/complypilot/comply-core/internal/domain/entities"
)

// pendingPlaceholders are narrative lines an upstream reviewer writes while
// waiting on a downstream reviewer. Once the downstream trail exists, these
// are stale and must not appear next to the real outcome.
var pendingPlaceholders = []string{
	"(pending)",
	"awaiting downstream review",
	"not yet delegated",
}

// MergeTrails combines two reviewers' audit narratives into one ordered
// list, each line prefixed with its origin. Order is first-trail lines then
// second-trail lines; there is no cross-interleaving. When the second trail
// is non-empty, first-trail lines that are only pending placeholders are
// dropped.
func MergeTrails(a, b entities.Trail) []string {
	merged := make([]string, 0, len(a.Messages)+len(b.Messages))

	for _, msg := range a.Messages {
		if len(b.Messages) > 0 && isPendingPlaceholder(msg) {
			continue
		}
		merged = append(merged, prefixed(a.Origin, msg))
	}
	for _, msg := range b.Messages {
		merged = append(merged, prefixed(b.Origin, msg))
	}
	return merged
}

// isPendingPlaceholder reports whether a line is a stale "still pending"
// marker.
func isPendingPlaceholder(msg string) bool {
	lower := strings.ToLower(msg)
	for _, placeholder := range pendingPlaceholders {
		if strings.Contains(lower, placeholder) {
			return true
		}
	}
	return false
}

func prefixed(origin, msg string) string {
	if origin == "" {
		return msg
	}
	return fmt.Sprintf("[%s] %s", origin, msg)
}
