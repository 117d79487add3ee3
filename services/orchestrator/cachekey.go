package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// Cache keys are derived from the operation name plus normalized arguments
// so identical calls land on the same slot regardless of argument order
// where order carries no meaning (the platform list).

func searchKey(keyword string, platforms []string, maxPages int) string {
	sorted := make([]string, len(platforms))
	copy(sorted, platforms)
	sort.Strings(sorted)
	return fmt.Sprintf("search:%s|platforms=%s|pages=%d",
		strings.ToLower(strings.TrimSpace(keyword)),
		strings.Join(sorted, ","),
		maxPages)
}

func detailKey(platform, productID string) string {
	return fmt.Sprintf("details:%s:%s", platform, productID)
}

func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}
