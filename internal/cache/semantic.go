package cache

import "strings"

// semanticBuckets maps keyword stems to coarse categories. Matching is
// first-hit in declaration order, so more specific stems come first.
var semanticBuckets = []struct {
	bucket string
	stems  []string
}{
	{"queue", []string{"queue", "wait", "position", "turn", "line", "called", "待ち", "順番"}},
	{"work_order", []string{"work order", "workorder", "repair", "job", "service order", "作業"}},
	{"inventory", []string{"inventory", "stock", "part", "parts", "在庫", "部品"}},
	{"maintenance", []string{"maintenance", "inspection", "tune", "点検", "整備"}},
	{"customer", []string{"customer", "client", "member", "顧客"}},
	{"schedule", []string{"schedule", "hour", "open", "close", "営業"}},
}

// GenerateSemanticKey buckets free-text lookups into a coarse category so
// near-duplicate queries share a cache slot. Unmatched text falls back to the
// general bucket; this never fails.
func GenerateSemanticKey(text, cacheContext string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))

	bucket := "general"
	for _, candidate := range semanticBuckets {
		for _, stem := range candidate.stems {
			if strings.Contains(normalized, stem) {
				bucket = candidate.bucket
				break
			}
		}
		if bucket != "general" {
			break
		}
	}

	if cacheContext = strings.TrimSpace(cacheContext); cacheContext != "" {
		return cacheContext + ":" + bucket
	}
	return bucket
}
