package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateSemanticKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		text    string
		context string
		want    string
	}{
		{name: "queue keyword", text: "how long is the wait", context: "queue", want: "queue:queue"},
		{name: "japanese queue keyword", text: "現在の待ち時間", context: "queue", want: "queue:queue"},
		{name: "work order keyword", text: "repair status for bike 12", context: "workshop", want: "workshop:work_order"},
		{name: "inventory keyword", text: "brake parts in stock", context: "", want: "inventory"},
		{name: "japanese inventory keyword", text: "部品の在庫確認", context: "workshop", want: "workshop:inventory"},
		{name: "maintenance keyword", text: "annual inspection due", context: "", want: "maintenance"},
		{name: "customer keyword", text: "lookup customer profile", context: "", want: "customer"},
		{name: "schedule keyword", text: "what are the opening hours", context: "", want: "schedule"},
		{name: "no match falls back", text: "completely unrelated text", context: "misc", want: "misc:general"},
		{name: "empty text", text: "", context: "", want: "general"},
		{name: "case insensitive", text: "QUEUE POSITION", context: "", want: "queue"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, GenerateSemanticKey(tc.text, tc.context))
		})
	}
}

func TestGenerateSemanticKey_SharesSlotForNearDuplicates(t *testing.T) {
	t.Parallel()

	first := GenerateSemanticKey("current queue length", "queue")
	second := GenerateSemanticKey("how many in the queue right now", "queue")
	assert.Equal(t, first, second)
}
