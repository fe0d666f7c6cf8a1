package cache

// Rule names what a domain event must drop from the cache.
type Rule struct {
	Keys     []string
	Prefixes []string
	Contexts []string
	Tags     []string
}

// RuleTable maps domain event names to invalidation rules. The coordinator
// emits an event for every write; routing those events through the table is
// how the cache stays consistent without polling the store.
type RuleTable struct {
	rules map[string]Rule
}

// NewRuleTable returns an empty table.
func NewRuleTable() *RuleTable {
	return &RuleTable{rules: make(map[string]Rule)}
}

// Register adds or replaces the rule for an event.
func (t *RuleTable) Register(event string, rule Rule) {
	if t == nil || event == "" {
		return
	}
	t.rules[event] = rule
}

// Lookup returns the rule for an event, if any.
func (t *RuleTable) Lookup(event string) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	rule, ok := t.rules[event]
	return rule, ok
}

// DefaultQueueRules wires the queue domain events to the keys the coordinator
// caches. Every entry mutation invalidates that entry's snapshot and the
// status aggregate; the end-of-day reset drops the whole queue context.
func DefaultQueueRules() *RuleTable {
	table := NewRuleTable()

	entryMutation := Rule{
		Prefixes: []string{"queue/entry/"},
		Keys:     []string{"queue/status", "queue/active"},
	}
	for _, event := range []string{"queue.entry_added", "queue.called", "queue.served", "queue.cancelled", "queue.no_show", "queue.qr_validated"} {
		table.Register(event, entryMutation)
	}

	table.Register("queue.status_changed", Rule{Contexts: []string{"queue"}})
	table.Register("work_order.completed", Rule{Tags: []string{"work_order"}})

	return table
}
