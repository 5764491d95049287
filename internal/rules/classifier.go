package rules

// Classifier maps batches of raw lines to events. It holds no state beyond
// its table and is safe for concurrent use.
type Classifier struct {
	table Table
}

func NewClassifier(table Table) *Classifier {
	return &Classifier{table: table}
}

func (c *Classifier) Table() Table { return c.table }

// Classify emits one event per (line, matching rule) pair. Events follow
// input line order; events for the same line follow table order.
func (c *Classifier) Classify(lines []string) []Event {
	var events []Event
	for _, line := range lines {
		for _, r := range c.table.rules {
			if data, ok := r.match(line); ok {
				events = append(events, Event{Name: r.Name, RawData: data})
			}
		}
	}
	return events
}
