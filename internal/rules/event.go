package rules

// Event is a named record produced when a log line satisfies a rule.
// Events are values: consumers may copy and retain them freely.
type Event struct {
	Name    string `json:"name"`
	RawData string `json:"rawData"`
}
