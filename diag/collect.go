package diag

// CollectSink buffers every reported diagnostic in memory instead of
// printing them, for use by tests that assert on exact diagnostic text.
type CollectSink struct {
	Diagnostics []Diagnostic
}

// NewCollectSink returns an empty CollectSink.
func NewCollectSink() *CollectSink {
	return &CollectSink{}
}

func (c *CollectSink) Report(d Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

func (c *CollectSink) ErrorCount() int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.Severity == SeverityError {
			n++
		}
	}
	return n
}

func (c *CollectSink) WarningCount() int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.Severity == SeverityWarning {
			n++
		}
	}
	return n
}

// Messages returns just the message text of every diagnostic, in report
// order, for terse test assertions.
func (c *CollectSink) Messages() []string {
	out := make([]string, len(c.Diagnostics))
	for i, d := range c.Diagnostics {
		out[i] = d.Message
	}
	return out
}
