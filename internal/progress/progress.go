// Package progress tracks how many people were processed and confirmed and
// prints the running match rate.
package progress

import (
	"errors"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

// ErrNothingProcessed is returned when a report is requested before any
// record has been processed.
var ErrNothingProcessed = errors.New("no records processed")

// Counters is the running tally for one process. It is a value: Record
// returns the updated copy.
type Counters struct {
	Processed int
	Confirmed int
}

// Record counts one processed person.
func (c Counters) Record(confirmed bool) Counters {
	c.Processed++
	if confirmed {
		c.Confirmed++
	}
	return c
}

// Percent returns floor(100 * Confirmed / Processed).
func (c Counters) Percent() (int, error) {
	if c.Processed < 1 {
		return 0, ErrNothingProcessed
	}
	return 100 * c.Confirmed / c.Processed, nil
}

var (
	matchStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	noMatchStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	statsStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))
)

// Reporter writes per-record outcomes and running totals.
type Reporter struct {
	w     io.Writer
	style bool
}

// NewReporter writes to w. When styled is false the output is plain text.
func NewReporter(w io.Writer, styled bool) *Reporter {
	return &Reporter{w: w, style: styled}
}

func (r *Reporter) render(s lipgloss.Style, text string) string {
	if !r.style {
		return text
	}
	return s.Render(text)
}

// Outcome prints "n: Name - Match!" or "n: Name - :(".
func (r *Reporter) Outcome(n int, name string, confirmed bool) error {
	var line string
	if confirmed {
		line = r.render(matchStyle, fmt.Sprintf("%d: %s - Match!", n, name))
	} else {
		line = r.render(noMatchStyle, fmt.Sprintf("%d: %s - :(", n, name))
	}
	_, err := fmt.Fprintln(r.w, line)
	return err
}

// Report prints the totals. The caller must have processed at least one record.
func (r *Reporter) Report(c Counters) error {
	pct, err := c.Percent()
	if err != nil {
		return err
	}
	line := fmt.Sprintf("Total: %d     Matches: %d     Percent Matched: %d%%", c.Processed, c.Confirmed, pct)
	_, err = fmt.Fprintln(r.w, r.render(statsStyle, line))
	return err
}
