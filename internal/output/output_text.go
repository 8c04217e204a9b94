package output

import (
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/tkjaer/mping/internal/shared"
)

// TextOutput prints one block per target:
//
//	example.com (93.184.216.34)
//	   time 26.25ms, 0% lost, 0.95 - 62.6ms, 0.99 - 74.92ms
type TextOutput struct {
	w        io.Writer
	terminal bool
}

// NewTextOutput writes to w. A summary line is added when w is a terminal.
func NewTextOutput(w io.Writer) *TextOutput {
	t := &TextOutput{w: w}
	if f, ok := w.(*os.File); ok {
		t.terminal = term.IsTerminal(int(f.Fd()))
	}
	return t
}

func (t *TextOutput) WriteReport(report shared.Report) error {
	var b strings.Builder
	lossy := 0
	for _, r := range report.Results {
		if r.Lost > 0 {
			lossy++
		}
		writeResult(&b, r)
	}
	if t.terminal {
		fmt.Fprintf(&b, "--- %d targets, %d with loss, %s ---\n",
			len(report.Results), lossy, report.Duration.Round(time.Millisecond))
	}
	_, err := io.WriteString(t.w, b.String())
	return err
}

func (t *TextOutput) Close() error {
	return nil
}

func writeResult(b *strings.Builder, r shared.TargetResult) {
	b.WriteString(r.Host)
	if r.Address != "" && r.Address != r.Host {
		fmt.Fprintf(b, " (%s)", r.Address)
	}
	if r.PTR != "" && r.PTR != r.Host {
		fmt.Fprintf(b, " [%s]", r.PTR)
	}
	b.WriteString("\n   ")

	if !r.HasRTT() {
		fmt.Fprintf(b, "timeout, %s%% lost", formatMs(r.LossPct))
		if r.Error != "" {
			fmt.Fprintf(b, " (%s)", r.Error)
		}
		b.WriteString("\n")
		return
	}

	fmt.Fprintf(b, "time %sms, %s%% lost", formatMs(r.RTT.Mean), formatMs(r.LossPct))
	for _, p := range r.Percentiles.Keys() {
		fmt.Fprintf(b, ", %s - %sms", shared.FormatPercentile(p), formatMs(r.Percentiles[p]))
	}
	b.WriteString("\n")
}

// formatMs rounds to microsecond precision and drops trailing zeros.
func formatMs(v float64) string {
	return strconv.FormatFloat(math.Round(v*1000)/1000, 'f', -1, 64)
}
