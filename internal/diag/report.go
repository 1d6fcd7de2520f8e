package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// ReportOpts configures Report.
type ReportOpts struct {
	Color bool
	// Construct prints the offending construct on its own line.
	Construct bool
}

// ColorEnabled reports whether f is a terminal that should get coloured
// output.
func ColorEnabled(f *os.File) bool {
	if f == nil || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits int
}

// Report writes one line per diagnostic:
//
//	<method>: <SEV> <CODE>: <message>
//
// Expects bag.Sort() to have been called when a stable order matters.
func Report(w io.Writer, bag *Bag, opts ReportOpts) error {
	if w == nil || bag == nil {
		return nil
	}
	sevColors := map[Severity]*color.Color{
		SevError:   color.New(color.FgRed, color.Bold),
		SevWarning: color.New(color.FgYellow, color.Bold),
		SevInfo:    color.New(color.FgCyan),
	}
	methodColor := color.New(color.Bold)
	constructColor := color.New(color.Faint)
	for _, c := range sevColors {
		setColor(c, opts.Color)
	}
	setColor(methodColor, opts.Color)
	setColor(constructColor, opts.Color)

	for _, d := range bag.Items() {
		where := d.Method
		if where == "" {
			where = "<module>"
		}
		if _, err := fmt.Fprintf(w, "%s: %s %s: %s\n",
			methodColor.Sprint(where),
			sevColors[d.Severity].Sprint(d.Severity.String()),
			d.Code.ID(),
			d.Message,
		); err != nil {
			return err
		}
		if opts.Construct && d.Construct != "" {
			if _, err := fmt.Fprintf(w, "    %s\n", constructColor.Sprint(d.Construct)); err != nil {
				return err
			}
		}
	}
	if n := bag.Dropped(); n > 0 {
		if _, err := fmt.Fprintf(w, "%d more diagnostics not shown\n", n); err != nil {
			return err
		}
	}
	return nil
}

func setColor(c *color.Color, on bool) {
	if on {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
}
