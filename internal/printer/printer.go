// Package printer formats CLI output: colored status lines, multi-part
// error reports and control responses.
package printer

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/fatih/color"

	"github.com/dyluth/nadi/pkg/nadi"
)

func init() {
	// NO_COLOR disables colors; otherwise they are forced on so piped
	// output from `nadi exec` keeps status highlighting.
	if os.Getenv("NO_COLOR") == "" {
		color.NoColor = false
	}
}

// Output destinations, replaced in tests.
var (
	Stdout io.Writer = os.Stdout
	Stderr io.Writer = os.Stderr
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

// Success prints a message in green with a checkmark prefix
func Success(format string, a ...any) {
	green.Fprintf(Stdout, "✓ %s", fmt.Sprintf(format, a...))
}

// Info prints an informational message in the default color
func Info(format string, a ...any) {
	fmt.Fprintf(Stdout, format, a...)
}

// Warning prints a message in yellow with a warning prefix
func Warning(format string, a ...any) {
	yellow.Fprintf(Stdout, "⚠️  %s", fmt.Sprintf(format, a...))
}

// Step prints a step message with emphasis (used in multi-step operations)
func Step(format string, a ...any) {
	cyan.Fprintf(Stdout, "→ %s", fmt.Sprintf(format, a...))
}

// Error prints a title, explanation and suggestions to Stderr and returns an
// error carrying just the title, for Cobra to exit with.
func Error(title string, explanation string, suggestions []string) error {
	return ErrorWithContext(title, explanation, nil, suggestions)
}

// ErrorWithContext is Error with key/value details, printed sorted by key.
func ErrorWithContext(title string, explanation string, context map[string]string, suggestions []string) error {
	red.Fprintf(Stderr, "%s\n\n", title)

	if explanation != "" {
		fmt.Fprintf(Stderr, "%s\n", explanation)
	}

	if len(context) > 0 {
		keys := make([]string, 0, len(context))
		for k := range context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(Stderr, "\n")
		for _, k := range keys {
			fmt.Fprintf(Stderr, "  %s: %s\n", k, context[k])
		}
	}

	switch len(suggestions) {
	case 0:
	case 1:
		fmt.Fprintf(Stderr, "\n%s\n", suggestions[0])
	default:
		fmt.Fprintf(Stderr, "\nEither:\n")
		for i, s := range suggestions {
			fmt.Fprintf(Stderr, "  %d. %s\n", i+1, s)
		}
	}

	return fmt.Errorf("%s", title)
}

// Response prints one control response line: green for confirms and
// listings, red for errors.
func Response(resp *nadi.Response) {
	id := resp.ID
	if id == "" {
		id = "-"
	}
	switch {
	case resp.Type == nadi.TypeContextError:
		red.Fprintf(Stdout, "✗ %s failed [%s]: %s\n", resp.Request, id, resp.Message)
	case resp.Failed():
		red.Fprintf(Stdout, "✗ %s [%s]: %s\n", resp.Type, id, resp.Message)
	case resp.Node != nil:
		green.Fprintf(Stdout, "✓ %s [%s]: %s = node %d\n", resp.Type, id, resp.InstanceName, *resp.Node)
	default:
		green.Fprintf(Stdout, "✓ %s [%s]\n", resp.Type, id)
	}
}
