package stepflow

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// ReportOptions controls WriteBindingReport.
type ReportOptions struct {
	NoColors bool
}

// WriteBindingReport lists every binding class of r with its dependencies,
// step definitions and hooks, followed by any registration faults. It is a
// developer aid for finding where a step is defined.
func WriteBindingReport(w io.Writer, r *Registry, opts ReportOptions) error {
	class := color.New(color.FgCyan, color.Bold)
	kind := color.New(color.FgBlue)
	pattern := color.New(color.FgGreen)
	tag := color.New(color.FgMagenta)
	faint := color.New(color.Faint)
	fault := color.New(color.FgRed, color.Bold)
	if opts.NoColors {
		for _, c := range []*color.Color{class, kind, pattern, tag, faint, fault} {
			c.DisableColor()
		}
	}

	for _, target := range r.Targets() {
		if _, err := class.Fprintf(w, "%s\n", typeName(target)); err != nil {
			return err
		}

		if deps := r.ContextTypesForTarget(target); len(deps) > 0 {
			names := make([]string, len(deps))
			for i, d := range deps {
				names[i] = typeName(d)
			}
			faint.Fprintf(w, "  depends on: %s\n", strings.Join(names, ", "))
		}

		for _, b := range r.StepBindingsForTarget(target) {
			fmt.Fprint(w, "  ")
			kind.Fprintf(w, "%-10s", b.Kind)
			if b.Kind.IsStepDefinition() {
				pattern.Fprintf(w, " %s", b.Pattern)
			}
			fmt.Fprintf(w, " %s", b.Method)
			if b.Tag != "" && b.Tag != AnyTag {
				tag.Fprintf(w, " [%s]", b.Tag)
			}
			if b.Timeout > 0 {
				fmt.Fprintf(w, " timeout=%s", b.Timeout)
			}
			faint.Fprintf(w, " %s\n", b.Callsite)
		}
	}

	if err := r.Err(); err != nil {
		fault.Fprintln(w, "registration faults:")
		for _, line := range strings.Split(err.Error(), "\n") {
			if _, werr := fmt.Fprintf(w, "  %s\n", line); werr != nil {
				return werr
			}
		}
	}
	return nil
}
