package lint

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Violation is a single finding at one location.
type Violation struct {
	Rule     Rule     `json:"rule"`
	Severity Severity `json:"severity"`
	Path     string   `json:"path"`
	Line     int      `json:"line,omitempty"`
	Message  string   `json:"message"`
}

// Report aggregates every finding from one pass over the content tree.
type Report struct {
	Checked    int         `json:"checked"`
	Errors     int         `json:"errors"`
	Warnings   int         `json:"warnings"`
	Violations []Violation `json:"violations"`
}

// Clean reports whether the run found no errors. Warnings do not fail a run.
func (r *Report) Clean() bool { return r.Errors == 0 }

func (r *Report) add(v Violation) {
	switch v.Severity {
	case SeverityError:
		r.Errors++
	case SeverityWarning:
		r.Warnings++
	}
	r.Violations = append(r.Violations, v)
}

func (r *Report) sort() {
	sort.SliceStable(r.Violations, func(i, j int) bool {
		a, b := r.Violations[i], r.Violations[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Rule < b.Rule
	})
}

// WriteText renders the report in compiler style: path:line: severity: message.
func (r *Report) WriteText(w io.Writer) error {
	for _, v := range r.Violations {
		var err error
		if v.Line > 0 {
			_, err = fmt.Fprintf(w, "%s:%d: %s: %s [%s]\n", v.Path, v.Line, v.Severity, v.Message, v.Rule)
		} else {
			_, err = fmt.Fprintf(w, "%s: %s: %s [%s]\n", v.Path, v.Severity, v.Message, v.Rule)
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%d files checked: %d errors, %d warnings\n", r.Checked, r.Errors, r.Warnings)
	return err
}

// WriteJSON renders the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
