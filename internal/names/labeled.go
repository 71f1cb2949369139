package names

import (
	"regexp"
	"strings"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/normalize"
)

var fieldLabelRe = regexp.MustCompile(`(?i)(primer|segundo)[ \t]+(apellido|nombre)s?[ \t]*:`)

// fieldOrder is the order in which collected fields form the full name.
var fieldOrder = []string{"primer nombre", "segundo nombre", "primer apellido", "segundo apellido"}

var placeholders = map[string]bool{
	"ninguna": true, "ninguno": true, "none": true, "n/a": true, "na": true,
	"-": true, "--": true, "x": true, "xx": true, "xxx": true, "no aplica": true, "sin": true,
}

// LabeledStrategy reads form fields such as "Primer Apellido: PÉREZ". Fields
// collect into a record until a field repeats or the page ends; each record
// becomes one candidate.
type LabeledStrategy struct{}

func (LabeledStrategy) Name() string { return "labeled" }

type fieldRecord struct {
	values     map[string]string
	start, end int
}

func (r *fieldRecord) reset() {
	r.values = map[string]string{}
	r.start, r.end = -1, -1
}

func (r *fieldRecord) set(key, value string, start, end int) {
	r.values[key] = value
	if r.start < 0 || start < r.start {
		r.start = start
	}
	if end > r.end {
		r.end = end
	}
}

func (r *fieldRecord) flush() (aggregate.Candidate, bool) {
	defer r.reset()
	var parts []string
	for _, k := range fieldOrder {
		if v := r.values[k]; v != "" {
			parts = append(parts, v)
		}
	}
	if len(parts) == 0 {
		return aggregate.Candidate{}, false
	}
	return aggregate.Candidate{Raw: strings.Join(parts, " "), Start: r.start, End: r.end}, true
}

func (LabeledStrategy) Find(ctx *Context) []aggregate.Candidate {
	var out []aggregate.Candidate
	var rec fieldRecord
	rec.reset()
	consumed := -1
	for li, line := range ctx.Lines {
		if li <= consumed {
			continue
		}
		labels := fieldLabelRe.FindAllStringSubmatchIndex(line.Text, -1)
		for i, m := range labels {
			key := normalize.Fold(line.Text[m[2]:m[3]]) + " " + normalize.Fold(line.Text[m[4]:m[5]])
			valStart, valEnd := m[1], len(line.Text)
			if i+1 < len(labels) {
				valEnd = labels[i+1][0]
			}
			value := strings.TrimSpace(line.Text[valStart:valEnd])
			end := line.Start + valEnd
			if value == "" && i == len(labels)-1 {
				// one-line lookahead for a value printed under its label
				if next, ok := nextNonEmpty(ctx.Lines, li+1); ok && !fieldLabelRe.MatchString(ctx.Lines[next].Text) {
					value = strings.TrimSpace(ctx.Lines[next].Text)
					end = ctx.Lines[next].End()
					consumed = next
				}
			}
			if _, seen := rec.values[key]; seen {
				if c, ok := rec.flush(); ok {
					out = append(out, c)
				}
			}
			if placeholders[normalize.Fold(value)] {
				value = ""
			}
			rec.set(key, value, line.Start+m[0], end)
		}
	}
	if c, ok := rec.flush(); ok {
		out = append(out, c)
	}
	return out
}

func nextNonEmpty(lines []Line, from int) (int, bool) {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i].Text) != "" {
			return i, true
		}
	}
	return 0, false
}
