package names

import (
	"regexp"
	"strings"

	"github.com/hyperifyio/gopii/internal/aggregate"
	"github.com/hyperifyio/gopii/internal/normalize"
)

var singleCapsRe = regexp.MustCompile(`^\p{Lu}{1,}(?:[-']\p{Lu}+)*$`)

const (
	minBlockLines = 2
	maxBlockLines = 6
)

// NumberedStrategy reads names printed one word per line under a radicado or
// long number, as OCR often segments table cells:
//
//	11001-31-03-001-2019-00123-00
//	PÉREZ
//	GÓMEZ
//	JUAN
type NumberedStrategy struct{}

func (NumberedStrategy) Name() string { return "numbered" }

func (NumberedStrategy) Find(ctx *Context) []aggregate.Candidate {
	long := ctx.Rules.Cedula.LongNumericLine
	var out []aggregate.Candidate
	for i := 0; i < len(ctx.Lines); i++ {
		if !long.MatchString(normalize.Fold(ctx.Lines[i].Text)) {
			continue
		}
		var words []string
		start, end := -1, -1
		j := i + 1
		for ; j < len(ctx.Lines); j++ {
			s := strings.TrimSpace(ctx.Lines[j].Text)
			if s == "" {
				continue
			}
			if !singleCapsRe.MatchString(s) {
				break
			}
			if start < 0 {
				start = ctx.Lines[j].Start + strings.Index(ctx.Lines[j].Text, s)
			}
			end = ctx.Lines[j].Start + strings.Index(ctx.Lines[j].Text, s) + len(s)
			words = append(words, s)
		}
		if len(words) >= minBlockLines && len(words) <= maxBlockLines {
			out = append(out, aggregate.Candidate{Raw: strings.Join(words, " "), Start: start, End: end})
		}
		if len(words) > 0 {
			i = j - 1
		}
	}
	return out
}
