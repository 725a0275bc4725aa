package dataset

import "strings"

var (
	answerHints    = []string{"generated", "predicted", "output", "response"}
	referenceHints = []string{"expected", "reference", "target", "ground_truth", "label"}
	contextHints   = []string{"context", "retrieved"}
)

// Roles names the columns a run reads from each row. Empty means the
// dataset has no such column.
type Roles struct {
	Input     string
	Answer    string
	Reference string
	Context   string
}

// ResolveRoles assigns roles by substring match, first column wins. A
// column takes at most one role, checked in the order answer, reference,
// context, input, so "expected_response" is a reference and not an answer.
func ResolveRoles(columns []string) Roles {
	var r Roles
	taken := make(map[string]bool)

	pick := func(hints []string, exclude []string) string {
		for _, c := range columns {
			lc := strings.ToLower(c)
			if taken[c] || !containsAny(lc, hints) || containsAny(lc, exclude) {
				continue
			}
			taken[c] = true
			return c
		}
		return ""
	}

	r.Answer = pick(answerHints, referenceHints)
	r.Reference = pick(referenceHints, nil)
	r.Context = pick(contextHints, nil)
	r.Input = pick(inputHints, nil)
	return r
}

func containsAny(s string, hints []string) bool {
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
