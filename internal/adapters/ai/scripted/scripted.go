// Package scripted is an offline interview collaborator that walks the YAML script in order
package scripted

import (
	"context"
	"math"
	"strings"

	"turnstile/internal/services/interview/domain"
)

// Collaborator asks the script's questions in order and scores answers by substance
type Collaborator struct{}

// New returns a scripted collaborator
func New() Collaborator { return Collaborator{} }

var _ domain.Collaborator = Collaborator{}

// Next returns the following scripted question, or a final score once the script is exhausted
func (Collaborator) Next(_ context.Context, in domain.CollabInput) (domain.Reply, error) {
	if q, ok := in.Script.QuestionAt(in.Step + 1); ok {
		return domain.Reply{NextQuestion: q}, nil
	}
	answers := make([]string, 0, len(in.History)+1)
	for _, ex := range in.History {
		answers = append(answers, ex.Answer)
	}
	answers = append(answers, in.Answer)
	score := Score(answers)
	return domain.Reply{FinalScore: &score, Closing: in.Script.Closing}, nil
}

// Score rates answers 0-10: two points for answering at all plus up to eight for length,
// saturating at 60 words per answer; rounded to one decimal
func Score(answers []string) float64 {
	if len(answers) == 0 {
		return 0
	}
	total := 0.0
	for _, a := range answers {
		words := len(strings.Fields(a))
		if words == 0 {
			continue
		}
		total += 2 + 8*math.Min(float64(words)/60, 1)
	}
	return math.Round(total/float64(len(answers))*10) / 10
}
