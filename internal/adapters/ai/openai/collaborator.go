package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	perr "turnstile/internal/platform/errors"
	"turnstile/internal/services/interview/domain"

	goopenai "github.com/sashabaranov/go-openai"
)

// Collaborator asks a chat model for the next interview question or a final score
type Collaborator struct {
	client *goopenai.Client
	model  string
	temp   float32
}

// NewCollaborator binds a collaborator to a configured client
func NewCollaborator(c Config) *Collaborator {
	return &Collaborator{client: NewClient(c), model: c.Model, temp: c.Temperature}
}

var _ domain.Collaborator = (*Collaborator)(nil)

const systemPrompt = `You are a friendly interviewer running a structured screening interview over chat.
Role being interviewed for: %s.
Planned questions, in order:
%s
You receive the conversation so far and the candidate's latest answer.
Reply with a JSON object only. Either {"next_question": "..."} to continue, asking one short question
that follows the plan and may briefly react to the answer, or, once the plan is covered,
{"final_score": <number 0-10>, "closing": "..."} to finish.`

type decision struct {
	NextQuestion string   `json:"next_question"`
	FinalScore   *float64 `json:"final_score"`
	Closing      string   `json:"closing"`
}

// Next sends the history plus the latest answer and decodes the model's JSON decision
func (c *Collaborator) Next(ctx context.Context, in domain.CollabInput) (domain.Reply, error) {
	req := goopenai.ChatCompletionRequest{
		Model:          c.model,
		Temperature:    c.temp,
		Messages:       messages(in),
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{Type: goopenai.ChatCompletionResponseFormatTypeJSONObject},
	}
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return domain.Reply{}, MapError(err, "openai chat completion")
	}
	if len(resp.Choices) == 0 {
		return domain.Reply{}, perr.Newf(perr.ErrorCodeUnavailable, "openai: empty completion")
	}
	return decode(resp.Choices[0].Message.Content)
}

func messages(in domain.CollabInput) []goopenai.ChatCompletionMessage {
	var plan strings.Builder
	for i := 0; i < in.Script.Steps(); i++ {
		q, _ := in.Script.QuestionAt(i)
		fmt.Fprintf(&plan, "%d. %s\n", i+1, q)
	}
	role := in.Script.Role
	if role == "" {
		role = "unspecified"
	}
	out := []goopenai.ChatCompletionMessage{{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(systemPrompt, role, plan.String()),
	}}
	for _, ex := range in.History {
		out = append(out,
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: ex.Question},
			goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: ex.Answer},
		)
	}
	return append(out,
		goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleAssistant, Content: in.Question},
		goopenai.ChatCompletionMessage{Role: goopenai.ChatMessageRoleUser, Content: in.Answer},
	)
}

func decode(content string) (domain.Reply, error) {
	var d decision
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &d); err != nil {
		return domain.Reply{}, perr.Wrap(err, perr.ErrorCodeUnavailable, "openai: decision is not JSON")
	}
	if d.FinalScore != nil {
		score := min(max(*d.FinalScore, 0), 10)
		return domain.Reply{FinalScore: &score, Closing: d.Closing}, nil
	}
	if q := strings.TrimSpace(d.NextQuestion); q != "" {
		return domain.Reply{NextQuestion: q}, nil
	}
	return domain.Reply{}, perr.Newf(perr.ErrorCodeUnavailable, "openai: decision has neither next_question nor final_score")
}
