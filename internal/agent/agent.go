package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"pipemedic/internal/domain"
)

// ChatTimeout is the hard wall-clock ceiling on one interactive chat
// exchange, tool invocations included.
const ChatTimeout = 120 * time.Second

// maxToolRounds bounds the tool-invocation loop per exchange.
const maxToolRounds = 10

const systemPrompt = `You are the on-call assistant for a data-platform incident-response engine.
You investigate pipeline failures, SLA breaches, schema drift, and data-quality
violations using the provided tools. Ground every statement in tool output.
When you identify a root cause, distinguish it from cascading downstream
symptoms. Be concise and concrete.`

// Compile-time check.
var _ domain.Reasoner = (*Agent)(nil)

// Agent implements the Reasoner port over a chat-completion API with tool
// calling. Conversation history persists across Chat calls until Reset.
type Agent struct {
	client *openai.Client
	model  string
	ops    *Registry
	logger *slog.Logger

	mu      sync.Mutex
	history []openai.ChatCompletionMessage
}

// New creates an Agent speaking to the given model.
func New(client *openai.Client, model string, ops *Registry, logger *slog.Logger) *Agent {
	return &Agent{
		client: client,
		model:  model,
		ops:    ops,
		logger: logger.With("component", "agent"),
	}
}

func (a *Agent) tools() []openai.Tool {
	ops := a.ops.Operations()
	out := make([]openai.Tool, 0, len(ops))
	for _, op := range ops {
		out = append(out, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        op.Name,
				Description: op.Description,
				Parameters:  op.Parameters,
			},
		})
	}
	return out
}

// Chat sends one user message and runs the tool loop until the collaborator
// produces a final answer or the wall-clock ceiling is hit. A timeout
// surfaces as TimeoutError, never as a hang.
func (a *Agent) Chat(ctx context.Context, message string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ChatTimeout)
	defer cancel()

	a.mu.Lock()
	defer a.mu.Unlock()

	if len(a.history) == 0 {
		a.history = append(a.history, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: systemPrompt,
		})
	}
	a.history = append(a.history, openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleUser, Content: message,
	})

	for round := 0; round < maxToolRounds; round++ {
		resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:    a.model,
			Messages: a.history,
			Tools:    a.tools(),
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return "", domain.ErrTimeout("chat exceeded the %s ceiling", ChatTimeout)
			}
			return "", domain.ErrExecution(err, "chat completion")
		}
		if len(resp.Choices) == 0 {
			return "", domain.ErrExecution(nil, "chat completion returned no choices")
		}

		msg := resp.Choices[0].Message
		a.history = append(a.history, msg)

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}

		for _, call := range msg.ToolCalls {
			result, err := a.ops.Invoke(ctx, call.Function.Name, call.Function.Arguments)
			if err != nil {
				// Feed the error back so the collaborator can adjust.
				result = fmt.Sprintf(`{"error":%q}`, err.Error())
			}
			a.logger.Debug("tool invoked", "op", call.Function.Name)
			a.history = append(a.history, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
	return "", domain.ErrExecution(nil, "tool loop exceeded %d rounds", maxToolRounds)
}

// Reset discards the conversation history.
func (a *Agent) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.history = nil
}

// Narrate produces a short explanation of a deterministic diagnosis. One
// shot, no tools, no history.
func (a *Agent) Narrate(ctx context.Context, d *domain.Diagnosis, alert *domain.Alert) (string, error) {
	prompt := fmt.Sprintf(
		"Explain this diagnosis to an operator in at most three sentences.\nAlert: %s (%s, %s)\nRoot cause: %s\nSymptoms: %s\nEvidence:\n- %s",
		alert.Description, alert.AlertType, alert.Severity,
		d.RootCause, strings.Join(d.Symptoms, ", "), strings.Join(d.Evidence, "\n- "),
	)
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", domain.ErrExecution(err, "narration")
	}
	if len(resp.Choices) == 0 {
		return "", domain.ErrExecution(nil, "narration returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ProposeFix asks the collaborator for a concrete change to the target's
// source, returned as strict JSON.
func (a *Agent) ProposeFix(ctx context.Context, d *domain.Diagnosis, target, source string) (*domain.FixProposal, error) {
	prompt := fmt.Sprintf(`Propose a fix for the transformation %q.
Root cause: %s
Evidence:
- %s

Current source:
%s

Respond with a single JSON object, no prose, with keys:
"new_content" (the full corrected source), "summary" (one line),
"risk" ("LOW", "MEDIUM", or "HIGH"), "confidence" (number in [0,1]).`,
		target, d.RootCause, strings.Join(d.Evidence, "\n- "), source)

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, domain.ErrExecution(err, "fix proposal")
	}
	if len(resp.Choices) == 0 {
		return nil, domain.ErrExecution(nil, "fix proposal returned no choices")
	}

	var parsed struct {
		NewContent string  `json:"new_content"`
		Summary    string  `json:"summary"`
		Risk       string  `json:"risk"`
		Confidence float64 `json:"confidence"`
	}
	raw := stripFences(resp.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.ErrExecution(err, "fix proposal is not valid JSON")
	}
	if parsed.NewContent == "" {
		return nil, domain.ErrValidation("fix proposal has no new_content")
	}
	return &domain.FixProposal{
		Target:     target,
		NewContent: parsed.NewContent,
		Summary:    parsed.Summary,
		Risk:       parsed.Risk,
		Confidence: parsed.Confidence,
	}, nil
}

// stripFences removes a markdown code fence if the model wrapped its JSON in
// one anyway.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
