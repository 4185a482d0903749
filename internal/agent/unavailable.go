package agent

import (
	"context"

	"pipemedic/internal/domain"
)

// Compile-time check.
var _ domain.Reasoner = Unavailable{}

// Unavailable stands in for the reasoning collaborator when no API key is
// configured. The deterministic engine keeps running; chat, narration, and
// fix proposals report the collaborator as absent. Proposal failures already
// degrade critical incidents to logged escalations, so this is safe to wire
// everywhere a Reasoner is expected.
type Unavailable struct{}

func (Unavailable) Chat(_ context.Context, _ string) (string, error) {
	return "", domain.ErrConflict("reasoning collaborator is not configured")
}

func (Unavailable) Reset() {}

func (Unavailable) Narrate(_ context.Context, _ *domain.Diagnosis, _ *domain.Alert) (string, error) {
	return "", domain.ErrConflict("reasoning collaborator is not configured")
}

func (Unavailable) ProposeFix(_ context.Context, _ *domain.Diagnosis, _, _ string) (*domain.FixProposal, error) {
	return nil, domain.ErrConflict("reasoning collaborator is not configured")
}
