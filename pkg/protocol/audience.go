package protocol

import "context"

// AudienceSpec is the automation's audience selection passed through to
// the resolver. The core does not interpret it.
type AudienceSpec struct {
	Type   string         `json:"type"` // all, custom-list
	Config map[string]any `json:"config,omitempty"`
}

// AudienceMember is one resolved recipient with its variable bindings.
type AudienceMember struct {
	RecipientID string         `json:"recipient_id"`
	Variables   map[string]any `json:"variables,omitempty"`
}

// AudienceResolver turns an audience specification into concrete
// recipients. Implemented by the contact store.
type AudienceResolver interface {
	Resolve(ctx context.Context, spec AudienceSpec) ([]AudienceMember, error)
}
