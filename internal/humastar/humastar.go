// Package humastar serves Datastar responses from Huma handlers.
//
// Handlers return [Stream] to push SSE events through the Datastar
// generator, read the request's signals through [SignalsInput], and
// advertise state-dependent actions as Link headers (see [Actor]).
//
//	func (h *Handler) Events(ctx context.Context, input *TaskInput) (*huma.StreamResponse, error) {
//	    return humastar.Stream(func(sse humastar.SSE) {
//	        sse.Signals(map[string]any{"state": "ready"})
//	    }), nil
//	}
package humastar

import (
	"encoding/json"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"
	"github.com/starfederation/datastar-go/datastar"
)

// Stream wraps fn as a Huma stream body. The server must use the humago adapter.
func Stream(fn func(sse SSE)) *huma.StreamResponse {
	return &huma.StreamResponse{
		Body: func(ctx huma.Context) {
			fn(NewSSE(ctx))
		},
	}
}

// SSE writes Datastar events to one response.
type SSE struct {
	*datastar.ServerSentEventGenerator
}

// NewSSE opens a Datastar event stream on a humago context.
func NewSSE(ctx huma.Context) SSE {
	r, w := humago.Unwrap(ctx)
	return SSE{datastar.NewSSE(w, r)}
}

// Patch replaces the children of the element matched by selector.
func (s SSE) Patch(html, selector string) {
	s.PatchElements(html,
		datastar.WithSelector(selector),
		datastar.WithModeInner(),
		datastar.WithViewTransitions(),
	)
}

// Error sets the page's error signal.
func (s SSE) Error(msg string) {
	s.Signals(map[string]any{"error": msg})
}

// Success sets the page's success signal and clears any earlier error.
func (s SSE) Success(msg string) {
	s.Signals(map[string]any{"success": msg, "error": ""})
}

// Signals merges signals into the page's store.
func (s SSE) Signals(signals map[string]any) {
	s.MarshalAndPatchSignals(signals)
}

// Signals is the flat JSON object Datastar posts with each action.
type Signals map[string]any

// ParseSignals decodes a Datastar request body.
func ParseSignals(body []byte) (Signals, error) {
	var signals Signals
	if err := json.Unmarshal(body, &signals); err != nil {
		return nil, err
	}
	return signals, nil
}

// String returns the signal as a string; missing or non-string values read as "".
func (s Signals) String(key string) string {
	v, _ := s[key].(string)
	return v
}

// Bool returns the signal as a bool; missing or non-bool values read as false.
func (s Signals) Bool(key string) bool {
	v, _ := s[key].(bool)
	return v
}

// EmptyInput is the input of handlers without parameters.
type EmptyInput struct{}

// SignalsInput captures the raw Datastar body. Embed it in an input struct.
type SignalsInput struct {
	RawBody []byte
}

// MustParse decodes the body, failing with a 400 on invalid JSON.
func (i *SignalsInput) MustParse() (Signals, error) {
	signals, err := ParseSignals(i.RawBody)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid signals: " + err.Error())
	}
	return signals, nil
}
