package interfaces

import "context"

// Generator is the opaque text-generation capability. The backend is
// stateless: every call carries the full prompt context.
type Generator interface {
	// StreamCompletion generates text for the prompt, invoking onChunk for
	// each incremental piece as it arrives. It returns the full generated
	// text. An onChunk error aborts the stream and is returned unchanged.
	StreamCompletion(ctx context.Context, prompt string, onChunk func(chunk string) error) (string, error)

	// Complete generates text without streaming. Used by background
	// enrichment where latency does not matter.
	Complete(ctx context.Context, prompt string) (string, error)
}

// ImageGenerator produces an illustration for a scene description.
// Best-effort: callers must tolerate errors and never block narrative
// progression on the result.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, description string) ([]byte, error)
}
