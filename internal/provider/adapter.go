// Package provider implements one pure ingress/egress pair per vendor
// dialect, each translating between wire JSON/SSE and the engine's
// NormalizedRequest/NormalizedResponse. Adapters depend on internal/engine;
// internal/engine never imports this package.
package provider

import (
	"fmt"
	"io"

	"go.uber.org/multierr"

	"github.com/llmsim/simulator/internal/engine"
)

// ValidationError carries the field path and reason an ingress rejection
// reports. Multiple field failures from a single parse are aggregated with
// multierr rather than discarded after the first.
type ValidationError struct {
	FieldPath string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.FieldPath, e.Reason)
}

func fieldErr(path, reason string) error {
	return &ValidationError{FieldPath: path, Reason: reason}
}

// Adapter is the pure parse/render pair for one vendor dialect, selected by
// a tagged enum keyed on URL family at the HTTP layer — never inheritance
// over a provider base.
type Adapter interface {
	// ParseRequest parses a vendor-shaped request body into a
	// NormalizedRequest. urlModel is non-empty only for vendors that carry
	// the model in the URL path (Google). There is no separate streaming
	// argument; OpenAI and Anthropic carry it as "stream" in the body.
	ParseRequest(body []byte, urlModel string) (*engine.NormalizedRequest, error)

	// RenderResponse renders a NormalizedResponse as the vendor's
	// single-JSON-body wire format.
	RenderResponse(resp *engine.NormalizedResponse) ([]byte, error)

	// RenderChunk writes one ChunkEvent in the vendor's streaming frame
	// format directly to w, flushing if w is also an http.Flusher. Callers
	// stop pumping further chunks once ev.Kind() reports ChunkError, or
	// once the event channel closes after a normal terminal chunk.
	RenderChunk(w io.Writer, modelID string, ev engine.ChunkEvent) error

	// RenderError renders a failure as the vendor's error-body convention.
	// Used both for synchronous pre-stream rejections (HTTP status varies)
	// and in-band mid-stream errors (always after a 200 has been written).
	RenderError(kind engine.ErrorKind, message string) ([]byte, error)

	// ContentType is the Content-Type for a non-streaming response body.
	ContentType() string
}

// aggregateFieldErrors combines zero or more field-level failures into a
// single InvalidRequest-shaped error, preserving every field_path:reason
// pair for logging.
func aggregateFieldErrors(errs ...error) error {
	var combined error
	for _, e := range errs {
		if e != nil {
			combined = multierr.Append(combined, e)
		}
	}
	return combined
}

// flush calls Flush on w if it implements one — gin's ResponseWriter and
// http.Flusher both do; bytes.Buffer (used in tests) does not.
type flusher interface{ Flush() }

func flush(w io.Writer) {
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
}
