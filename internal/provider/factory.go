package provider

// StreamContentType is the Content-Type header for a streaming response,
// distinct per dialect: OpenAI and Anthropic frame as SSE, Google as
// newline-delimited JSON with no event-stream framing.
func StreamContentType(family string) string {
	switch family {
	case "google":
		return "application/json"
	default:
		return "text/event-stream"
	}
}
