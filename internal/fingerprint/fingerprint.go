// Package fingerprint computes the stable 128-bit digest used both as the
// RNG derivation input and as a candidate response-cache key.
package fingerprint

import (
	"encoding/binary"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint is a 128-bit digest over a request's semantically meaningful
// inputs: model, canonicalized messages/embedding input, and sampling
// parameters. Two requests with identical fingerprints must derive
// byte-identical RNG streams.
type Fingerprint [16]byte

// Input carries exactly the fields that feed a fingerprint.
type Input struct {
	ModelID       string
	Messages      []Message
	EmbeddingText []string
	Temperature   float64
	TopP          float64
	MaxTokens     int
	StopSequences []string
	SeedOverride  *int64

	// BatchIndex distinguishes otherwise-identical elements of an embedding
	// batch (e.g. duplicate input strings) so each still derives its own
	// RNG stream; zero for non-batched requests.
	BatchIndex int
}

// Message is the minimal shape needed for canonicalization; it mirrors the
// role/content pair of engine.Message without importing the engine package
// (fingerprinting must stay a leaf dependency).
type Message struct {
	Role    string
	Content string
}

// Compute derives a Fingerprint from an Input. The canonicalization is
// deliberately simple and total: every field is rendered into a delimited
// byte stream in a fixed order, so two logically-equal inputs always hash
// identically regardless of map iteration order or caller-supplied slice
// aliasing.
func Compute(in Input) Fingerprint {
	var b strings.Builder
	b.WriteString(in.ModelID)
	b.WriteByte(0)

	for _, m := range in.Messages {
		b.WriteString(m.Role)
		b.WriteByte(0)
		b.WriteString(m.Content)
		b.WriteByte(0)
	}
	b.WriteByte(0)

	texts := append([]string(nil), in.EmbeddingText...)
	sort.Strings(texts) // order-independent for a single logical batch
	for _, t := range texts {
		b.WriteString(t)
		b.WriteByte(0)
	}
	b.WriteByte(0)

	b.WriteString(strconv.FormatFloat(in.Temperature, 'g', -1, 64))
	b.WriteByte(0)
	b.WriteString(strconv.FormatFloat(in.TopP, 'g', -1, 64))
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(in.MaxTokens))
	b.WriteByte(0)

	stops := append([]string(nil), in.StopSequences...)
	sort.Strings(stops)
	for _, s := range stops {
		b.WriteString(s)
		b.WriteByte(0)
	}
	b.WriteByte(0)

	if in.SeedOverride != nil {
		b.WriteString(strconv.FormatInt(*in.SeedOverride, 10))
	}
	b.WriteByte(0)
	b.WriteString(strconv.Itoa(in.BatchIndex))

	data := []byte(b.String())

	var fp Fingerprint
	lo := xxhash.Sum64(data)
	hi := xxhash.Sum64(append(data, 0x01)) // distinct salt for the high half
	binary.LittleEndian.PutUint64(fp[0:8], lo)
	binary.LittleEndian.PutUint64(fp[8:16], hi)
	return fp
}

// String renders the fingerprint as a hex string, useful for log fields and
// as a cache-key candidate.
func (f Fingerprint) String() string {
	const hex = "0123456789abcdef"
	out := make([]byte, 32)
	for i, c := range f {
		out[i*2] = hex[c>>4]
		out[i*2+1] = hex[c&0x0f]
	}
	return string(out)
}
