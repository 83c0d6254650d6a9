package tokengen

import "github.com/llmsim/simulator/internal/engine"

// lorem is the filler vocabulary. The content is deliberately meaningless:
// plausible filler suffices, semantic correctness of replies is out of
// scope.
var lorem = []string{
	"lorem", "ipsum", "dolor", "sit", "amet", "consectetur", "adipiscing", "elit",
	"sed", "do", "eiusmod", "tempor", "incididunt", "ut", "labore", "et", "dolore",
	"magna", "aliqua", "enim", "ad", "minim", "veniam", "quis", "nostrud",
	"exercitation", "ullamco", "laboris", "nisi", "aliquip", "ex", "ea", "commodo",
	"consequat", "duis", "aute", "irure", "in", "reprehenderit", "voluptate",
	"velit", "esse", "cillum", "fugiat", "nulla", "pariatur", "excepteur", "sint",
	"occaecat", "cupidatat", "non", "proident", "sunt", "culpa", "qui", "officia",
	"deserunt", "mollit", "anim", "id", "est", "laborum",
}

// familyMedianTokens gives the family-typical median output length, used
// as the log-normal median; there is no per-model override.
var familyMedianTokens = map[engine.Family]float64{
	engine.FamilyOpenAI:    64,
	engine.FamilyAnthropic: 96,
	engine.FamilyGoogle:    80,
}

const defaultMedianTokens = 64
