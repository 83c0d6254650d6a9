package chaos

import "github.com/llmsim/simulator/internal/engine"

// Scope selects which (model, operation) pairs a Rule applies to. A nil
// Models/Operations set means "any" for that axis.
type Scope struct {
	Models     map[string]struct{}
	Operations map[engine.Operation]struct{}
}

func (s Scope) matches(model string, op engine.Operation) bool {
	if s.Models != nil {
		if _, ok := s.Models[model]; !ok {
			return false
		}
	}
	if s.Operations != nil {
		if _, ok := s.Operations[op]; !ok {
			return false
		}
	}
	return true
}

// Rule is one configured chaos injection rule. Rules are evaluated in the
// order they appear in the slice; first match wins.
type Rule struct {
	Name        string
	Scope       Scope
	ErrorKind   engine.ErrorKind
	Probability float64
	Enabled     bool
}
