package routing

import (
	"fmt"
	"strings"

	"github.com/upb/llm-relay/services/providers"
)

// Selection is the configured primary provider choice
type Selection string

const (
	// SelectOpenAI pins the baseline provider; the preferred provider is never called
	SelectOpenAI Selection = "openai"

	// SelectGemini prefers Gemini and falls back only when the policy allows it
	SelectGemini Selection = "gemini"

	// SelectAuto tries Gemini first and always falls back to OpenAI
	SelectAuto Selection = "auto"
)

// Policy is the immutable rule set the router follows
type Policy struct {
	Primary       Selection
	Fallback      providers.Kind // empty when no fallback is configured
	AllowFallback bool
	RegionBlock   bool
}

// NewPolicy builds a policy from configuration strings.
// A fallback of "" or "none" means no fallback target.
func NewPolicy(primary, fallback string, allowFallback, regionBlock bool) (Policy, error) {
	p := Policy{
		Primary:       Selection(strings.ToLower(strings.TrimSpace(primary))),
		AllowFallback: allowFallback,
		RegionBlock:   regionBlock,
	}

	switch fb := strings.ToLower(strings.TrimSpace(fallback)); fb {
	case "", "none":
	default:
		kind, err := providers.ParseKind(fb)
		if err != nil {
			return Policy{}, fmt.Errorf("invalid fallback provider: %w", err)
		}
		p.Fallback = kind
	}

	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks the policy is one the router can execute
func (p Policy) Validate() error {
	switch p.Primary {
	case SelectOpenAI, SelectGemini, SelectAuto:
	default:
		return fmt.Errorf("unsupported provider selection %q", p.Primary)
	}

	switch p.Fallback {
	case "", providers.KindOpenAI:
	default:
		return fmt.Errorf("unsupported fallback provider %q", p.Fallback)
	}

	return nil
}

// fallbackEnabled reports whether the gemini selection may fall back to OpenAI
func (p Policy) fallbackEnabled() bool {
	return p.AllowFallback && p.Fallback == providers.KindOpenAI
}
