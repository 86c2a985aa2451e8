// Package classifier maps a question plus chat context to a routing
// decision. Deterministic keyword heuristics run first and settle the
// majority of inputs; the LLM is a fallback for questions with no keyword
// signal and the engine stays fully operable with it disabled.
package classifier

import (
	"context"

	"insight-engine/internal/common/config"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/llm"
	"insight-engine/internal/models"
)

// Input carries the per-request classification context.
type Input struct {
	Question    string
	ChatContext string
	// PrevWasClarification suppresses a second clarification in a row; the
	// engine proceeds with its best guess instead.
	PrevWasClarification bool
}

type Classifier struct {
	llm    *llm.Client // nil when the LLM fallback is disabled
	policy config.ClarifyPolicy
	logger logger.Logger
}

func New(llmClient *llm.Client, policy config.ClarifyPolicy, log logger.Logger) *Classifier {
	return &Classifier{
		llm:    llmClient,
		policy: policy,
		logger: log.With(map[string]interface{}{"component": "classifier"}),
	}
}

// Classify produces the routing decision. Stage-1 outcomes are fully
// deterministic: the same question and context always yield the same
// decision.
func (c *Classifier) Classify(ctx context.Context, in Input) models.RoutingDecision {
	normalized := Normalize(in.Question)
	tokens := tokenize(normalized)

	// Conversational patterns short-circuit everything.
	for _, pat := range conversationalPatterns {
		if pat.re.MatchString(normalized) {
			return models.RoutingDecision{
				Kind:         models.KindConversational,
				Domain:       models.DomainUnknown,
				Confidence:   0.95,
				Rationale:    "matched conversational pattern: " + pat.key,
				DirectAnswer: directResponses[pat.key],
			}
		}
	}

	// Short questions leaning on back-references with no context to
	// resolve them get a clarification.
	if c.isAmbiguous(normalized, tokens, in) {
		return c.clarify("short question with unresolved back-reference", in)
	}

	needsData := anyKeyword(normalized, tokens, dataKeywords)
	needsDashboard := anyKeyword(normalized, tokens, dashboardKeywords)
	if needsDashboard && !needsData {
		needsData = true
	}
	domain := DetectDomain(normalized)

	if !needsData && !needsDashboard {
		if c.llm != nil {
			return c.classifyWithLLM(ctx, in)
		}
		return c.clarify("no keyword signal and LLM fallback disabled", in)
	}

	if needsDashboard {
		return models.RoutingDecision{
			Kind:           models.KindDashboard,
			Domain:         domain,
			Confidence:     0.9,
			Rationale:      "dashboard keywords for domain " + string(domain),
			NeedsData:      true,
			NeedsDashboard: true,
		}
	}
	return models.RoutingDecision{
		Kind:       models.KindDataOnly,
		Domain:     domain,
		Confidence: 0.85,
		Rationale:  "data keywords for domain " + string(domain),
		NeedsData:  true,
	}
}

func (c *Classifier) isAmbiguous(normalized string, tokens []string, in Input) bool {
	if in.ChatContext != "" {
		return false
	}
	if len([]rune(normalized)) >= ambiguityLengthThreshold {
		return false
	}
	return anyKeyword(normalized, tokens, backReferences)
}

// clarify asks the user for specificity, unless policy or a previous
// clarification turn says to press on with a best guess.
func (c *Classifier) clarify(reason string, in Input) models.RoutingDecision {
	if in.PrevWasClarification || c.policy == config.ClarifyBestGuess {
		return models.RoutingDecision{
			Kind:           models.KindDashboard,
			Domain:         models.DomainSales,
			Confidence:     0.5,
			Rationale:      "best guess after ambiguity (" + reason + ")",
			NeedsData:      true,
			NeedsDashboard: true,
		}
	}
	return models.RoutingDecision{
		Kind:         models.KindClarification,
		Domain:       models.DomainUnknown,
		Confidence:   0.6,
		Rationale:    reason,
		DirectAnswer: clarificationPrompt,
	}
}
