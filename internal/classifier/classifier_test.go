package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"insight-engine/internal/common/config"
	"insight-engine/internal/common/logger"
	"insight-engine/internal/models"
)

func newTestClassifier(t *testing.T) *Classifier {
	return New(nil, config.ClarifyAsk, logger.NewTestLogger(t))
}

func classify(t *testing.T, question string) models.RoutingDecision {
	return newTestClassifier(t).Classify(context.Background(), Input{Question: question})
}

func TestGreetingIsConversational(t *testing.T) {
	decision := classify(t, "hola")
	assert.Equal(t, models.KindConversational, decision.Kind)
	assert.NotEmpty(t, decision.DirectAnswer)
	assert.False(t, decision.NeedsData)
	assert.False(t, decision.NeedsDashboard)
}

func TestThanksAndHelpAreConversational(t *testing.T) {
	for _, q := range []string{"gracias", "que puedes hacer?", "quien eres"} {
		decision := classify(t, q)
		assert.Equal(t, models.KindConversational, decision.Kind, "question %q", q)
	}
}

func TestSalesDashboardQuestion(t *testing.T) {
	decision := classify(t, "como van las ventas")
	assert.Equal(t, models.KindDashboard, decision.Kind)
	assert.Equal(t, models.DomainSales, decision.Domain)
	assert.True(t, decision.NeedsData)
	assert.True(t, decision.NeedsDashboard)
}

// Substring trap: "inventario" contains "venta". Every surface form of the
// inventory word must classify as inventory, never sales.
func TestInventoryNeverClassifiesAsSales(t *testing.T) {
	for _, q := range []string{
		"como esta el inventario",
		"mostrame el inventario",
		"inventario",
		"Inventario actual",
		"cómo está el inventario?",
	} {
		decision := classify(t, q)
		assert.Equal(t, models.DomainInventory, decision.Domain, "question %q", q)
		assert.NotEqual(t, models.DomainSales, decision.Domain, "question %q", q)
	}
}

func TestAccentedSalesQuestion(t *testing.T) {
	decision := classify(t, "¿Cómo van las ventas?")
	assert.Equal(t, models.DomainSales, decision.Domain)
	assert.Equal(t, models.KindDashboard, decision.Kind)
}

func TestDataOnlyQuestion(t *testing.T) {
	decision := classify(t, "cuantas ordenes tuvimos")
	assert.Equal(t, models.KindDataOnly, decision.Kind)
	assert.True(t, decision.NeedsData)
	assert.False(t, decision.NeedsDashboard)
}

func TestConversationsDomain(t *testing.T) {
	decision := classify(t, "como va el agente")
	assert.Equal(t, models.DomainConversations, decision.Domain)
}

func TestAmbiguousShortQuestionAsksClarification(t *testing.T) {
	decision := classify(t, "y eso?")
	assert.Equal(t, models.KindClarification, decision.Kind)
	assert.NotEmpty(t, decision.DirectAnswer)
}

func TestBackReferenceWithContextIsNotAmbiguous(t *testing.T) {
	c := newTestClassifier(t)
	decision := c.Classify(context.Background(), Input{
		Question:    "y eso cuanto fue en total?",
		ChatContext: "user: como van las ventas\nassistant: Ventas totales de $100",
	})
	assert.NotEqual(t, models.KindClarification, decision.Kind)
}

func TestPreviousClarificationForcesBestGuess(t *testing.T) {
	c := newTestClassifier(t)
	decision := c.Classify(context.Background(), Input{
		Question:             "y eso?",
		PrevWasClarification: true,
	})
	assert.Equal(t, models.KindDashboard, decision.Kind)
	assert.Equal(t, models.DomainSales, decision.Domain)
}

func TestBestGuessPolicySkipsClarification(t *testing.T) {
	c := New(nil, config.ClarifyBestGuess, logger.NewTestLogger(t))
	decision := c.Classify(context.Background(), Input{Question: "y eso?"})
	assert.NotEqual(t, models.KindClarification, decision.Kind)
}

// Stage-1 outcomes are deterministic: same question, same decision.
func TestClassificationIsDeterministic(t *testing.T) {
	c := newTestClassifier(t)
	for _, q := range []string{"hola", "como van las ventas", "como esta el inventario", "y eso?"} {
		first := c.Classify(context.Background(), Input{Question: q})
		for i := 0; i < 5; i++ {
			again := c.Classify(context.Background(), Input{Question: q})
			require.Equal(t, first, again, "question %q run %d", q, i)
		}
	}
}

func TestNoSignalWithoutLLMAsksClarification(t *testing.T) {
	decision := classify(t, "tell me about quantum gravity")
	assert.Equal(t, models.KindClarification, decision.Kind)
}

func TestDashboardKeywordImpliesData(t *testing.T) {
	decision := classify(t, "mostrame un grafico")
	assert.True(t, decision.NeedsData)
	assert.True(t, decision.NeedsDashboard)
}

func TestDetectDomainOrderSensitivity(t *testing.T) {
	// Direct check of the ordered matcher.
	assert.Equal(t, models.DomainInventory, DetectDomain(Normalize("inventario")))
	assert.Equal(t, models.DomainSales, DetectDomain(Normalize("ventas")))
	// "producto mas vendido" mentions a product but asks about sales.
	assert.Equal(t, models.DomainSales, DetectDomain(Normalize("producto mas vendido")))
	assert.Equal(t, models.DomainUnknown, DetectDomain(Normalize("hola mundo")))
}
