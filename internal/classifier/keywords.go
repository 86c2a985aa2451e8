// internal/classifier/keywords.go
package classifier

import (
	"regexp"
	"strings"

	"insight-engine/internal/models"
)

// accentFolder lowercases handled separately; this folds the Spanish
// accented forms so keyword lists only need one spelling.
var accentFolder = strings.NewReplacer(
	"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u", "ñ", "n",
)

// Normalize lowercases and accent-folds a question for keyword matching.
func Normalize(question string) string {
	return accentFolder.Replace(strings.ToLower(strings.TrimSpace(question)))
}

// conversationalPattern maps a regex to the canned reply key.
type conversationalPattern struct {
	re  *regexp.Regexp
	key string
}

var conversationalPatterns = []conversationalPattern{
	{regexp.MustCompile(`^(hola|hey|buenas|buenos dias|buenas tardes|buenas noches|saludos)\b`), "greeting"},
	{regexp.MustCompile(`^(gracias|muchas gracias|thanks|ok|perfecto|genial|excelente)\b`), "thanks"},
	{regexp.MustCompile(`(que puedes hacer|que sabes hacer|ayuda|help|como funciona)`), "help"},
	{regexp.MustCompile(`(quien eres|que eres|como te llamas)`), "identity"},
}

// directResponses are the canned replies for conversational hits.
var directResponses = map[string]string{
	"greeting": "Hola! Soy tu asistente de datos. Puedo ayudarte con:\n- Ventas y ordenes\n- Inventario y productos\n- Rendimiento del agente AI\n- Casos escalados\n\nQue te gustaria saber?",
	"thanks":   "De nada! Si tienes mas preguntas sobre tus datos, estoy aqui para ayudarte.",
	"help":     "Puedo ayudarte a analizar tus datos de negocio. Prueba preguntas como:\n- Como van las ventas?\n- Mostrame el inventario\n- Productos con stock bajo\n- Como esta el agente AI?\n- Ultimas ordenes",
	"identity": "Soy un asistente de BI potenciado por IA. Analizo tus datos de ventas, inventario y servicio al cliente para darte insights accionables.",
}

// clarificationPrompt is the canned reply when the question is too vague.
const clarificationPrompt = "No estoy seguro de que necesitas. Puedo ayudarte con:\n- Ventas y ordenes\n- Inventario y stock\n- Agente AI e interacciones\n- Casos escalados\n\nQue area te interesa?"

// backReferences are pronouns that only make sense with prior context.
var backReferences = []string{
	"eso", "esto", "aquello", "lo mismo", "el mismo", "la misma", "y esto", "tambien",
}

// ambiguityLengthThreshold: shorter questions with a back-reference and no
// chat context get a clarification instead of a guess.
const ambiguityLengthThreshold = 25

// dataKeywords signal a quantitative question.
var dataKeywords = []string{
	"cuanto", "cuantos", "cuantas", "total", "suma", "cantidad",
	"vendimos", "ventas", "venta", "vendido",
	"ordenes", "orden", "pedidos", "pedido",
	"productos", "producto", "inventario", "stock",
	"escalados", "escalaciones", "casos",
	"agente", "bot", "interacciones",
	"ingresos", "revenue", "facturacion",
	"promedio", "media", "kpi", "metricas",
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
	"mes", "semana", "dia", "ano", "trimestre", "periodo",
	"dime", "dame", "decime", "quiero", "necesito", "busco",
}

// dashboardKeywords signal that the answer wants visualization.
var dashboardKeywords = []string{
	"mostrame", "muestrame", "muestra", "visualiza",
	"grafico", "graficos", "chart", "charts",
	"dashboard", "panel", "reporte",
	"tendencia", "tendencias", "evolucion",
	"comparar", "comparame", "comparacion", "versus", "vs",
	"analisis", "analiza", "analizar",
	"pareto", "insight", "insights", "resumen",
	"reposicion", "reponer", "recomendar",
	"bajo stock", "stock bajo", "alta rotacion", "rotacion",
	"quiebre", "agotar", "agotando", "faltante",
	"critico", "criticos", "alertas", "alerta",
	"proyeccion", "proyectar", "estimar", "predecir",
	"margen", "ganancia", "beneficio",
	"crecimiento", "ciclo", "temporada",
	"como van", "como estan", "como esta", "que tal", "como vamos",
	"como fue", "como fueron", "como estuvo", "como me fue",
	"situacion", "estado de", "status",
	"ultimos", "ultimas", "recientes", "hoy", "ayer", "actualmente",
	"este mes", "esta semana", "este ano",
	"cual fue", "cual es", "cuales",
	"mas vendido", "menos vendido",
	"mejor mes", "peor mes", "mejor dia", "peor dia",
	"que mes", "en que mes", "que producto",
	"debo hacer", "deberia", "recomienda", "sugieres",
}

// domainRule holds one domain's vocabulary. Rules are evaluated in slice
// order: inventory precedes sales so that surface forms like "inventario",
// which contain the sales token "venta" as a substring, never leak into the
// sales domain. Matching is token-prefix based for single words, substring
// for phrases.
type domainRule struct {
	domain   models.Domain
	keywords []string
}

var domainRules = []domainRule{
	{models.DomainInventory, []string{"inventario", "stock", "existencia", "disponible", "reponer", "reposicion", "producto"}},
	{models.DomainConversations, []string{"agente", "bot", "interaccion", "conversacion", "mensaje", "escalado", "escalacion", "caso", "soporte"}},
	{models.DomainSales, []string{"venta", "vendido", "vendimos", "orden", "pedido", "factura", "ingreso", "revenue", "mas vendido", "ticket"}},
}

// matchKeyword reports whether a keyword hits the normalized question.
// Single-word keywords match as token prefixes ("interacci" does not exist
// here; "interaccion" prefixes "interacciones"); phrases match as
// substrings.
func matchKeyword(normalized string, tokens []string, keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(normalized, keyword)
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, keyword) {
			return true
		}
	}
	return false
}

// MatchAny reports whether any keyword hits the normalized question, using
// the same token-prefix semantics as classification. Shared with the data
// agent's query selector so both layers resist the substring traps.
func MatchAny(normalized string, keywords []string) bool {
	return anyKeyword(normalized, tokenize(normalized), keywords)
}

var tokenSplitter = regexp.MustCompile(`[^a-z0-9]+`)

func tokenize(normalized string) []string {
	return tokenSplitter.Split(normalized, -1)
}

func anyKeyword(normalized string, tokens []string, keywords []string) bool {
	for _, kw := range keywords {
		if matchKeyword(normalized, tokens, kw) {
			return true
		}
	}
	return false
}

// DetectDomain scores each domain's vocabulary against the question and
// returns the best match. Ties resolve to the earlier (more specific) rule.
func DetectDomain(normalized string) models.Domain {
	tokens := tokenize(normalized)

	best := models.DomainUnknown
	bestScore := 0
	for _, rule := range domainRules {
		score := 0
		for _, kw := range rule.keywords {
			if matchKeyword(normalized, tokens, kw) {
				score++
			}
		}
		if score > bestScore {
			best = rule.domain
			bestScore = score
		}
	}
	return best
}
