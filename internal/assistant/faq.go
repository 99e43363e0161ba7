// Package assistant содержит детерминированные эвристики бота: ответы на
// частые вопросы и рекомендации товаров.
package assistant

import (
	"github.com/mmeshcher/gamestore/internal/textnorm"
)

// DefaultFallback возвращается, если ни один вопрос не подошёл.
const DefaultFallback = "Não encontrei uma resposta para isso. Abra um ticket e um administrador vai ajudar você."

// Entry описывает один вопрос базы знаний.
type Entry struct {
	ID       string
	Question string
	Answer   string
	Keywords []string
}

// Reply описывает ответ ассистента.
type Reply struct {
	EntryID string `json:"entry_id,omitempty"`
	Text    string `json:"text"`
	Score   int    `json:"score"`
	Matched bool   `json:"matched"`

	ratio float64
}

// FAQ подбирает ответ по совпадению ключевых слов.
type FAQ struct {
	entries   []Entry
	keywords  [][]string
	threshold int
	fallback  string
}

// NewFAQ создаёт базу знаний. threshold задаёт минимальное число совпавших ключевых слов.
func NewFAQ(entries []Entry, threshold int, fallback string) *FAQ {
	if threshold < 1 {
		threshold = 1
	}
	if fallback == "" {
		fallback = DefaultFallback
	}

	f := &FAQ{entries: entries, threshold: threshold, fallback: fallback}
	for _, e := range entries {
		var kws []string
		for _, k := range e.Keywords {
			kws = append(kws, textnorm.Tokens(k)...)
		}
		f.keywords = append(f.keywords, kws)
	}
	return f
}

// Answer возвращает лучший ответ. При равном числе совпадений выигрывает
// запись с большей долей совпавших ключевых слов, затем более ранняя.
func (f *FAQ) Answer(question string) Reply {
	words := make(map[string]struct{})
	for _, w := range textnorm.Tokens(question) {
		words[w] = struct{}{}
	}

	best := Reply{Text: f.fallback}
	for i, e := range f.entries {
		kws := f.keywords[i]
		if len(kws) == 0 {
			continue
		}

		score := 0
		for _, k := range kws {
			if _, ok := words[k]; ok {
				score++
			}
		}
		if score < f.threshold {
			continue
		}

		ratio := float64(score) / float64(len(kws))
		if score > best.Score || (score == best.Score && ratio > best.ratio) {
			best = Reply{EntryID: e.ID, Text: e.Answer, Score: score, Matched: true, ratio: ratio}
		}
	}
	return best
}

// DefaultEntries возвращает базовые вопросы магазина.
func DefaultEntries() []Entry {
	return []Entry{
		{
			ID:       "payment",
			Question: "Como faço o pagamento?",
			Answer:   "Aceitamos apenas PIX. Ao comprar você recebe um código copia e cola e um QR code válidos por 30 minutos.",
			Keywords: []string{"pagamento", "pagar", "pago", "pix", "qr", "codigo"},
		},
		{
			ID:       "delivery",
			Question: "Quando recebo a conta?",
			Answer:   "Assim que um administrador confirma o PIX, os dados da conta chegam por mensagem privada junto com o código de entrega.",
			Keywords: []string{"entrega", "receber", "recebo", "chega", "demora", "dados", "login"},
		},
		{
			ID:       "expired",
			Question: "Meu pagamento expirou, e agora?",
			Answer:   "Pagamentos não confirmados expiram em 30 minutos. Basta iniciar uma nova compra se o produto ainda estiver disponível.",
			Keywords: []string{"expirou", "expirado", "expira", "prazo", "venceu"},
		},
		{
			ID:       "refund",
			Question: "Posso pedir reembolso?",
			Answer:   "Reembolsos são analisados pela equipe. Abra um ticket informando o ID do pagamento.",
			Keywords: []string{"reembolso", "estorno", "devolucao", "cancelar", "dinheiro", "volta"},
		},
		{
			ID:       "loyalty",
			Question: "Como funcionam os pontos?",
			Answer:   "Cada real gasto vira um ponto de fidelidade. Os pontos valem por 365 dias e sobem o seu nível no programa.",
			Keywords: []string{"pontos", "ponto", "fidelidade", "nivel", "tier", "resgatar"},
		},
		{
			ID:       "security",
			Question: "As contas são seguras?",
			Answer:   "Todas as contas são verificadas antes da venda e entregues com email de recuperação. Troque a senha ao receber.",
			Keywords: []string{"seguro", "segura", "seguras", "ban", "banida", "senha", "recuperacao"},
		},
		{
			ID:       "promotions",
			Question: "Tem promoção?",
			Answer:   "Use o comando de promoções para ver as ofertas ativas. Cupons são aplicados no momento da compra.",
			Keywords: []string{"promocao", "desconto", "cupom", "oferta", "promo"},
		},
	}
}
