// Package locale holds the user-facing labels of the pt-BR and en-US locales.
package locale

import (
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

// Supported locale tags.
const (
	PTBR = "pt-BR"
	ENUS = "en-US"
)

// Category keys returned by the insight extractor.
const (
	CategorySales     = "sales"
	CategorySupport   = "support"
	CategoryMarketing = "marketing"
	CategoryGeneral   = "general"
)

// Trend keys.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Catalog is the label set of one locale.
type Catalog struct {
	Tag        string
	DateLayout string

	// PeriodTitle is used in email subjects ("Diário"), PeriodAdjective in prose ("diário").
	periodTitle     map[notifier.Period]string
	periodAdjective map[notifier.Period]string
	categories      map[string]string
	trends          map[string]string

	DigestUnavailable string
	NothingToDigest   string
	NoUrgent          string
	DefaultSubject    string
}

var ptBR = &Catalog{
	Tag:        PTBR,
	DateLayout: "02/01/2006",
	periodTitle: map[notifier.Period]string{
		notifier.Daily:   "Diário",
		notifier.Weekly:  "Semanal",
		notifier.Monthly: "Mensal",
	},
	periodAdjective: map[notifier.Period]string{
		notifier.Daily:   "diário",
		notifier.Weekly:  "semanal",
		notifier.Monthly: "mensal",
	},
	categories: map[string]string{
		CategorySales:     "Vendas",
		CategorySupport:   "Suporte",
		CategoryMarketing: "Marketing",
		CategoryGeneral:   "Geral",
	},
	trends: map[string]string{
		TrendIncreasing: "Volume em alta",
		TrendDecreasing: "Volume em queda",
		TrendStable:     "Volume estável",
	},
	DigestUnavailable: "Não foi possível gerar digest",
	NothingToDigest:   "Nenhuma notificação não lida no momento. Nada a resumir.",
	NoUrgent:          "Nenhuma urgência detectada",
	DefaultSubject:    "Notificação Importante",
}

var enUS = &Catalog{
	Tag:        ENUS,
	DateLayout: "01/02/2006",
	periodTitle: map[notifier.Period]string{
		notifier.Daily:   "Daily",
		notifier.Weekly:  "Weekly",
		notifier.Monthly: "Monthly",
	},
	periodAdjective: map[notifier.Period]string{
		notifier.Daily:   "daily",
		notifier.Weekly:  "weekly",
		notifier.Monthly: "monthly",
	},
	categories: map[string]string{
		CategorySales:     "Sales",
		CategorySupport:   "Support",
		CategoryMarketing: "Marketing",
		CategoryGeneral:   "General",
	},
	trends: map[string]string{
		TrendIncreasing: "Volume increasing",
		TrendDecreasing: "Volume decreasing",
		TrendStable:     "Volume stable",
	},
	DigestUnavailable: "Could not generate digest",
	NothingToDigest:   "No unread notifications right now. Nothing to summarize.",
	NoUrgent:          "No urgent items detected",
	DefaultSubject:    "Important Notification",
}

// For returns the catalog for tag, defaulting to pt-BR.
func For(tag string) *Catalog {
	if tag == enUS.Tag {
		return enUS
	}
	return ptBR
}

// PeriodTitle returns the capitalized period name.
func (c *Catalog) PeriodTitle(p notifier.Period) string {
	if s, ok := c.periodTitle[p]; ok {
		return s
	}
	return string(p)
}

// PeriodAdjective returns the lowercase period name.
func (c *Catalog) PeriodAdjective(p notifier.Period) string {
	if s, ok := c.periodAdjective[p]; ok {
		return s
	}
	return string(p)
}

// Category returns the display name of a category key.
func (c *Catalog) Category(key string) string {
	if s, ok := c.categories[key]; ok {
		return s
	}
	return key
}

// Trend returns the display text of a trend key.
func (c *Catalog) Trend(key string) string {
	if s, ok := c.trends[key]; ok {
		return s
	}
	return key
}

// FormatDate renders t in the locale's short date layout.
func (c *Catalog) FormatDate(t time.Time) string {
	return t.Format(c.DateLayout)
}
