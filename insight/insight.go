// Package insight derives statistics from lists of notifications.
// Everything here is pure apart from logging skipped records.
package insight

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

var urgentKeywords = []string{
	"urgente", "importante", "emergência", "emergencia", "crítico", "critico", "prioridade",
	"urgent", "important", "emergency", "critical", "priority",
}

// Ordered: the first matching category wins.
var categoryKeywords = []struct {
	key      string
	keywords []string
}{
	{locale.CategorySales, []string{"venda", "pedido", "orçamento", "compra", "sale", "order", "quote", "purchase"}},
	{locale.CategorySupport, []string{"suporte", "problema", "ajuda", "support", "problem", "issue", "help"}},
	{locale.CategoryMarketing, []string{"marketing", "campanha", "promoção", "promocao", "campaign", "promotion"}},
}

// IsUrgent reports whether subject or body contains an urgency keyword.
func IsUrgent(n *notifier.Notification) bool {
	text := strings.ToLower(n.Subject + "\n" + n.Body)
	for _, kw := range urgentKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ClassifyUrgent returns the urgent notifications of list, preserving order.
func ClassifyUrgent(list []*notifier.Notification) []*notifier.Notification {
	out := []*notifier.Notification{}
	for _, n := range list {
		if IsUrgent(n) {
			out = append(out, n)
		}
	}
	return out
}

// ByEmail identifies a sender by email, falling back to name.
func ByEmail(n *notifier.Notification) string {
	if n.Email != "" {
		return n.Email
	}
	return n.Name
}

// ByName identifies a sender by name, falling back to email.
func ByName(n *notifier.Notification) string {
	if n.Name != "" {
		return n.Name
	}
	return n.Email
}

// SenderCount is one entry of a sender ranking.
type SenderCount struct {
	Sender string `json:"sender"`
	Count  int    `json:"count"`
}

// CountSenders counts notifications per sender, most frequent first.
// Ties keep first-seen order.
func CountSenders(list []*notifier.Notification, identity func(*notifier.Notification) string) []SenderCount {
	index := map[string]int{}
	var counts []SenderCount
	for _, n := range list {
		id := identity(n)
		if id == "" {
			continue
		}
		if i, ok := index[id]; ok {
			counts[i].Count++
			continue
		}
		index[id] = len(counts)
		counts = append(counts, SenderCount{Sender: id, Count: 1})
	}
	sort.SliceStable(counts, func(i, j int) bool {
		return counts[i].Count > counts[j].Count
	})
	return counts
}

// RankSenders returns up to topN sender identifiers ordered by frequency.
func RankSenders(list []*notifier.Notification, topN int, identity func(*notifier.Notification) string) []string {
	counts := CountSenders(list, identity)
	if topN >= 0 && len(counts) > topN {
		counts = counts[:topN]
	}
	out := make([]string, len(counts))
	for i, c := range counts {
		out[i] = c.Sender
	}
	return out
}

// Category returns the category key of n.
func Category(n *notifier.Notification) string {
	text := strings.ToLower(n.Subject + "\n" + n.Body)
	for _, c := range categoryKeywords {
		for _, kw := range c.keywords {
			if strings.Contains(text, kw) {
				return c.key
			}
		}
	}
	return locale.CategoryGeneral
}

// Categorize counts notifications per category key.
func Categorize(list []*notifier.Notification) map[string]int {
	out := map[string]int{}
	for _, n := range list {
		out[Category(n)]++
	}
	return out
}

// MostActiveDay returns the calendar day (YYYY-MM-DD in loc) with the most
// notifications, or "" when there is none. Notifications without a sent_at
// are skipped.
func MostActiveDay(list []*notifier.Notification, loc *time.Location, logger *slog.Logger) string {
	index := map[string]int{}
	var days []string
	var counts []int
	for _, n := range list {
		if n.SentAt.IsZero() {
			logger.Warn("Skipping notification without sent_at", "id", n.ID)
			continue
		}
		day := n.SentAt.In(loc).Format(time.DateOnly)
		if i, ok := index[day]; ok {
			counts[i]++
			continue
		}
		index[day] = len(days)
		days = append(days, day)
		counts = append(counts, 1)
	}

	best := -1
	for i := range days {
		if best < 0 || counts[i] > counts[best] {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return days[best]
}

// Trend compares the volume of the second half of r with the first half.
func Trend(list []*notifier.Notification, r notifier.DateRange) string {
	mid := r.Start.Add(r.End.Sub(r.Start) / 2)
	var first, second int
	for _, n := range list {
		switch {
		case !r.Contains(n.SentAt):
		case n.SentAt.Before(mid):
			first++
		default:
			second++
		}
	}

	delta := second - first
	tolerance := max(1, first/10)
	switch {
	case delta > tolerance:
		return locale.TrendIncreasing
	case -delta > tolerance:
		return locale.TrendDecreasing
	default:
		return locale.TrendStable
	}
}

// Extractor computes period-dependent insights with localized labels.
type Extractor struct {
	catalog *locale.Catalog
	loc     *time.Location
	logger  *slog.Logger
}

// NewExtractor creates an Extractor.
func NewExtractor(catalog *locale.Catalog, loc *time.Location, logger *slog.Logger) *Extractor {
	return &Extractor{catalog: catalog, loc: loc, logger: logger}
}

// Insights computes categories and trends for weekly and monthly periods and
// the most active day for monthly periods.
func (e *Extractor) Insights(period notifier.Period, list []*notifier.Notification, r notifier.DateRange) notifier.Insights {
	var in notifier.Insights
	if period == notifier.Weekly || period == notifier.Monthly {
		in.Categories = map[string]int{}
		for key, count := range Categorize(list) {
			in.Categories[e.catalog.Category(key)] = count
		}
		in.Trends = e.catalog.Trend(Trend(list, r))
	}
	if period == notifier.Monthly {
		in.MostActiveDay = MostActiveDay(list, e.loc, e.logger)
	}
	return in
}
