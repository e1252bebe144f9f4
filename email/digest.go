package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

const (
	mailSenders    = 5
	mailCategories = 3
)

// Labels are the localized strings of the digest email.
type Labels struct {
	Subject     string // %[1]s period title, %[2]s start, %[3]s end
	Heading     string // %s period title
	Period      string
	Total       string
	Unread      string
	Urgent      string
	UrgentBadge string // %d urgent count
	Summary     string
	Senders     string
	Insights    string
	ActiveDay   string
	Categories  string
	Trend       string
	GeneratedAt string
	TimeLayout  string
}

var mailLabels = map[string]Labels{
	locale.PTBR: {
		Subject:     "Digest %[1]s de %[2]s à %[3]s",
		Heading:     "Digest %s",
		Period:      "Período",
		Total:       "Total de notificações",
		Unread:      "Não lidas",
		Urgent:      "Urgentes",
		UrgentBadge: "%d notificação(ões) urgente(s) requer(em) atenção",
		Summary:     "Resumo",
		Senders:     "Principais remetentes",
		Insights:    "Insights",
		ActiveDay:   "Dia mais ativo",
		Categories:  "Categorias principais",
		Trend:       "Tendência",
		GeneratedAt: "Gerado em %s por Bytes Forge Consultoria",
		TimeLayout:  "02/01/2006 15:04",
	},
	locale.ENUS: {
		Subject:     "%[1]s digest from %[2]s to %[3]s",
		Heading:     "%s digest",
		Period:      "Period",
		Total:       "Total notifications",
		Unread:      "Unread",
		Urgent:      "Urgent",
		UrgentBadge: "%d urgent notification(s) need attention",
		Summary:     "Summary",
		Senders:     "Top senders",
		Insights:    "Insights",
		ActiveDay:   "Most active day",
		Categories:  "Top categories",
		Trend:       "Trend",
		GeneratedAt: "Generated at %s by Bytes Forge Consultoria",
		TimeLayout:  "01/02/2006 3:04 PM",
	},
}

func labelsFor(c *locale.Catalog) Labels {
	if l, ok := mailLabels[c.Tag]; ok {
		return l
	}
	return mailLabels[locale.PTBR]
}

// CategoryCount is one row of the categories section.
type CategoryCount struct {
	Name  string
	Count int
}

// DigestView is the data passed to the digest templates.
type DigestView struct {
	L                  Labels
	Lang               string
	Heading            string
	PeriodLabel        string
	StartDate          string
	EndDate            string
	TotalNotifications int
	UnreadCount        int
	UrgentCount        int
	UrgentBadge        string
	Digest             string
	TopSenders         []string
	Categories         []CategoryCount
	MostActiveDay      string
	Trend              string
	HasInsights        bool
	GeneratedAt        string
}

// Recorder observes email deliveries.
type Recorder interface {
	ObserveEmail(provider, outcome string)
}

// DigestMailer renders digests and sends them to the configured recipients.
type DigestMailer struct {
	provider   Provider
	renderer   Renderer
	catalog    *locale.Catalog
	loc        *time.Location
	recipients []string
	logger     *slog.Logger
	recorder   Recorder
	now        func() time.Time
}

// MailerConfig holds DigestMailer dependencies.
type MailerConfig struct {
	Provider   Provider
	Renderer   Renderer
	Catalog    *locale.Catalog
	Location   *time.Location
	Recipients []string
	Logger     *slog.Logger
	Recorder   Recorder // optional
}

// NewDigestMailer creates a DigestMailer.
func NewDigestMailer(cfg *MailerConfig) *DigestMailer {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &DigestMailer{
		provider:   cfg.Provider,
		renderer:   cfg.Renderer,
		catalog:    cfg.Catalog,
		loc:        loc,
		recipients: cfg.Recipients,
		logger:     cfg.Logger,
		recorder:   cfg.Recorder,
		now:        time.Now,
	}
}

// Subject returns the email subject of a digest.
func (m *DigestMailer) Subject(d *notifier.DigestResult) string {
	return fmt.Sprintf(labelsFor(m.catalog).Subject, m.catalog.PeriodTitle(d.Period), d.StartDate, d.EndDate)
}

// SendDigest renders d and sends it. It returns the provider message id.
func (m *DigestMailer) SendDigest(ctx context.Context, d *notifier.DigestResult) (string, error) {
	if d == nil {
		return "", &notifier.ValidationError{Field: "digest", Message: "is required"}
	}
	if len(m.recipients) == 0 {
		return "", &notifier.ValidationError{Field: "email.digest_to", Message: "no digest recipients configured"}
	}

	html := m.RenderHTML(d)
	text, err := plainText(html)
	if err != nil {
		m.logger.Warn("Failed to derive plain-text body", "error", err)
		text = ""
	}

	subject := m.Subject(d)
	m.logger.Info("Sending digest email",
		"period", d.Period,
		"provider", m.provider.Name(),
		"to", m.recipients,
		"subject", subject)

	id, err := m.provider.Send(ctx, &Message{
		To:      m.recipients,
		Subject: subject,
		HTML:    html,
		Text:    text,
	})
	if err != nil {
		m.observe("failure")
		return "", &notifier.ExternalServiceError{Service: "email", Err: err}
	}
	m.observe("success")
	m.logger.Info("Digest email sent", "period", d.Period, "id", id)
	return id, nil
}

func (m *DigestMailer) observe(outcome string) {
	if m.recorder != nil {
		m.recorder.ObserveEmail(m.provider.Name(), outcome)
	}
}

// RenderHTML renders the digest body. A failing digest template falls back
// to the fallback template and then to a minimal inline page.
func (m *DigestMailer) RenderHTML(d *notifier.DigestResult) string {
	view := m.view(d)

	html, err := m.renderer.Render(DigestTemplate, view)
	if err == nil {
		return html
	}
	m.logger.Warn("Digest template failed, using fallback", "error", err)

	html, err = m.renderer.Render(FallbackTemplate, view)
	if err == nil {
		return html
	}
	m.logger.Error("Fallback template failed, using inline HTML", "error", err)
	return inlineHTML(view)
}

func (m *DigestMailer) view(d *notifier.DigestResult) *DigestView {
	l := labelsFor(m.catalog)
	title := m.catalog.PeriodTitle(d.Period)
	v := &DigestView{
		L:                  l,
		Lang:               m.catalog.Tag,
		Heading:            fmt.Sprintf(l.Heading, title),
		PeriodLabel:        title,
		StartDate:          d.StartDate,
		EndDate:            d.EndDate,
		TotalNotifications: d.TotalNotifications,
		UnreadCount:        d.UnreadCount,
		UrgentCount:        len(d.UrgentNotifications),
		Digest:             d.Digest,
		TopSenders:         d.TopSenders,
		MostActiveDay:      d.Insights.MostActiveDay,
		Trend:              d.Insights.Trends,
		HasInsights:        !d.Insights.Empty(),
		GeneratedAt:        fmt.Sprintf(l.GeneratedAt, m.now().In(m.loc).Format(l.TimeLayout)),
	}
	if len(v.TopSenders) > mailSenders {
		v.TopSenders = v.TopSenders[:mailSenders]
	}
	if v.UrgentCount > 0 {
		v.UrgentBadge = fmt.Sprintf(l.UrgentBadge, v.UrgentCount)
	}
	v.Categories = topCategories(d.Insights.Categories, mailCategories)
	return v
}

func topCategories(m map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(m))
	for name, count := range m {
		out = append(out, CategoryCount{Name: name, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func inlineHTML(v *DigestView) string {
	return fmt.Sprintf(`<html>
<body style="font-family: Arial, sans-serif; padding: 20px;">
<h1>%s</h1>
<p>%s: %s - %s</p>
<p>%s: %d</p>
<p>%s: %s</p>
<p><small>%s</small></p>
</body>
</html>`,
		escapeHTML(v.Heading),
		escapeHTML(v.L.Period), escapeHTML(v.StartDate), escapeHTML(v.EndDate),
		escapeHTML(v.L.Total), v.TotalNotifications,
		escapeHTML(v.L.Summary), escapeHTML(v.Digest),
		escapeHTML(v.GeneratedAt))
}

// errRenderer always fails; used when templates cannot be loaded at all.
type errRenderer struct{ err error }

func (r errRenderer) Render(string, any) (string, error) { return "", r.err }

// FailingRenderer returns a Renderer whose every call fails with err, so
// delivery still goes out through the inline page.
func FailingRenderer(err error) Renderer {
	if err == nil {
		err = errors.New("templates unavailable")
	}
	return errRenderer{err: err}
}
