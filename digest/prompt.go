package digest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/bytesforge-consulting/negra-midia-notification/locale"
	"github.com/bytesforge-consulting/negra-midia-notification/pkg/notifier"
)

type promptText struct {
	system       string // %[1]s period adjective, %[2]s extra "over the period" wording, %[3]s period framing
	overPeriod   string
	weekly       string
	monthly      string
	header       string // %[1]s adjective, %[2]s start, %[3]s end
	metrics      string
	periodCount  string
	unreadCount  string
	urgentCount  string
	senders      string
	urgent       string
	recent       string
	categories   string
	trend        string
	activeDay    string
	noSenders    string
	processTitle string
	processSys   string
}

var prompts = map[string]promptText{
	locale.PTBR: {
		system: `Você é um assistente executivo que cria resumos %[1]s para a plataforma Negra Mídia.

Crie um digest %[1]s profissional e estratégico incluindo:

1. **Visão Geral do Período**: Resumo das principais atividades
2. **Pendências Críticas**: Notificações urgentes que precisam de atenção imediata
3. **Métricas do Período**: Números e estatísticas relevantes
4. **Insights e Tendências**: Padrões observados%[2]s
5. **Ações Recomendadas**: Próximos passos prioritários

%[3]s
Mantenha tom executivo mas acessível. Use emojis moderadamente para organização visual.`,
		overPeriod:   " ao longo do período",
		weekly:       "Foque em padrões semanais e planejamento para a próxima semana.\n",
		monthly:      "Inclua análise de tendências mensais e recomendações estratégicas.\n",
		header:       "Digest %s para %s - %s:",
		metrics:      "📊 MÉTRICAS DO PERÍODO:",
		periodCount:  "- Notificações no período: %d",
		unreadCount:  "- Não lidas total: %d",
		urgentCount:  "- Urgentes detectadas: %d",
		senders:      "👥 PRINCIPAIS REMETENTES:",
		urgent:       "🚨 NOTIFICAÇÕES URGENTES:",
		recent:       "📋 ÚLTIMAS NÃO LIDAS:",
		categories:   "📈 CATEGORIAS:",
		trend:        "📉 TENDÊNCIA: %s",
		activeDay:    "📅 DIA MAIS ATIVO: %s",
		noSenders:    "Nenhum remetente",
		processTitle: "Notificações não lidas para análise (%d de %d):",
		processSys: `Você é um assistente que analisa notificações não lidas da plataforma Negra Mídia.

Para as notificações fornecidas, produza:
1. Um resumo curto do que está pendente
2. As notificações que exigem ação imediata
3. Sugestões de priorização

Seja conciso e objetivo.`,
	},
	locale.ENUS: {
		system: `You are an executive assistant who writes %[1]s summaries for the Negra Mídia platform.

Write a professional and strategic %[1]s digest including:

1. **Period Overview**: Summary of the main activity
2. **Critical Items**: Urgent notifications that need immediate attention
3. **Period Metrics**: Relevant numbers and statistics
4. **Insights and Trends**: Observed patterns%[2]s
5. **Recommended Actions**: Prioritized next steps

%[3]s
Keep an executive but approachable tone. Use emojis sparingly for visual structure.`,
		overPeriod:   " over the period",
		weekly:       "Focus on weekly patterns and planning for the next week.\n",
		monthly:      "Include monthly trend analysis and strategic recommendations.\n",
		header:       "%s digest for %s - %s:",
		metrics:      "📊 PERIOD METRICS:",
		periodCount:  "- Notifications in period: %d",
		unreadCount:  "- Total unread: %d",
		urgentCount:  "- Urgent detected: %d",
		senders:      "👥 TOP SENDERS:",
		urgent:       "🚨 URGENT NOTIFICATIONS:",
		recent:       "📋 LATEST UNREAD:",
		categories:   "📈 CATEGORIES:",
		trend:        "📉 TREND: %s",
		activeDay:    "📅 MOST ACTIVE DAY: %s",
		noSenders:    "No senders",
		processTitle: "Unread notifications to analyze (%d of %d):",
		processSys: `You are an assistant that analyzes unread notifications of the Negra Mídia platform.

For the notifications provided, produce:
1. A short summary of what is pending
2. The notifications that need immediate action
3. Prioritization suggestions

Be concise and objective.`,
	},
}

func textFor(c *locale.Catalog) promptText {
	if p, ok := prompts[c.Tag]; ok {
		return p
	}
	return prompts[locale.PTBR]
}

// promptInput carries everything the digest prompt embeds.
type promptInput struct {
	period     notifier.Period
	rng        notifier.DateRange
	periodSize int
	unread     []*notifier.Notification
	urgent     []*notifier.Notification
	topSenders []string
	insights   notifier.Insights
	budget     budget
}

// buildPrompt returns the system and user messages of a digest.
func buildPrompt(c *locale.Catalog, in promptInput) (system, user string) {
	t := textFor(c)
	adj := c.PeriodAdjective(in.period)

	over, framing := "", ""
	switch in.period {
	case notifier.Weekly:
		over, framing = t.overPeriod, t.weekly
	case notifier.Monthly:
		over, framing = t.overPeriod, t.monthly
	}
	system = fmt.Sprintf(t.system, adj, over, framing)

	var b strings.Builder
	fmt.Fprintf(&b, t.header, adj, c.FormatDate(in.rng.Start), c.FormatDate(in.rng.End))
	b.WriteString("\n\n")

	b.WriteString(t.metrics + "\n")
	fmt.Fprintf(&b, t.periodCount+"\n", in.periodSize)
	fmt.Fprintf(&b, t.unreadCount+"\n", len(in.unread))
	fmt.Fprintf(&b, t.urgentCount+"\n\n", len(in.urgent))

	b.WriteString(t.senders + "\n")
	senders := head(in.topSenders, in.budget.promptSenders)
	if len(senders) == 0 {
		b.WriteString(t.noSenders)
	} else {
		b.WriteString(strings.Join(senders, ", "))
	}
	b.WriteString("\n\n")

	b.WriteString(t.urgent + "\n")
	if lines := summaryLines(in.urgent, in.budget.promptUrgent); lines != "" {
		b.WriteString(lines)
	} else {
		b.WriteString(c.NoUrgent)
	}
	b.WriteString("\n\n")

	b.WriteString(t.recent + "\n")
	b.WriteString(summaryLines(in.unread, in.budget.promptRecent))
	b.WriteString("\n")

	if len(in.insights.Categories) > 0 {
		b.WriteString("\n" + t.categories + "\n")
		for _, e := range sortedCounts(in.insights.Categories) {
			fmt.Fprintf(&b, "- %s: %d\n", e.name, e.count)
		}
	}
	if in.insights.Trends != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, t.trend+"\n", in.insights.Trends)
	}
	if in.insights.MostActiveDay != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, t.activeDay+"\n", in.insights.MostActiveDay)
	}

	return system, b.String()
}

// buildProcessPrompt returns the messages used to summarize a batch of unread notifications.
func buildProcessPrompt(c *locale.Catalog, list []*notifier.Notification, total int64) (system, user string) {
	t := textFor(c)
	var b strings.Builder
	fmt.Fprintf(&b, t.processTitle+"\n", len(list), total)
	for _, n := range list {
		fmt.Fprintf(&b, "- %s <%s>: %s\n", n.Name, n.Email, n.Subject)
	}
	return t.processSys, b.String()
}

func summaryLines(list []*notifier.Notification, limit int) string {
	lines := make([]string, 0, limit)
	for _, n := range head(list, limit) {
		lines = append(lines, fmt.Sprintf("- %s: %s", n.Name, n.Subject))
	}
	return strings.Join(lines, "\n")
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

type namedCount struct {
	name  string
	count int
}

// sortedCounts orders a count map by count, then name, so prompts are stable.
func sortedCounts(m map[string]int) []namedCount {
	out := make([]namedCount, 0, len(m))
	for k, v := range m {
		out = append(out, namedCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].name < out[j].name
	})
	return out
}
