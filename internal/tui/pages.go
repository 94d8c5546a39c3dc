package tui

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"finboard/internal/core"
	"finboard/internal/dashboard"
	"finboard/internal/render"
	"finboard/internal/state"
)

type page int

const (
	pageAnalytics page = iota
	pageHistory
	pageChat
	pageProfile
)

var pageKeys = map[string]page{"5": pageHistory, "6": pageChat, "7": pageProfile}

var pageTitles = []struct {
	key   string
	page  page
	title string
}{
	{"5", pageHistory, "История"},
	{"6", pageChat, "Агент"},
	{"7", pageProfile, "Профиль"},
}

const (
	historyHelp = "w/m/y период · / фильтры · ↑↓ файл · X удалить файл · E экспорт · i импорт · D демо · R сброс"
	chatHelp    = "a вопрос агенту · 1-4 вкладки · q выход"
	profileHelp = "g цели · p профиль · 1-4 вкладки · q выход"
)

var opTypes = map[string]string{
	"":        "all",
	"все":     "all",
	"all":     "all",
	"доходы":  "income",
	"income":  "income",
	"расходы": "expense",
	"expense": "expense",
}

func (m *Model) setPage(p page) {
	m.page = p
	m.selected = 0
	m.offset = 0
}

// handleCommonKey covers the keys available on every page. It reports
// whether key was one of them.
func (m *Model) handleCommonKey(key string) (tea.Cmd, bool) {
	switch key {
	case "ctrl+c", "q":
		return tea.Quit, true
	case "1", "2", "3", "4":
		m.page = pageAnalytics
		return m.switchTab(core.Tabs[int(key[0]-'1')]), true
	case "5", "6", "7":
		m.setPage(pageKeys[key])
		return nil, true
	case "pgdown":
		m.offset += m.pageSize()
		return nil, true
	case "pgup":
		m.offset = max(0, m.offset-m.pageSize())
		return nil, true
	case "r":
		return m.run("обновление", m.dash.Refresh), true
	case "x":
		m.dash.ClearToast()
		return nil, true
	case "i":
		m.form = newForm("Импорт выписки", m.importStatement,
			"Банк ("+strings.Join(core.Banks, ", ")+")", "Путь к CSV")
		return nil, true
	case "D":
		return m.confirmThen("Загрузить демо-данные?", "демо-данные", m.dash.ImportDemo), true
	case "R":
		return m.confirmThen("Удалить все данные на сервере?", "сброс", m.dash.Reset), true
	case "a":
		m.setPage(pageChat)
		m.form = newForm("Вопрос агенту", func(v []string) tea.Cmd {
			q := v[0]
			return m.run("вопрос", func(ctx context.Context) error { return m.dash.Ask(ctx, q) })
		}, "Вопрос")
		return nil, true
	case "E":
		return m.run("экспорт истории", func(ctx context.Context) error {
			_, err := m.dash.ExportHistory(ctx)
			return err
		}), true
	}
	return nil, false
}

// importStatement opens the file at the given path and uploads it.
func (m *Model) importStatement(v []string) tea.Cmd {
	bank, path := strings.TrimSpace(v[0]), strings.TrimSpace(v[1])
	return m.run("импорт", func(ctx context.Context) error {
		if path == "" {
			return m.dash.Import(ctx, bank, "", nil)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open statement: %w", err)
		}
		defer f.Close()
		return m.dash.Import(ctx, bank, filepath.Base(path), f)
	})
}

func (m *Model) handleHistoryKey(key string, st dashboard.Status) tea.Cmd {
	switch key {
	case "w", "m", "y":
		r := quickRanges[key]
		return m.run("период истории", func(ctx context.Context) error { return m.dash.ApplyHistoryRange(ctx, r) })
	case "/":
		q := st.HistoryQuery
		exclude := "нет"
		if q.ExcludeTransfers {
			exclude = "да"
		}
		m.form = newForm("Фильтры истории", m.applyHistoryFilters,
			"С (ГГГГ-ММ-ДД)", "По (ГГГГ-ММ-ДД)", "Тип (все, доходы, расходы)", "Без переводов (да/нет)").
			prefill(q.Period.Start, q.Period.End, q.Type, exclude)
	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
	case "down", "j":
		m.selected++
		m.clampSelection()
	case "X":
		if len(st.Files) == 0 {
			return nil
		}
		file := st.Files[min(m.selected, len(st.Files)-1)]
		return m.confirmThen(fmt.Sprintf("Удалить файл %s?", file.Name), "удаление файла",
			func(ctx context.Context) error { return m.dash.DeleteFile(ctx, file.ID) })
	}
	return nil
}

func (m *Model) applyHistoryFilters(v []string) tea.Cmd {
	typ, ok := opTypes[strings.ToLower(strings.TrimSpace(v[2]))]
	if !ok {
		typ = strings.TrimSpace(v[2])
	}
	q := core.OperationsQuery{
		Period:           core.Period{Start: strings.TrimSpace(v[0]), End: strings.TrimSpace(v[1])},
		Type:             typ,
		ExcludeTransfers: isYes(v[3]),
	}
	return m.run("фильтры истории", func(ctx context.Context) error { return m.dash.SetHistoryQuery(ctx, q) })
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "да", "д", "yes", "y", "1":
		return true
	}
	return false
}

func (m *Model) handleProfileKey(key string, st dashboard.Status) tea.Cmd {
	switch key {
	case "g":
		m.form = newForm("Цели", func(v []string) tea.Cmd {
			text := v[0]
			return m.run("цели", func(ctx context.Context) error { return m.dash.SetGoals(ctx, text) })
		}, "Цели").prefill(st.Goals)
	case "p":
		p := st.Profile
		m.form = newForm("Профиль", m.saveProfile,
			"Имя", "Валюта", "Язык", "Часовой пояс", "Доход", "День зарплаты",
			"Режим", "Приоритет", "Тон", "PIN").
			prefill(p.Name, p.Currency, p.Language, p.Timezone, p.Income, p.Payday,
				p.Mode, p.Priority, p.Tone, p.Pin)
	}
	return nil
}

func (m *Model) saveProfile(v []string) tea.Cmd {
	for i := range v {
		v[i] = strings.TrimSpace(v[i])
	}
	p := core.Profile{
		Name: v[0], Currency: v[1], Language: v[2], Timezone: v[3], Income: v[4],
		Payday: v[5], Mode: v[6], Priority: v[7], Tone: v[8], Pin: v[9],
	}
	return m.run("профиль", func(ctx context.Context) error { return m.dash.SaveProfile(ctx, p) })
}

func (m *Model) historyBody(st dashboard.Status) string {
	q := st.HistoryQuery
	typ := q.Type
	if typ == "" {
		typ = "all"
	}
	filters := fmt.Sprintf("История: %s · тип %s", strings.TrimPrefix(periodLabel(q.Period), "Период: "), typ)
	if q.ExcludeTransfers {
		filters += " · без переводов"
	}
	lines := []string{periodStyle.Render(filters), m.screen.View(render.TableHistory, render.TableFiles)}
	if n := len(st.Files); n > 0 {
		i := min(m.selected, n-1)
		lines = append(lines, selectStyle.Render(fmt.Sprintf("▸ %s (%d/%d)", st.Files[i].Name, i+1, n)))
	}
	return strings.Join(lines, "\n")
}

func chatBody(st dashboard.Status) string {
	if len(st.Messages) == 0 {
		return periodStyle.Render("Задайте вопрос агенту: a")
	}
	lines := make([]string, 0, len(st.Messages))
	for _, msg := range st.Messages {
		who := "Агент"
		if msg.Role == state.RoleUser {
			who = "Вы"
		}
		lines = append(lines, selectStyle.Render(who+": ")+msg.Text)
	}
	return strings.Join(lines, "\n")
}

func (m *Model) profileBody(st dashboard.Status) string {
	p := st.Profile
	rows := []struct{ label, value string }{
		{"Имя", p.Name}, {"Валюта", p.Currency}, {"Язык", p.Language},
		{"Часовой пояс", p.Timezone}, {"Доход", p.Income}, {"День зарплаты", p.Payday},
		{"Режим", p.Mode}, {"Приоритет", p.Priority}, {"Тон", p.Tone},
	}
	lines := []string{m.screen.View(render.TextGoals), selectStyle.Render("Профиль")}
	for _, r := range rows {
		v := r.value
		if v == "" {
			v = "-"
		}
		lines = append(lines, formLabelStyle.Render(r.label+": ")+v)
	}
	if p.Pin != "" {
		lines = append(lines, formLabelStyle.Render("PIN: ")+strings.Repeat("•", len([]rune(p.Pin))))
	}
	return strings.Join(lines, "\n")
}

func pageHelp(p page) string {
	switch p {
	case pageHistory:
		return historyHelp
	case pageChat:
		return chatHelp
	case pageProfile:
		return profileHelp
	}
	return helpText
}
