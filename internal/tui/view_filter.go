package tui

import (
	"fmt"
	"strconv"
	"strings"

	"marketdesk/internal/model"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
)

const (
	fieldMarketplace = iota
	fieldAccount
	fieldRead
	fieldCount
)

var (
	marketplaceChoices = []string{"all", "OZON", "WB"}
	readChoices        = []string{"unread", "all"}

	activeFieldStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	fieldStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
)

// filterForm edits a model.Filter. Marketplace and read state cycle through
// fixed choices; the account is typed.
type filterForm struct {
	field       int
	marketplace int
	read        int
	account     textinput.Model
}

func newFilterForm(f model.Filter) filterForm {
	ti := textinput.New()
	ti.Placeholder = "all"
	ti.CharLimit = 9
	ti.Width = 12
	ff := filterForm{account: ti}
	ff.load(f)
	return ff
}

// load shows f in the form.
func (ff *filterForm) load(f model.Filter) {
	ff.marketplace = 0
	for i, c := range marketplaceChoices {
		if c == f.Marketplace.String() {
			ff.marketplace = i
		}
	}
	ff.read = 0
	if f.Read == model.ReadAll {
		ff.read = 1
	}
	ff.account.SetValue("")
	if f.AccountID != 0 {
		ff.account.SetValue(strconv.Itoa(f.AccountID))
	}
}

func (ff *filterForm) focus(field int) {
	ff.field = (field + fieldCount) % fieldCount
	if ff.field == fieldAccount {
		ff.account.Focus()
	} else {
		ff.account.Blur()
	}
}

// cycle moves the choice under the cursor by delta.
func (ff *filterForm) cycle(delta int) {
	switch ff.field {
	case fieldMarketplace:
		ff.marketplace = (ff.marketplace + delta + len(marketplaceChoices)) % len(marketplaceChoices)
	case fieldRead:
		ff.read = (ff.read + delta + len(readChoices)) % len(readChoices)
	}
}

func (ff filterForm) filter() (model.Filter, error) {
	return model.ParseFilter(marketplaceChoices[ff.marketplace], ff.account.Value(), readChoices[ff.read])
}

func (ff filterForm) View() string {
	row := func(field int, label, value string) string {
		style := fieldStyle
		cursor := "  "
		if ff.field == field {
			style = activeFieldStyle
			cursor = "> "
		}
		return cursor + style.Render(fmt.Sprintf("%-12s %s", label, value))
	}
	var b strings.Builder
	b.WriteString(headerStyle.Render("Filters"))
	b.WriteString("\n")
	b.WriteString(row(fieldMarketplace, "Marketplace", "< "+marketplaceChoices[ff.marketplace]+" >"))
	b.WriteString("\n")
	b.WriteString(row(fieldAccount, "Account", ff.account.View()))
	b.WriteString("\n")
	b.WriteString(row(fieldRead, "Show", "< "+readChoices[ff.read]+" >"))
	b.WriteString("\n")
	return b.String()
}

func filterFooter() string {
	return footerStyle.Render("tab/↑↓: field  ←→: change  enter: apply  esc: back  ctrl+c: quit")
}
