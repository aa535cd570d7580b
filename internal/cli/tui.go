package cli

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// PackageListModel - Interactive package browser
// =============================================================================

// PackageListModel is the bubbletea model for browsing the package listing.
// Enter selects the highlighted package; q or esc quits without a selection.
type PackageListModel struct {
	Packages []packageEntry
	Cursor   int
	Selected *packageEntry
	Height   int
	Offset   int
}

// NewPackageListModel creates a new package list model.
func NewPackageListModel(entries []packageEntry) PackageListModel {
	return PackageListModel{
		Packages: entries,
		Height:   15,
	}
}

func (m PackageListModel) Init() tea.Cmd {
	return nil
}

func (m PackageListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Packages)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "enter":
			if len(m.Packages) == 0 {
				return m, nil
			}
			e := m.Packages[m.Cursor]
			m.Selected = &e
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.Height = max(msg.Height-6, 5)
	}
	return m, nil
}

func (m PackageListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Packages"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  ⏎ select  q quit"))
	b.WriteString("\n\n")

	end := min(m.Offset+m.Height, len(m.Packages))

	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		e := m.Packages[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		older := "-"
		if len(e.Versions) > 1 {
			older = strings.Join(e.Versions[1:min(len(e.Versions), 4)], ", ")
			if len(e.Versions) > 4 {
				older += ", …"
			}
		}
		rows = append(rows, []string{cursor, e.Name, e.Latest, strconv.Itoa(len(e.Versions)), older})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Package", "Latest", "Versions", "Older").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			base := lipgloss.NewStyle()
			if col >= 3 {
				base = base.Foreground(colorDim)
			}
			if m.Offset+row == m.Cursor {
				return base.Foreground(colorCyan).Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n\n")
	if len(m.Packages) > 0 {
		b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Packages))))
	}

	return b.String()
}

// browsePackages runs the interactive browser and returns the selection, or
// nil when the user quit.
func browsePackages(entries []packageEntry) (*packageEntry, error) {
	final, err := tea.NewProgram(NewPackageListModel(entries)).Run()
	if err != nil {
		return nil, err
	}
	return final.(PackageListModel).Selected, nil
}
