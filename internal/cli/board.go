package cli

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

type boardModel struct {
	repo   core.TaskRepository
	engine core.StageTransitioner
	stages []models.Stage

	columns [][]*models.Task
	col     int
	row     int
	width   int
	height  int

	// follow is the task id to reselect after the next load.
	follow string

	loading bool
	status  string
	err     error
}

// boardLoadedMsg carries the task list back to the model.
type boardLoadedMsg struct {
	tasks []*models.Task
	err   error
}

// taskMovedMsg reports the outcome of a move started from the board.
type taskMovedMsg struct {
	id   string
	from models.Stage
	to   models.Stage
	err  error
}

// Style definitions.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	columnStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeColumnStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	selectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62"))

	emptyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func newBoardModel(repo core.TaskRepository, engine core.StageTransitioner) boardModel {
	stages := models.Stages()
	return boardModel{
		repo:    repo,
		engine:  engine,
		stages:  stages,
		columns: make([][]*models.Task, len(stages)),
		loading: true,
	}
}

func (m boardModel) Init() tea.Cmd {
	return m.load
}

func (m boardModel) load() tea.Msg {
	tasks, err := m.repo.List()
	return boardLoadedMsg{tasks: tasks, err: err}
}

// moveSelected moves the selected task delta columns, if both the task and
// the destination exist.
func (m boardModel) moveSelected(delta int) (boardModel, tea.Cmd) {
	task := m.selected()
	target := m.col + delta
	if task == nil || target < 0 || target >= len(m.stages) {
		return m, nil
	}

	from, to := m.stages[m.col], m.stages[target]
	engine := m.engine
	m.status = fmt.Sprintf("Moving %s to %s...", task.ID, to)
	return m, func() tea.Msg {
		_, err := engine.Move(context.Background(), core.MoveRequest{
			ID:   task.ID,
			From: string(from),
			To:   string(to),
		})
		return taskMovedMsg{id: task.ID, from: from, to: to, err: err}
	}
}

func (m boardModel) selected() *models.Task {
	if m.col < 0 || m.col >= len(m.columns) {
		return nil
	}
	column := m.columns[m.col]
	if m.row < 0 || m.row >= len(column) {
		return nil
	}
	return column[m.row]
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "left", "h":
			if m.col > 0 {
				m.col--
				m.clampRow()
			}
			return m, nil
		case "right", "l":
			if m.col < len(m.stages)-1 {
				m.col++
				m.clampRow()
			}
			return m, nil
		case "up", "k":
			if m.row > 0 {
				m.row--
			}
			return m, nil
		case "down", "j":
			if m.row < len(m.columns[m.col])-1 {
				m.row++
			}
			return m, nil
		case "[":
			return m.moveSelected(-1)
		case "]":
			return m.moveSelected(1)
		case "r":
			m.loading = true
			if t := m.selected(); t != nil {
				m.follow = t.ID
			}
			return m, m.load
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.setTasks(msg.tasks)
		return m, nil

	case taskMovedMsg:
		if msg.err != nil {
			m.status = ""
			m.err = fmt.Errorf("moving %s: %w", msg.id, msg.err)
			return m, nil
		}
		m.err = nil
		m.status = fmt.Sprintf("Moved %s: %s -> %s", msg.id, msg.from, msg.to)
		m.follow = msg.id
		m.loading = true
		return m, m.load
	}

	return m, nil
}

// setTasks distributes tasks into columns and restores the selection.
func (m *boardModel) setTasks(tasks []*models.Task) {
	index := make(map[models.Stage]int, len(m.stages))
	for i, st := range m.stages {
		index[st] = i
	}
	columns := make([][]*models.Task, len(m.stages))
	for _, t := range tasks {
		if i, ok := index[t.Stage]; ok {
			columns[i] = append(columns[i], t)
		}
	}
	m.columns = columns

	if m.follow != "" {
		for c, column := range columns {
			for r, t := range column {
				if t.ID == m.follow {
					m.col, m.row = c, r
				}
			}
		}
		m.follow = ""
	}
	m.clampRow()
}

func (m *boardModel) clampRow() {
	n := len(m.columns[m.col])
	if m.row >= n {
		m.row = n - 1
	}
	if m.row < 0 {
		m.row = 0
	}
}

func (m boardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" Task Board ")
	help := helpStyle.Render("←/→: column | ↑/↓: task | [/]: move task | r: refresh | q: quit")

	if m.loading && m.columns == nil {
		return fmt.Sprintf("%s\n\n  Loading tasks...\n\n%s", title, help)
	}

	colWidth := (m.width - 2) / len(m.stages)
	if colWidth < 16 {
		colWidth = 16
	}
	inner := colWidth - 4

	rendered := make([]string, len(m.stages))
	for i := range m.stages {
		style := columnStyle
		if i == m.col {
			style = activeColumnStyle
		}
		rendered[i] = style.Width(inner).Render(m.renderColumn(i, inner))
	}
	body := lipgloss.JoinHorizontal(lipgloss.Top, rendered...)

	footer := help
	switch {
	case m.err != nil:
		footer = errorStyle.Render("Error: "+m.err.Error()) + "\n" + help
	case m.status != "":
		footer = statusStyle.Render(m.status) + "\n" + help
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, footer)
}

func (m boardModel) renderColumn(i, width int) string {
	var b strings.Builder
	column := m.columns[i]
	b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", m.stages[i], len(column))))
	b.WriteString("\n")

	if len(column) == 0 {
		b.WriteString(emptyStyle.Render("empty"))
		return b.String()
	}

	for r, t := range column {
		line := truncate(t.Title, width)
		if i == m.col && r == m.row {
			line = selectedStyle.Render(line)
		}
		b.WriteString(line)
		if r < len(column)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if width <= 1 || len(runes) <= width {
		return s
	}
	return string(runes[:width-1]) + "…"
}

var boardCmd = &cobra.Command{
	Use:   "board",
	Short: "Interactive kanban view of the task board",
	Long: `Launch an interactive terminal board with one column per stage.

Select a column with ←/→ and a task with ↑/↓. Press [ or ] to move the
selected task one stage left or right. Refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Repo == nil || Engine == nil {
			return fmt.Errorf("task repository not initialized")
		}
		p := tea.NewProgram(newBoardModel(Repo, Engine), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(boardCmd)
}
