package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	psutil "github.com/shirou/gopsutil/v3/cpu"
	psmem "github.com/shirou/gopsutil/v3/mem"

	"progminer/internal/client"
)

// Styles
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#000000")).
			Background(lipgloss.Color("#FFFF00")).
			Padding(0, 2).
			Bold(true).
			Width(80)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFFFF")).
			Background(lipgloss.Color("#4B5563")).
			Padding(0, 2).
			Width(80)

	deviceTableStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("#9CA3AF")).
				Padding(0, 1)

	solutionsStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#9CA3AF"))

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#3B82F6")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Bold(true)

	copyNoticeStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#10B981")).
			Foreground(lipgloss.Color("#FFFFFF")).
			Padding(0, 2).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#9CA3AF")).
			Italic(true)
)

type tickMsg time.Time

type statusMsg struct {
	health    *client.HealthResponse
	metrics   *client.MetricsResponse
	solutions []client.FoundSolution
	err       error
}

type hostMsg struct {
	cpuPercent float64
	memPercent float64
}

type copyNoticeExpiredMsg struct{}

// Model is the rig monitor.
type Model struct {
	api      *client.APIClient
	interval time.Duration

	health    *client.HealthResponse
	metrics   *client.MetricsResponse
	solutions []client.FoundSolution
	lastErr   error

	selected   int
	copyNotice string

	cpuPercent float64
	memPercent float64

	solutionsPane viewport.Model
	width         int
	height        int
	ready         bool
}

// NewModel builds a monitor polling the given client.
func NewModel(api *client.APIClient, interval time.Duration) Model {
	return Model{
		api:      api,
		interval: interval,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchStatus, fetchHost, m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetchStatus() tea.Msg {
	health, err := m.api.GetHealth()
	if err != nil {
		return statusMsg{err: err}
	}
	metrics, err := m.api.GetMetrics()
	if err != nil {
		return statusMsg{health: health, err: err}
	}
	solutions, err := m.api.GetSolutions()
	if err != nil {
		return statusMsg{health: health, metrics: metrics, err: err}
	}
	return statusMsg{health: health, metrics: metrics, solutions: solutions}
}

func fetchHost() tea.Msg {
	var msg hostMsg
	if percents, err := psutil.Percent(0, false); err == nil && len(percents) > 0 {
		msg.cpuPercent = percents[0]
	}
	if vm, err := psmem.VirtualMemory(); err == nil {
		msg.memPercent = vm.UsedPercent
	}
	return msg
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		paneHeight := msg.Height - 14
		if paneHeight < 3 {
			paneHeight = 3
		}
		if !m.ready {
			m.solutionsPane = viewport.New(msg.Width-4, paneHeight)
			m.ready = true
		} else {
			m.solutionsPane.Width = msg.Width - 4
			m.solutionsPane.Height = paneHeight
		}
		m.solutionsPane.SetContent(m.renderSolutions())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
			m.solutionsPane.SetContent(m.renderSolutions())
		case "down", "j":
			if m.selected < len(m.solutions)-1 {
				m.selected++
			}
			m.solutionsPane.SetContent(m.renderSolutions())
		case "c":
			if m.selected >= 0 && m.selected < len(m.solutions) {
				nonce := FormatNonce(m.solutions[m.selected].Nonce)
				if err := clipboard.WriteAll(nonce); err == nil {
					m.copyNotice = fmt.Sprintf("copied %s", nonce)
					return m, tea.Tick(2*time.Second, func(time.Time) tea.Msg {
						return copyNoticeExpiredMsg{}
					})
				}
			}
		case "r":
			return m, m.fetchStatus
		}

	case tickMsg:
		return m, tea.Batch(m.fetchStatus, fetchHost, m.tick())

	case statusMsg:
		m.lastErr = msg.err
		if msg.health != nil {
			m.health = msg.health
		}
		if msg.metrics != nil {
			m.metrics = msg.metrics
		}
		if msg.solutions != nil {
			m.solutions = msg.solutions
			if m.selected >= len(m.solutions) {
				m.selected = len(m.solutions) - 1
			}
			if m.selected < 0 {
				m.selected = 0
			}
		}
		if m.ready {
			m.solutionsPane.SetContent(m.renderSolutions())
		}
		return m, nil

	case hostMsg:
		m.cpuPercent = msg.cpuPercent
		m.memPercent = msg.memPercent
		return m, nil

	case copyNoticeExpiredMsg:
		m.copyNotice = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.solutionsPane, cmd = m.solutionsPane.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "starting monitor..."
	}

	var b strings.Builder

	title := "progminer rig monitor"
	if m.health != nil {
		title = fmt.Sprintf("progminer rig monitor | %s | %d device(s) | up %s",
			m.health.Driver, m.health.Devices, m.health.Uptime)
	}
	b.WriteString(headerStyle.Width(m.width).Render(ansi.Truncate(title, m.width-4, "...")))
	b.WriteString("\n")

	if m.lastErr != nil {
		b.WriteString(errorStyle.Render(ansi.Truncate("error: "+m.lastErr.Error(), m.width-2, "...")))
		b.WriteString("\n")
	}

	b.WriteString(m.renderDevices())
	b.WriteString("\n")

	b.WriteString(solutionsStyle.Width(m.width - 2).Render(m.solutionsPane.View()))
	b.WriteString("\n")

	if m.copyNotice != "" {
		b.WriteString(copyNoticeStyle.Render(m.copyNotice))
		b.WriteString("\n")
	}

	footer := fmt.Sprintf("host cpu %.1f%% | mem %.1f%% | %s",
		m.cpuPercent, m.memPercent,
		helpStyle.Render("up/down: select  c: copy nonce  r: refresh  q: quit"))
	b.WriteString(footerStyle.Width(m.width).Render(ansi.Truncate(footer, m.width-4, "...")))

	return b.String()
}

func (m Model) renderDevices() string {
	var rows []string
	rows = append(rows, fmt.Sprintf("%-8s %-8s %12s %12s %10s %10s",
		"DEVICE", "DRIVER", "HASHES", "SOLUTIONS", "HEIGHT", "EPOCH"))

	if m.metrics != nil {
		for _, d := range m.metrics.Devices {
			rows = append(rows, fmt.Sprintf("%-8d %-8s %12s %12d %10d %10d",
				d.Device, d.Driver,
				FormatHashCount(d.Stats.HashesAttempted),
				d.Stats.SolutionsFound,
				d.Stats.LastHeight, d.Stats.LastEpoch))
		}
		rows = append(rows, fmt.Sprintf("rig rate: %s", FormatHashRate(m.metrics.HashRate)))
	}

	return deviceTableStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) renderSolutions() string {
	if len(m.solutions) == 0 {
		return helpStyle.Render("no solutions yet")
	}

	var rows []string
	for i, s := range m.solutions {
		line := fmt.Sprintf("dev %d  height %d  nonce %s  mix %s  %s",
			s.Device, s.Height, FormatNonce(s.Nonce),
			s.MixHash.Hex(), s.Found.Format("15:04:05"))
		line = ansi.Truncate(line, m.solutionsPane.Width, "...")
		if i == m.selected {
			line = selectedStyle.Render(line)
		}
		rows = append(rows, line)
	}
	return strings.Join(rows, "\n")
}

// FormatNonce renders a nonce the way pools expect it, as a 16-digit
// hex quantity.
func FormatNonce(nonce uint64) string {
	return fmt.Sprintf("0x%016x", nonce)
}

// FormatHashRate renders hashes per second with a unit prefix.
func FormatHashRate(rate float64) string {
	switch {
	case rate >= 1e9:
		return fmt.Sprintf("%.2f GH/s", rate/1e9)
	case rate >= 1e6:
		return fmt.Sprintf("%.2f MH/s", rate/1e6)
	case rate >= 1e3:
		return fmt.Sprintf("%.2f kH/s", rate/1e3)
	default:
		return fmt.Sprintf("%.0f H/s", rate)
	}
}

// FormatHashCount renders an absolute hash count compactly.
func FormatHashCount(n uint64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.2fG", float64(n)/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.2fM", float64(n)/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fk", float64(n)/1e3)
	default:
		return fmt.Sprintf("%d", n)
	}
}
