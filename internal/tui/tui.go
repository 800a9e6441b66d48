package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
	"github.com/lox/blackjack/internal/bot"
	"github.com/lox/blackjack/internal/game"
	"github.com/lox/blackjack/internal/storage"
)

// Table is the remote table the TUI plays against
type Table interface {
	StartRound(ctx context.Context, bet int64) (game.Snapshot, error)
	Hit(ctx context.Context, roundID string) (game.Snapshot, error)
	Stand(ctx context.Context, roundID string) (game.Snapshot, error)
	DoubleDown(ctx context.Context, roundID string) (game.Snapshot, error)
	GetStats(ctx context.Context) (storage.Stats, error)
}

// Options configures a TUIModel
type Options struct {
	UserID         string
	Balance        int64
	DefaultBet     int64
	ActiveRound    *game.Snapshot
	ShowHints      bool
	RequestTimeout time.Duration
}

// TUIModel represents the Bubble Tea model for the blackjack table
type TUIModel struct {
	table  Table
	logger *log.Logger
	hinter bot.Bot

	// UI components
	logViewport viewport.Model
	actionInput textinput.Model

	// State
	gameLog     []string
	quitting    bool
	focusedPane int // 0 = log, 1 = input
	busy        bool

	userID    string
	balance   int64
	bet       int64
	round     *game.Snapshot
	showHints bool
	timeout   time.Duration

	// Dimensions
	width       int
	height      int
	initialized bool
}

// roundMsg carries the server's reply to a round action
type roundMsg struct {
	action string
	snap   game.Snapshot
}

type statsMsg struct {
	stats storage.Stats
}

type errMsg struct {
	action string
	err    error
}

// NewTUIModel creates a new TUI model
func NewTUIModel(table Table, opts Options, logger *log.Logger) *TUIModel {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "deal, hit, stand, double, bet 25, stats, quit"
	ti.Focus()
	ti.CharLimit = 100
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	if opts.DefaultBet <= 0 {
		opts.DefaultBet = 10
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}

	m := &TUIModel{
		table:       table,
		logger:      logger.WithPrefix("tui"),
		hinter:      bot.NewBasicBot(logger),
		logViewport: vp,
		actionInput: ti,
		focusedPane: 1,
		userID:      opts.UserID,
		balance:     opts.Balance,
		bet:         opts.DefaultBet,
		round:       opts.ActiveRound,
		showHints:   opts.ShowHints,
		timeout:     opts.RequestTimeout,
	}

	m.AddLogEntry(fmt.Sprintf("Welcome %s, balance $%d", opts.UserID, opts.Balance))
	if m.round != nil && !m.round.IsComplete() {
		m.AddLogEntry(fmt.Sprintf("Resuming round %s", m.round.RoundID))
	}
	return m
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case roundMsg:
		m.busy = false
		m.applyRound(msg.action, msg.snap)

	case statsMsg:
		m.busy = false
		s := msg.stats
		m.AddLogEntry(InfoStyle.Render(fmt.Sprintf("Stats: %d games, %d won, %d lost, %d drawn, win rate %.1f%%, net $%d",
			s.TotalGames, s.Wins, s.Losses, s.Draws, s.WinRate*100, s.Net())))

	case errMsg:
		m.busy = false
		m.logger.Debug("Action failed", "action", msg.action, "error", msg.err)
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("%s failed: %v", msg.action, msg.err)))

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			if m.focusedPane == 0 {
				m.focusedPane = 1
				m.actionInput.Focus()
			} else {
				m.focusedPane = 0
				m.actionInput.Blur()
			}
		case "enter":
			if m.focusedPane == 1 {
				input := m.actionInput.Value()
				m.actionInput.SetValue("")
				if cmd := m.processAction(input); cmd != nil {
					return m, cmd
				}
			}
		case "up", "k":
			if m.focusedPane == 0 {
				m.logViewport.ScrollUp(1)
			}
		case "down", "j":
			if m.focusedPane == 0 {
				m.logViewport.ScrollDown(1)
			}
		case "home", "g":
			if m.focusedPane == 0 {
				m.logViewport.GotoTop()
			}
		case "end", "G":
			if m.focusedPane == 0 {
				m.logViewport.GotoBottom()
			}
		}
	}

	var cmd tea.Cmd
	if m.focusedPane == 1 {
		m.actionInput, cmd = m.actionInput.Update(msg)
		cmds = append(cmds, cmd)
	}

	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// processAction parses a typed command and returns the command that
// performs it, if any
func (m *TUIModel) processAction(input string) tea.Cmd {
	parts := strings.Fields(strings.ToLower(strings.TrimSpace(input)))
	if len(parts) == 0 {
		if m.round == nil || m.round.IsComplete() {
			return m.deal(m.bet)
		}
		return nil
	}

	action, args := parts[0], parts[1:]
	switch action {
	case "quit", "q", "exit":
		m.quitting = true
		return tea.Sequence(tea.ClearScreen, tea.Quit)

	case "help", "?":
		m.AddLogEntry(InfoStyle.Render("Commands: deal [bet], hit, stand, double, bet <amount>, stats, quit"))
		return nil

	case "bet":
		if len(args) != 1 {
			m.AddLogEntry(ErrorStyle.Render("usage: bet <amount>"))
			return nil
		}
		amount, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || amount <= 0 {
			m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("invalid bet %q", args[0])))
			return nil
		}
		m.bet = amount
		m.AddLogEntry(fmt.Sprintf("Bet set to $%d", amount))
		return nil

	case "deal", "d", "new":
		bet := m.bet
		if len(args) == 1 {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("invalid bet %q", args[0])))
				return nil
			}
			bet = amount
		}
		return m.deal(bet)

	case "hit", "h":
		return m.roundAction("hit", m.table.Hit)
	case "stand", "s":
		return m.roundAction("stand", m.table.Stand)
	case "double", "dd", "double_down":
		return m.roundAction("double", m.table.DoubleDown)

	case "stats":
		return m.request(func(ctx context.Context) tea.Msg {
			stats, err := m.table.GetStats(ctx)
			if err != nil {
				return errMsg{action: "stats", err: err}
			}
			return statsMsg{stats: stats}
		})

	default:
		m.AddLogEntry(ErrorStyle.Render(fmt.Sprintf("unknown command %q, try help", action)))
		return nil
	}
}

func (m *TUIModel) deal(bet int64) tea.Cmd {
	if m.round != nil && !m.round.IsComplete() {
		m.AddLogEntry(WarningStyle.Render("Finish the current round first"))
		return nil
	}
	return m.request(func(ctx context.Context) tea.Msg {
		snap, err := m.table.StartRound(ctx, bet)
		if err != nil {
			return errMsg{action: "deal", err: err}
		}
		return roundMsg{action: "deal", snap: snap}
	})
}

func (m *TUIModel) roundAction(name string, fn func(context.Context, string) (game.Snapshot, error)) tea.Cmd {
	if m.round == nil || m.round.IsComplete() {
		m.AddLogEntry(WarningStyle.Render("No active round, type deal to start one"))
		return nil
	}
	roundID := m.round.RoundID
	return m.request(func(ctx context.Context) tea.Msg {
		snap, err := fn(ctx, roundID)
		if err != nil {
			return errMsg{action: name, err: err}
		}
		return roundMsg{action: name, snap: snap}
	})
}

// request runs fn off the update loop with the request timeout
func (m *TUIModel) request(fn func(ctx context.Context) tea.Msg) tea.Cmd {
	if m.busy {
		m.AddLogEntry(WarningStyle.Render("Waiting for the server..."))
		return nil
	}
	m.busy = true
	timeout := m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return fn(ctx)
	}
}

func (m *TUIModel) applyRound(action string, snap game.Snapshot) {
	m.round = &snap
	m.balance = snap.Balance

	if action == "deal" {
		m.AddBoldLogEntry(fmt.Sprintf("Round %s: bet $%d", snap.RoundID, snap.BetAmount))
	}
	m.AddLogEntry(fmt.Sprintf("%s -> You %s (%d)  Dealer %s",
		action, formatCards(snap.PlayerHand), snap.PlayerScore, formatCards(snap.DealerHand)))

	if snap.IsComplete() {
		m.AddLogEntry(ResultLine(snap))
	}
}

// ResultLine describes a finished round
func ResultLine(snap game.Snapshot) string {
	var payout int64
	if snap.Payout != nil {
		payout = *snap.Payout
	}
	net := payout - snap.BetAmount

	switch {
	case snap.Result == game.Win && snap.Blackjack:
		return SuccessStyle.Render(fmt.Sprintf("Blackjack! You win $%d (dealer %d)", net, snap.DealerScore))
	case snap.Result == game.Win:
		return SuccessStyle.Render(fmt.Sprintf("You win $%d (%d vs dealer %d)", net, snap.PlayerScore, snap.DealerScore))
	case snap.Result == game.Draw:
		return WarningStyle.Render(fmt.Sprintf("Push at %d, bet returned", snap.PlayerScore))
	case snap.PlayerScore > 21:
		return ErrorStyle.Render(fmt.Sprintf("Bust with %d, you lose $%d", snap.PlayerScore, -net))
	default:
		return ErrorStyle.Render(fmt.Sprintf("You lose $%d (%d vs dealer %d)", -net, snap.PlayerScore, snap.DealerScore))
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)

	actionPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#04B575")).
		Width(max(m.width-2, 1)).
		Height(max(actionHeight, 1)).
		Render(actionContent)

	sidebarContent := m.renderSidebarPane()
	sidebarWidth := max(lipgloss.Width(sidebarContent), 25)
	paneHeight := max(m.height-actionHeight-4, 1)

	sidebarPane := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(sidebarWidth).
		Height(paneHeight).
		Render(sidebarContent)

	logWidth := max(m.width-sidebarWidth-4, 1)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.Width = logWidth
	m.logViewport.Height = paneHeight

	if !m.initialized && logWidth > 1 && paneHeight > 1 {
		m.logViewport.GotoBottom()
		m.initialized = true
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(logWidth).
		Height(paneHeight)
	if m.focusedPane == 0 {
		logStyle = logStyle.BorderForeground(lipgloss.Color("#04B575"))
	}
	logPane := logStyle.Render(m.logViewport.View())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, logPane, sidebarPane)
	return lipgloss.JoinVertical(lipgloss.Top, topRow, actionPane)
}

func (m *TUIModel) renderSidebarPane() string {
	var content strings.Builder

	content.WriteString(HeaderStyle.Render(" " + m.userID + " "))
	content.WriteString("\n\n")
	content.WriteString(WarningStyle.Render(fmt.Sprintf("Balance: $%d", m.balance)))
	content.WriteString("\n")
	content.WriteString(InfoStyle.Render(fmt.Sprintf("Next bet: $%d", m.bet)))
	content.WriteString("\n")

	if m.round != nil {
		content.WriteString("\n")
		content.WriteString(InfoStyle.Render("Round " + m.round.RoundID))
		content.WriteString("\n")
		content.WriteString(PlayerInfoStyle.Render(fmt.Sprintf("In play: $%d", m.round.BetAmount)))
		content.WriteString("\n")
	}
	return content.String()
}

func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	if m.round != nil && !m.round.IsComplete() {
		content.WriteString(m.renderHandInfo(*m.round))
		content.WriteString("\n")
		content.WriteString(m.renderAvailableActions(*m.round))
		content.WriteString("\n")
		if hint := m.Hint(); hint != "" {
			content.WriteString(InfoStyle.Render(hint))
			content.WriteString("\n")
		}
		m.actionInput.Placeholder = "hit, stand, double"
	} else {
		content.WriteString(HandInfoStyle.Render(fmt.Sprintf("Enter to deal $%d", m.bet)))
		content.WriteString("\n")
		m.actionInput.Placeholder = "deal, bet 25, stats, quit"
	}

	content.WriteString(m.actionInput.View())
	content.WriteString("\n")

	help := "Tab to scroll log • Enter to submit • Ctrl+C to quit"
	if m.focusedPane == 0 {
		help = "Log focused: ↑↓ scroll, Home/End, Tab to input"
	}
	content.WriteString(InfoStyle.Render(help))
	return content.String()
}

func (m *TUIModel) renderHandInfo(snap game.Snapshot) string {
	return HandInfoStyle.Render(fmt.Sprintf("You: %s (%d)  Dealer: %s (%d)",
		formatCards(snap.PlayerHand), snap.PlayerScore,
		formatCards(snap.DealerHand), snap.DealerScore))
}

func (m *TUIModel) renderAvailableActions(snap game.Snapshot) string {
	actions := []string{
		SuccessStyle.Render("[hit]"),
		WarningStyle.Render("[stand]"),
	}
	if len(snap.PlayerHand) == 2 && m.balance >= snap.BetAmount {
		actions = append(actions, ErrorStyle.Render("[double]"))
	}
	return ActionsStyle.Render("Actions: " + strings.Join(actions, " "))
}

// Hint returns the basic strategy suggestion for the active round
func (m *TUIModel) Hint() string {
	if !m.showHints || m.round == nil || m.round.IsComplete() {
		return ""
	}
	view, err := bot.ViewFromSnapshot(*m.round)
	if err != nil {
		return ""
	}
	view.Balance = m.balance
	d := m.hinter.Decide(view)
	return fmt.Sprintf("Hint: %s (%s)", d.Action, d.Reasoning)
}

// formatCards formats cards with colors. Hidden cards render as ??.
func formatCards(cards []game.CardView) string {
	if len(cards) == 0 {
		return "[]"
	}

	formatted := make([]string, 0, len(cards))
	for _, cv := range cards {
		card, ok := cv.Card()
		switch {
		case !ok:
			formatted = append(formatted, HiddenCardStyle.Render("??"))
		case card.IsRed():
			formatted = append(formatted, RedCardStyle.Render(card.String()))
		default:
			formatted = append(formatted, BlackCardStyle.Render(card.String()))
		}
	}
	return "[" + strings.Join(formatted, " ") + "]"
}

// AddLogEntry adds an entry to the game log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	if m.logViewport.Height > 0 && m.logViewport.Width > 0 {
		m.logViewport.GotoBottom()
	}
}

// AddBoldLogEntry adds a bold separator line to the game log
func (m *TUIModel) AddBoldLogEntry(entry string) {
	m.AddLogEntry(lipgloss.NewStyle().Bold(true).Render(entry))
}

// Log returns the game log lines
func (m *TUIModel) Log() []string {
	out := make([]string, len(m.gameLog))
	copy(out, m.gameLog)
	return out
}

// Balance returns the last balance reported by the server
func (m *TUIModel) Balance() int64 {
	return m.balance
}

// Round returns the current or most recent round
func (m *TUIModel) Round() (game.Snapshot, bool) {
	if m.round == nil {
		return game.Snapshot{}, false
	}
	return *m.round, true
}
