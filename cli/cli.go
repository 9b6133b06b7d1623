// cli/cli.go
// Package cli provides the interactive terminal chat for flowpipe.
package cli

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/mwiater/flowpipe/internal/appconfig"
	"github.com/mwiater/flowpipe/internal/pipe"
)

// viewState represents the current view or screen of the application.
type viewState int

const (
	// viewWorkflowSelector is the state where the user selects a workflow.
	viewWorkflowSelector viewState = iota
	// viewChat is the state where the user is interacting with the chat.
	viewChat
)

// chatMessage is one line of the conversation shown in the viewport.
type chatMessage struct {
	Role    string
	Content string
}

// model is the main application model for the Bubble Tea UI.
type model struct {
	ctx              context.Context
	config           *appconfig.Config
	pipe             *pipe.Pipe
	state            viewState
	isLoading        bool
	err              error
	workflowList     list.Model
	textArea         textarea.Model
	viewport         viewport.Model
	spinner          spinner.Model
	chatHistory      []chatMessage
	responseBuf      strings.Builder
	status           string
	selected         pipe.Model
	chatID           string
	cancelTurn       context.CancelFunc
	lastDuration     time.Duration
	width, height    int
	program          *tea.Program
	requestStartTime time.Time
}

// initialModel creates and initializes a new model with default values.
func initialModel(ctx context.Context, cfg *appconfig.Config, p *pipe.Pipe) *model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "Ask Anything: "
	ta.ShowLineNumbers = false
	ta.CharLimit = -1
	ta.SetHeight(1)
	ta.KeyMap.InsertNewline.SetEnabled(false)

	workflowList := list.New(nil, list.NewDefaultDelegate(), 0, 0)
	workflowList.Title = "Select a Flowise Workflow"

	return &model{
		ctx:              ctx,
		config:           cfg,
		pipe:             p,
		state:            viewWorkflowSelector,
		isLoading:        true,
		spinner:          s,
		textArea:         ta,
		workflowList:     workflowList,
		viewport:         viewport.New(100, 5),
		requestStartTime: time.Now(),
	}
}

// item represents a selectable workflow in the Bubble Tea list.
type item struct {
	title string
	desc  string
	model pipe.Model
}

// Title returns the title of the list item.
func (i item) Title() string { return i.title }

// Description returns the description of the list item.
func (i item) Description() string { return i.desc }

// FilterValue returns the title of the item, used for filtering.
func (i item) FilterValue() string { return i.title }

// workflowsReadyMsg is sent when workflow discovery succeeded.
type workflowsReadyMsg struct{ items []list.Item }

// workflowsLoadErr is sent when workflow discovery failed.
type workflowsLoadErr struct{ error }

// streamChunkMsg is a message sent when a new chunk of a streaming response is received.
type streamChunkMsg string

// statusMsg carries a progress update for the running turn.
type statusMsg pipe.Status

// streamEndMsg is a message sent when a turn has completed.
type streamEndMsg struct{ elapsed time.Duration }

// tickMsg is a message sent at regular intervals, used for animations and timed updates.
type tickMsg time.Time

// discoverWorkflowsCmd lists the Flowise workflows as selectable items.
func discoverWorkflowsCmd(ctx context.Context, p *pipe.Pipe) tea.Cmd {
	return func() tea.Msg {
		models, err := p.Discover(ctx)
		if err != nil {
			return workflowsLoadErr{error: err}
		}
		items := make([]list.Item, 0, len(models))
		for _, m := range models {
			desc := m.ID
			if wf, ok := p.Workflow(m.ID); ok && wf.Type != "" {
				desc = fmt.Sprintf("%s · %s", wf.Type, m.ID)
			}
			items = append(items, item{title: m.Name, desc: desc, model: m})
		}
		return workflowsReadyMsg{items: items}
	}
}

// streamChatCmd runs one turn in the background and forwards chunks and status
// updates to the program.
func streamChatCmd(ctx context.Context, prog *tea.Program, p *pipe.Pipe, req pipe.Request) tea.Cmd {
	return func() tea.Msg {
		log.Printf("[flowpipe -> %s] Outgoing request: chat=%s", req.Model, req.ChatID)
		emitter := pipe.EmitterFunc(func(_ context.Context, status pipe.Status) error {
			prog.Send(statusMsg(status))
			return nil
		})

		go func() {
			start := time.Now()
			for chunk := range p.Run(ctx, req, emitter) {
				prog.Send(streamChunkMsg(chunk))
			}
			prog.Send(streamEndMsg{elapsed: time.Since(start)})
		}()

		return nil
	}
}

// tickCmd creates a Bubble Tea command that sends a tickMsg at a regular interval.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Millisecond*100, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the spinner and workflow discovery.
func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, discoverWorkflowsCmd(m.ctx, m.pipe), tickCmd())
}

// Update is the central update function for the Bubble Tea model.
func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			m.stopTurn()
			return m, tea.Quit
		case "q":
			if m.state == viewWorkflowSelector && m.workflowList.FilterState() != list.Filtering {
				return m, tea.Quit
			}
		case "esc":
			if m.state == viewChat && m.isLoading {
				m.stopTurn()
				return m, nil
			}
		case "tab":
			if m.state == viewChat && !m.isLoading {
				m.state = viewWorkflowSelector
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.workflowList.SetSize(msg.Width-2, msg.Height-4)
		m.textArea.SetWidth(msg.Width - 3)
		headerHeight := 3
		footerHeight := 4
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - headerHeight - footerHeight

	case workflowsReadyMsg:
		m.isLoading = false
		m.workflowList.SetItems(msg.items)
		if len(msg.items) == 0 {
			m.workflowList.Title = "No workflows found in your Flowise instance"
		}
		return m, nil

	case workflowsLoadErr:
		m.isLoading = false
		m.err = fmt.Errorf("%s", pipe.ErrorMessage(msg.error))
		return m, nil

	case statusMsg:
		m.status = msg.Description
		return m, nil

	case streamChunkMsg:
		m.responseBuf.WriteString(string(msg))
		m.viewport.GotoBottom()
		return m, nil

	case streamEndMsg:
		m.lastDuration = msg.elapsed
		if m.responseBuf.Len() > 0 {
			m.chatHistory = append(m.chatHistory, chatMessage{Role: "assistant", Content: m.responseBuf.String()})
			m.responseBuf.Reset()
		}
		m.stopTurn()
		m.isLoading = false
		m.textArea.Focus()
		m.viewport.GotoBottom()
		return m, nil

	case tickMsg:
		if m.isLoading {
			return m, tickCmd()
		}
		return m, nil
	}

	switch m.state {
	case viewWorkflowSelector:
		m.workflowList, cmd = m.workflowList.Update(msg)
		cmds = append(cmds, cmd)
		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" && !m.isLoading {
			if selected, ok := m.workflowList.SelectedItem().(item); ok {
				if selected.model.ID != m.selected.ID {
					m.chatHistory = nil
					m.chatID = uuid.NewString()
				}
				m.selected = selected.model
				m.state = viewChat
				m.err = nil
				m.textArea.Focus()
			}
		}

	case viewChat:
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

		if m.isLoading {
			break
		}
		m.textArea, cmd = m.textArea.Update(msg)
		cmds = append(cmds, cmd)

		if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
			userInput := strings.TrimSpace(m.textArea.Value())
			if userInput != "" {
				m.chatHistory = append(m.chatHistory, chatMessage{Role: "user", Content: userInput})
				m.textArea.Reset()
				m.isLoading = true
				m.status = ""
				m.err = nil
				m.requestStartTime = time.Now()

				turnCtx, cancel := context.WithCancel(m.ctx)
				m.cancelTurn = cancel
				cmds = append(cmds, m.spinner.Tick, tickCmd(), streamChatCmd(turnCtx, m.program, m.pipe, m.turnRequest()))
			}
		}
	}

	if m.isLoading {
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// turnRequest builds the pipe request for the conversation so far.
func (m *model) turnRequest() pipe.Request {
	messages := make([]pipe.Message, 0, len(m.chatHistory))
	for _, msg := range m.chatHistory {
		messages = append(messages, pipe.Message{Role: msg.Role, Content: pipe.Text(msg.Content)})
	}
	return pipe.Request{
		Model:    m.selected.ID,
		Messages: messages,
		ChatID:   m.chatID,
		Stream:   true,
	}
}

func (m *model) stopTurn() {
	if m.cancelTurn != nil {
		m.cancelTurn()
		m.cancelTurn = nil
	}
}

// View renders the application's UI based on the current state of the model.
func (m *model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	if m.err != nil {
		errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(1)
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}

	switch m.state {
	case viewWorkflowSelector:
		if m.isLoading {
			timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
			return fmt.Sprintf("\n  %s Fetching workflows... %ss\n", m.spinner.View(), timer)
		}
		listView := m.workflowList.View()
		if title := m.workflowList.Title; title != "" && !strings.Contains(listView, title) {
			listView = fmt.Sprintf("%s\n\n%s", title, listView)
		}
		return lipgloss.NewStyle().Margin(1, 2).Render(listView)

	case viewChat:
		return m.chatView()

	default:
		return "Unknown state"
	}
}

// chatView renders the header, the conversation and either the spinner or the input.
func (m *model) chatView() string {
	var builder strings.Builder

	labelStyle := lipgloss.NewStyle().Background(lipgloss.Color("0")).Foreground(lipgloss.Color("255")).Padding(0, 1)
	headerStyle := lipgloss.NewStyle().Background(lipgloss.Color("62")).Foreground(lipgloss.Color("230")).Padding(0, 1)
	flagStyle := lipgloss.NewStyle().Background(lipgloss.Color("255")).Foreground(lipgloss.Color("0")).Padding(0, 1).MarginLeft(1)

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		labelStyle.Render("Flowise:"),
		headerStyle.Render(fmt.Sprintf("Workflow: %s", m.selected.Name)),
		flagStyle.Render(fmt.Sprintf("Session: %s", shortID(m.chatID))),
	)
	help := lipgloss.NewStyle().Render(" (tab to change workflow, esc to stop, ctrl+c to quit)")
	builder.WriteString(header + help + "\n\n")

	var historyBuilder strings.Builder
	userStyle := lipgloss.NewStyle().Bold(true)
	assistantStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5"))

	for _, msg := range m.chatHistory {
		role := userStyle.Render("You: ")
		if msg.Role == "assistant" {
			role = assistantStyle.Render("Assistant: ")
		}
		wrappedContent := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(role)-2, 10)).Render(msg.Content)
		historyBuilder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, role, wrappedContent) + "\n")
	}

	if m.responseBuf.Len() > 0 {
		role := assistantStyle.Render("Assistant: ")
		wrappedContent := lipgloss.NewStyle().Width(max(m.width-lipgloss.Width(role)-2, 10)).Render(m.responseBuf.String())
		historyBuilder.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, role, wrappedContent))
	}

	m.viewport.SetContent(historyBuilder.String())
	builder.WriteString(m.viewport.View())

	if m.isLoading {
		timer := fmt.Sprintf("%.1f", time.Since(m.requestStartTime).Seconds())
		status := m.status
		if status == "" {
			status = "Assistant is thinking..."
		}
		builder.WriteString(fmt.Sprintf("\n%s %s %ss", m.spinner.View(), status, timer))
	} else {
		builder.WriteString("\n" + m.textArea.View())
	}

	if m.config != nil && m.config.Debug && m.lastDuration > 0 && !m.isLoading {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
		builder.WriteString("\n" + style.Render(fmt.Sprintf("  >>> [Total Duration: %.1fs]", m.lastDuration.Seconds())))
	}

	return builder.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// StartGUI runs the interactive chat until the user quits.
func StartGUI(ctx context.Context, cfg *appconfig.Config, p *pipe.Pipe) error {
	logPath := "flowpipe-tui.log"
	if cfg != nil && cfg.LogFilePath() != "" {
		logPath = cfg.LogFilePath()
	}
	f, err := tea.LogToFile(logPath, "debug")
	if err != nil {
		return fmt.Errorf("could not open log file: %w", err)
	}
	defer f.Close()

	m := initialModel(ctx, cfg, p)
	prog := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	m.program = prog
	defer m.stopTurn()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return nil
}
