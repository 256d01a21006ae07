package ui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	appevents "github.com/rescp17/lanPeerTalk/internal/app_events"
	appController "github.com/rescp17/lanPeerTalk/pkg/app"
	"github.com/rescp17/lanPeerTalk/pkg/discovery"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	inboundStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	outboundStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))
)

const maxChatLines = 100

type chatLine struct {
	text    string
	inbound bool
}

type model struct {
	app *appController.App

	peers         []discovery.ServiceInfo
	cursor        int
	activePeer    string
	pendingInvite string
	inSession     bool
	status        string
	chat          []chatLine
	input         textinput.Model
	width         int
}

// InitialModel builds the TUI model and its application controller.
func InitialModel(port int) model {
	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.CharLimit = 512

	return model{
		app:    appController.NewApp(&discovery.MDNSAdapter{}, port),
		input:  input,
		status: "Looking for peers...",
		width:  80,
	}
}

func (m model) Init() tea.Cmd {
	go func() {
		_ = m.app.Run(context.Background())
	}()
	return tea.Batch(m.waitForAppMessage(), textinput.Blink)
}

// waitForAppMessage relays one message from the app controller into the
// bubbletea loop.
func (m model) waitForAppMessage() tea.Cmd {
	return func() tea.Msg {
		return <-m.app.UIMessages()
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m.updateKeys(msg)
	case appevents.FoundPeersMsg:
		m.peers = msg.Peers
		if m.cursor >= len(m.peers) {
			m.cursor = 0
		}
		return m, m.waitForAppMessage()
	case appevents.InvitedMsg:
		m.pendingInvite = msg.PeerID
		m.status = fmt.Sprintf("Incoming call from %s — accept? (y/n)", shortID(msg.PeerID))
		return m, m.waitForAppMessage()
	case appevents.AcceptedMsg:
		m.status = "Call accepted, connecting..."
		return m, m.waitForAppMessage()
	case appevents.DeniedMsg:
		m.status = "Call denied by " + shortID(msg.PeerID)
		return m, m.waitForAppMessage()
	case appevents.SessionStartedMsg:
		m.activePeer = msg.PeerID
		m.inSession = true
		m.input.Focus()
		m.status = "Connected to " + shortID(msg.PeerID)
		return m, m.waitForAppMessage()
	case appevents.SessionStoppedMsg:
		if msg.PeerID == m.activePeer || m.activePeer == "" {
			m.inSession = false
			m.activePeer = ""
			m.input.Blur()
		}
		m.status = "Session with " + shortID(msg.PeerID) + " ended"
		return m, m.waitForAppMessage()
	case appevents.ChatMessageMsg:
		m.chat = append(m.chat, chatLine{text: msg.Text, inbound: msg.Inbound})
		if len(m.chat) > maxChatLines {
			m.chat = m.chat[len(m.chat)-maxChatLines:]
		}
		return m, m.waitForAppMessage()
	case appevents.StatusUpdateMsg:
		m.status = msg.Message
		return m, m.waitForAppMessage()
	case appevents.Error:
		m.status = errorStyle.Render(msg.Err.Error())
		return m, m.waitForAppMessage()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "y":
		if m.pendingInvite != "" && !m.input.Focused() {
			m.app.AppEvents() <- appevents.AcceptInviteMsg{PeerID: m.pendingInvite}
			m.pendingInvite = ""
			m.status = "Accepted, connecting..."
			return m, nil
		}
	case "n":
		if m.pendingInvite != "" && !m.input.Focused() {
			m.app.AppEvents() <- appevents.DenyInviteMsg{PeerID: m.pendingInvite}
			m.pendingInvite = ""
			m.status = "Denied"
			return m, nil
		}
	case "up", "k":
		if !m.input.Focused() && m.cursor > 0 {
			m.cursor--
			return m, nil
		}
	case "down", "j":
		if !m.input.Focused() && m.cursor < len(m.peers)-1 {
			m.cursor++
			return m, nil
		}
	case "esc":
		if m.inSession {
			m.app.AppEvents() <- appevents.HangUpMsg{PeerID: m.activePeer}
			return m, nil
		}
	case "enter":
		if m.inSession && m.input.Focused() {
			text := m.input.Value()
			if text != "" {
				m.app.AppEvents() <- appevents.SendMessageMsg{PeerID: m.activePeer, Text: text}
				m.input.SetValue("")
			}
			return m, nil
		}
		if !m.inSession && len(m.peers) > 0 {
			peer := m.peers[m.cursor]
			m.app.AppEvents() <- appevents.CallPeerMsg{Peer: peer}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	s := titleStyle.Render("peerTalk") + "\n\n"

	if m.inSession {
		s += "Chatting with " + selectedStyle.Render(shortID(m.activePeer)) + "\n\n"
		for _, line := range m.chat {
			prefix, style := "me: ", outboundStyle
			if line.inbound {
				prefix, style = "peer: ", inboundStyle
			}
			s += style.Render(truncate(prefix+line.text, m.width-2)) + "\n"
		}
		s += "\n" + m.input.View() + "\n"
	} else {
		s += "Peers on this network:\n"
		if len(m.peers) == 0 {
			s += statusStyle.Render("  (none found yet)") + "\n"
		}
		for i, peer := range m.peers {
			line := fmt.Sprintf("  %s (%s)", peer.Name, shortID(peer.PeerID))
			if i == m.cursor {
				line = selectedStyle.Render("> " + line[2:])
			}
			s += truncate(line, m.width-2) + "\n"
		}
		s += "\n" + statusStyle.Render("enter: call · j/k: move · ctrl+c: quit") + "\n"
	}

	s += "\n" + statusStyle.Render(m.status) + "\n"
	s += "\nPress ctrl + c to quit"
	return s
}

func truncate(s string, width int) string {
	if width <= 0 {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
