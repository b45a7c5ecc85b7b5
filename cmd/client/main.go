// Chat TUI client.
//
// Screens
// -------
//   stateLogin  – centered login / register form
//   stateChat   – full-screen chat with scrollable message viewport
//   stateSwitch – Ctrl+F overlay: switch-conversation panel (PM / group)
//
// Concurrency
// -----------
//   A single goroutine reads CRLF-terminated lines from the TCP connection
//   and forwards each raw line to the lines channel. The Bubbletea event
//   loop consumes one line at a time via waitForLine (a tea.Cmd),
//   immediately queuing the next read after each line is processed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"chatserver/internal/protocol"
)

// ---------------------------------------------------------------------------
// Styles
// ---------------------------------------------------------------------------

var (
	purple = lipgloss.Color("99")
	cyan   = lipgloss.Color("86")
	green  = lipgloss.Color("82")
	red    = lipgloss.Color("196")
	yellow = lipgloss.Color("220")
	gray   = lipgloss.Color("241")
	white  = lipgloss.Color("255")
	orange = lipgloss.Color("214")
	blue   = lipgloss.Color("75")
	teal   = lipgloss.Color("30")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Background(purple).
			Foreground(white).
			Padding(0, 1)

	searchHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Background(teal).
				Foreground(white).
				Padding(0, 1)

	footerBorderStyle = lipgloss.NewStyle().
				Border(lipgloss.NormalBorder(), true, false, false, false).
				BorderForeground(gray).
				Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(purple).
			Padding(0, 2)

	labelStyle = lipgloss.NewStyle().
			Foreground(gray).
			Width(10)

	focusedLabelStyle = lipgloss.NewStyle().
				Foreground(cyan).
				Width(10)

	hintStyle = lipgloss.NewStyle().
			Foreground(gray).
			Italic(true)

	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	sysStyle     = lipgloss.NewStyle().Foreground(yellow).Italic(true)
	tsStyle      = lipgloss.NewStyle().Foreground(gray)
	myNameStyle  = lipgloss.NewStyle().Bold(true).Foreground(orange)
	peerStyle    = lipgloss.NewStyle().Bold(true).Foreground(blue)
	divStyle     = lipgloss.NewStyle().Foreground(gray)
)

// ---------------------------------------------------------------------------
// Bubbletea message types
// ---------------------------------------------------------------------------

type serverLineMsg string    // a raw line arrived from the server
type disconnectedMsg struct{} // server closed the connection

// ---------------------------------------------------------------------------
// Application state
// ---------------------------------------------------------------------------

type appState int

const (
	stateLogin appState = iota
	stateChat
	stateSwitch
)

// chatTarget tells the model whether the active chat is a PM or a group.
type chatTarget int

const (
	targetNone chatTarget = iota
	targetPM
	targetGroup
)

// ---------------------------------------------------------------------------
// Model
// ---------------------------------------------------------------------------

type model struct {
	conn  net.Conn
	lines chan string // goroutine → bubbletea bridge

	reqSeq int // monotonically increasing REQ_ID for outbound requests
	token  string

	state appState
	me    string // authenticated username

	// Login / register
	loginIsReg  bool
	loginFocus  int
	loginFields [2]textinput.Model // [0]=username  [1]=password
	statusMsg   string

	// Chat
	ready     bool
	viewport  viewport.Model
	chatInput textinput.Model
	chatLines []string // rendered lines shown in the viewport
	target    chatTarget
	pmPartner string
	groupID   int64
	groupName string

	// Switch-conversation overlay (Ctrl+F)
	switchFocus  int
	switchFields [2]textinput.Model // [0]=username (PM)  [1]=group_id (GM)
	switchStatus string

	width, height int
}

func newModel(conn net.Conn, lines chan string) model {
	// --- login fields ---
	uf := textinput.New()
	uf.Placeholder = "username"
	uf.Focus()
	uf.CharLimit = 32
	uf.Width = 32

	pf := textinput.New()
	pf.Placeholder = "password"
	pf.EchoMode = textinput.EchoPassword
	pf.EchoCharacter = '•'
	pf.CharLimit = 64
	pf.Width = 32

	// --- chat input ---
	ci := textinput.New()
	ci.Placeholder = "Type a message…"
	ci.CharLimit = 500

	// --- switch-conversation fields ---
	uff := textinput.New()
	uff.Placeholder = "username (PM)"
	uff.CharLimit = 32
	uff.Width = 36

	gf := textinput.New()
	gf.Placeholder = "group_id (GM)"
	gf.CharLimit = 20
	gf.Width = 36

	return model{
		conn:         conn,
		lines:        lines,
		state:        stateLogin,
		loginFields:  [2]textinput.Model{uf, pf},
		chatInput:    ci,
		switchFields: [2]textinput.Model{uff, gf},
	}
}

// ---------------------------------------------------------------------------
// Tea interface – Init
// ---------------------------------------------------------------------------

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLine(m.lines))
}

// ---------------------------------------------------------------------------
// Tea interface – Update
// ---------------------------------------------------------------------------

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width, m.vpHeight())
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = m.vpHeight()
		}
		m.chatInput.Width = msg.Width - 4
		return m, nil

	case serverLineMsg:
		m = m.handleServerLine(string(msg))
		return m, waitForLine(m.lines)

	case disconnectedMsg:
		m.statusMsg = "disconnected from server"
		return m, tea.Quit

	case tea.KeyMsg:
		switch m.state {
		case stateLogin:
			return m.handleLoginKey(msg)
		case stateChat:
			return m.handleChatKey(msg)
		case stateSwitch:
			return m.handleSwitchKey(msg)
		}
	}
	return m, nil
}

// vpHeight returns the number of lines available for the chat viewport.
func (m model) vpHeight() int {
	// header (1) + footer border (1) + footer input (1) = 3 lines reserved
	h := m.height - 3
	if h < 1 {
		h = 1
	}
	return h
}

// ---------------------------------------------------------------------------
// Outbound requests
// ---------------------------------------------------------------------------

// send writes a VERB REQ_ID PAYLOAD\r\n request line.
func (m *model) send(verb string, pairs ...string) {
	m.reqSeq++
	reqID := strconv.Itoa(m.reqSeq)
	payload := protocol.KV(pairs...)
	line := verb + " " + reqID
	if payload != "" {
		line += " " + payload
	}
	m.conn.Write([]byte(line + "\r\n"))
}

func (m *model) sendAuthed(verb string, pairs ...string) {
	m.send(verb, append([]string{protocol.Pair("token", m.token)}, pairs...)...)
}

// ---------------------------------------------------------------------------
// Key handlers
// ---------------------------------------------------------------------------

func (m model) handleLoginKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit

	case tea.KeyTab, tea.KeyShiftTab:
		m.loginFocus = (m.loginFocus + 1) % 2
		for i := range m.loginFields {
			if i == m.loginFocus {
				m.loginFields[i].Focus()
			} else {
				m.loginFields[i].Blur()
			}
		}
		return m, textinput.Blink

	case tea.KeyCtrlR:
		m.loginIsReg = !m.loginIsReg
		m.statusMsg = ""
		return m, nil

	case tea.KeyEnter:
		user := strings.TrimSpace(m.loginFields[0].Value())
		pass := m.loginFields[1].Value()
		if user == "" || pass == "" {
			m.statusMsg = "username and password are required"
			return m, nil
		}
		if m.loginIsReg {
			m.send("REGISTER", protocol.Pair("username", user), protocol.Pair("password", pass), protocol.Pair("email", user+"@example.invalid"))
		} else {
			m.send("LOGIN", protocol.Pair("username", user), protocol.Pair("password", pass))
		}
		m.statusMsg = "Authenticating…"
		return m, nil
	}

	// Forward keystroke to the focused login field.
	var cmd tea.Cmd
	m.loginFields[m.loginFocus], cmd = m.loginFields[m.loginFocus].Update(msg)
	return m, cmd
}

func (m model) handleChatKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyCtrlQ:
		m.sendAuthed("DISCONNECT")
		return m, tea.Quit

	case tea.KeyCtrlF:
		// Open the switch-conversation overlay.
		m.state = stateSwitch
		m.switchStatus = ""
		m.switchFocus = 0
		m.switchFields[0].Focus()
		m.switchFields[1].Blur()
		return m, textinput.Blink

	case tea.KeyEnter:
		content := strings.TrimSpace(m.chatInput.Value())
		if content == "" {
			return m, nil
		}
		switch m.target {
		case targetPM:
			m.sendAuthed("PM_SEND", protocol.Pair("to", m.pmPartner), protocol.Pair("content", content))
			ts := tsStyle.Render("[" + time.Now().Format("15:04:05") + "]")
			m.appendChat(ts + " " + myNameStyle.Render(m.me) + ": " + content)
		case targetGroup:
			m.sendAuthed("GM_SEND", protocol.Pair("group_id", strconv.FormatInt(m.groupID, 10)), protocol.Pair("content", content))
			ts := tsStyle.Render("[" + time.Now().Format("15:04:05") + "]")
			m.appendChat(ts + " " + myNameStyle.Render(m.me) + ": " + content)
		default:
			m.appendChat(sysStyle.Render("⚡ no active conversation — press Ctrl+F to pick one"))
		}
		m.chatInput.Reset()
		return m, nil

	case tea.KeyPgUp:
		m.viewport.HalfViewUp()
		return m, nil

	case tea.KeyPgDown:
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.chatInput, cmd = m.chatInput.Update(msg)
	return m, cmd
}

func (m model) handleSwitchKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.sendAuthed("DISCONNECT")
		return m, tea.Quit

	case tea.KeyEsc:
		m.state = stateChat
		m.chatInput.Focus()
		return m, textinput.Blink

	case tea.KeyTab, tea.KeyShiftTab:
		m.switchFocus = (m.switchFocus + 1) % 2
		for i := range m.switchFields {
			if i == m.switchFocus {
				m.switchFields[i].Focus()
			} else {
				m.switchFields[i].Blur()
			}
		}
		return m, textinput.Blink

	case tea.KeyEnter:
		return m.executeSwitch()
	}

	var cmd tea.Cmd
	m.switchFields[m.switchFocus], cmd = m.switchFields[m.switchFocus].Update(msg)
	return m, cmd
}

// executeSwitch starts either a PM or a group chat session, depending
// on which field carries a value. A username wins if both are filled.
func (m model) executeSwitch() (model, tea.Cmd) {
	username := strings.TrimSpace(m.switchFields[0].Value())
	groupRaw := strings.TrimSpace(m.switchFields[1].Value())

	if username != "" {
		m.sendAuthed("PM_CHAT_START", protocol.Pair("with", username))
		m.switchStatus = hintStyle.Render("Opening PM with " + username + "…")
		return m, nil
	}
	if groupRaw != "" {
		if _, err := strconv.ParseInt(groupRaw, 10, 64); err != nil {
			m.switchStatus = errorStyle.Render("group_id must be numeric")
			return m, nil
		}
		m.sendAuthed("GM_CHAT_START", protocol.Pair("group_id", groupRaw))
		m.switchStatus = hintStyle.Render("Opening group " + groupRaw + "…")
		return m, nil
	}
	m.switchStatus = errorStyle.Render("enter a username or a group id")
	return m, nil
}

// ---------------------------------------------------------------------------
// Server line handler
// ---------------------------------------------------------------------------

func (m model) handleServerLine(line string) model {
	verb, rest, ok := strings.Cut(line, " ")
	if !ok {
		return m
	}

	switch verb {
	case "PUSH":
		subject, payload, _ := strings.Cut(rest, " ")
		return m.handlePush(subject, protocol.ParseArgs(payload))

	case "OK":
		_, payload, _ := strings.Cut(rest, " ")
		return m.handleOK(protocol.ParseArgs(payload))

	case "ERR":
		_, payload, _ := strings.Cut(rest, " ")
		return m.handleErr(protocol.ParseArgs(payload))
	}
	return m
}

func (m model) handleOK(args protocol.Args) model {
	// ---- auth success: OK carries token=... ----
	if token, ok := args.Get("token"); ok {
		m.token = token
		m.me = strings.TrimSpace(m.loginFields[0].Value())
		m.state = stateChat
		m.chatInput.Focus()
		m.statusMsg = ""
		return m
	}

	// ---- PM_CHAT_START: with=... me=... history=... ----
	if with, ok := args.Get("with"); ok {
		m.target = targetPM
		m.pmPartner = with
		m.loadHistory(args)
		m.switchStatus = ""
		m.state = stateChat
		m.chatInput.Focus()
		return m
	}

	// ---- GM_CHAT_START: group_id=... group_name=... me=... history=... ----
	if groupIDStr, ok := args.Get("group_id"); ok {
		if name, ok := args.Get("group_name"); ok {
			if groupID, err := strconv.ParseInt(groupIDStr, 10, 64); err == nil {
				m.target = targetGroup
				m.groupID = groupID
				m.groupName = name
				m.loadHistory(args)
				m.switchStatus = ""
				m.state = stateChat
				m.chatInput.Focus()
			}
		}
		return m
	}

	return m
}

// loadHistory renders a history=msg_id:from:payload:ts,... field, which
// the server sends most recent first, in oldest-first order, replacing
// whatever lines the viewport showed before.
func (m *model) loadHistory(args protocol.Args) {
	history, _ := args.Get("history")
	if history == "" || history == "empty" {
		return
	}
	entries := strings.Split(history, ",")
	lines := make([]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		parts := strings.SplitN(entries[i], ":", 4)
		if len(parts) != 4 {
			continue
		}
		from, payload, tsRaw := parts[1], parts[2], parts[3]
		ts, _ := strconv.ParseInt(tsRaw, 10, 64)
		tsLabel := tsStyle.Render("[" + time.Unix(ts, 0).Local().Format("15:04:05") + "]")
		var name string
		if from == m.me {
			name = myNameStyle.Render(from)
		} else {
			name = peerStyle.Render(from)
		}
		lines = append(lines, tsLabel+" "+name+": "+payload)
	}
	m.chatLines = lines
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

func (m model) handlePush(subject string, args protocol.Args) model {
	switch subject {
	case protocol.SubjectPM:
		from, _ := args.Get("from")
		content, _ := args.Get("content")
		tsRaw, _ := args.Get("ts")
		ts, _ := strconv.ParseInt(tsRaw, 10, 64)
		if m.target == targetPM && from == m.pmPartner {
			tsLabel := tsStyle.Render("[" + time.Unix(ts, 0).Local().Format("15:04:05") + "]")
			m.appendChat(tsLabel + " " + peerStyle.Render(from) + ": " + content)
		} else {
			m.appendChat(sysStyle.Render("⚡ new PM from " + from))
		}

	case protocol.SubjectGM:
		from, _ := args.Get("from")
		content, _ := args.Get("content")
		tsRaw, _ := args.Get("ts")
		groupIDStr, _ := args.Get("group_id")
		ts, _ := strconv.ParseInt(tsRaw, 10, 64)
		groupID, _ := strconv.ParseInt(groupIDStr, 10, 64)
		if m.target == targetGroup && groupID == m.groupID {
			tsLabel := tsStyle.Render("[" + time.Unix(ts, 0).Local().Format("15:04:05") + "]")
			m.appendChat(tsLabel + " " + peerStyle.Render(from) + ": " + content)
		} else {
			m.appendChat(sysStyle.Render("⚡ new message in group " + groupIDStr))
		}

	case protocol.SubjectGMJoin:
		user, _ := args.Get("user")
		m.appendChat(sysStyle.Render("⚡ " + user + " joined the group"))

	case protocol.SubjectGMLeave:
		user, _ := args.Get("user")
		m.appendChat(sysStyle.Render("⚡ " + user + " left the group"))

	case protocol.SubjectGMKicked:
		m.appendChat(sysStyle.Render("⚡ you were removed from the group"))
		if m.target == targetGroup {
			m.target = targetNone
		}
	}
	return m
}

func (m model) handleErr(args protocol.Args) model {
	if m.state == stateLogin {
		m.statusMsg = "authentication failed"
		return m
	}
	m.appendChat(errorStyle.Render("⚠ request failed"))
	return m
}

// appendChat adds a rendered line and scrolls the viewport to the bottom.
func (m *model) appendChat(line string) {
	m.chatLines = append(m.chatLines, line)
	m.viewport.SetContent(strings.Join(m.chatLines, "\n"))
	m.viewport.GotoBottom()
}

// ---------------------------------------------------------------------------
// Tea interface – View
// ---------------------------------------------------------------------------

func (m model) View() string {
	switch m.state {
	case stateLogin:
		return m.viewLogin()
	case stateChat:
		return m.viewChat()
	case stateSwitch:
		return m.viewSwitch()
	}
	return ""
}

func (m model) viewLogin() string {
	if m.width == 0 {
		return "\n  Connecting to server…"
	}

	mode := "Login"
	other := "Register"
	if m.loginIsReg {
		mode, other = "Register", "Login"
	}

	title := titleStyle.Render("  Chat Terminal  ")

	renderField := func(label string, f textinput.Model, focused bool) string {
		var lbl string
		if focused {
			lbl = focusedLabelStyle.Render(label)
		} else {
			lbl = labelStyle.Render(label)
		}
		return lbl + "  " + f.View()
	}

	form := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		renderField("Username", m.loginFields[0], m.loginFocus == 0),
		renderField("Password", m.loginFields[1], m.loginFocus == 1),
		"",
		hintStyle.Render(fmt.Sprintf("Tab: switch field   Enter: %s   Ctrl+R: switch to %s", mode, other)),
		hintStyle.Render("Ctrl+C: quit"),
		"",
		m.renderStatus(),
	)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, form)
}

func (m model) viewChat() string {
	if !m.ready {
		return "\n  Connecting…"
	}

	subject := "no active conversation"
	switch m.target {
	case targetPM:
		subject = "PM with " + m.pmPartner
	case targetGroup:
		subject = "group " + m.groupName
	}

	hdr := headerStyle.
		Width(m.width).
		Render(fmt.Sprintf(" %s  ·  %s  ·  Ctrl+F: Switch  PgUp/Dn: Scroll  Ctrl+C: Quit",
			m.me, subject))

	footer := footerBorderStyle.
		Width(m.width - 2).
		Render(m.chatInput.View())

	return lipgloss.JoinVertical(lipgloss.Left, hdr, m.viewport.View(), footer)
}

func (m model) viewSwitch() string {
	if m.width == 0 {
		return "\n  Loading…"
	}

	hdr := searchHeaderStyle.
		Width(m.width).
		Render(" Switch Conversation  ·  Esc: return to chat  Ctrl+C: quit")

	fieldLabels := []string{"Username", "Group ID"}

	var fieldLines []string
	for i, f := range m.switchFields {
		var lbl string
		if m.switchFocus == i {
			lbl = focusedLabelStyle.Render(fieldLabels[i])
		} else {
			lbl = labelStyle.Render(fieldLabels[i])
		}
		fieldLines = append(fieldLines, "  "+lbl+"  "+f.View())
	}

	keyHint := hintStyle.Render("  Tab: switch field   Enter: open   Esc: close")
	div := divStyle.Render(strings.Repeat("─", m.width))

	var statusLine string
	if m.switchStatus != "" {
		statusLine = "  " + m.switchStatus
	}

	parts := []string{hdr, ""}
	parts = append(parts, fieldLines...)
	parts = append(parts, "", keyHint, div, statusLine)

	return strings.Join(parts, "\n")
}

// renderStatus renders the login status line with appropriate colour.
func (m model) renderStatus() string {
	if m.statusMsg == "" {
		return ""
	}
	if strings.Contains(m.statusMsg, "Authenticating") {
		return hintStyle.Render(m.statusMsg)
	}
	return errorStyle.Render(m.statusMsg)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitForLine returns a tea.Cmd that blocks until the next line arrives
// on ch. When ch is closed (server disconnected), it returns disconnectedMsg.
func waitForLine(ch <-chan string) tea.Cmd {
	return func() tea.Msg {
		line, ok := <-ch
		if !ok {
			return disconnectedMsg{}
		}
		return serverLineMsg(line)
	}
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	addr := flag.String("addr", "localhost:8888", "server address")
	flag.Parse()

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	// lines bridges the TCP reader goroutine and the Bubbletea event loop.
	lines := make(chan string, 64)

	// Reader goroutine: TCP → lines channel, split on CRLF.
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(conn)
		scanner.Split(scanCRLF)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	p := tea.NewProgram(
		newModel(conn, lines),
		tea.WithAltScreen(),       // use the alternate screen buffer
		tea.WithMouseCellMotion(), // enable mouse wheel scrolling
	)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// scanCRLF is a bufio.SplitFunc that splits on \r\n, matching the wire
// framing the server uses (protocol.Framer).
func scanCRLF(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	for i := 0; i+1 < len(data); i++ {
		if data[i] == '\r' && data[i+1] == '\n' {
			return i + 2, data[:i], nil
		}
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
