package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/list"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/x/ansi"
	"github.com/retrixe/imprint/imaging"
	"github.com/spf13/cobra"

	"github.com/retrixe/glassarch/internal/config"
	"github.com/retrixe/glassarch/internal/install"
)

type tuiState int

const (
	stateIntro tuiState = iota
	stateDevices
	stateEncrypt
	statePassphrase
	stateConfirm
	stateInstalling
	stateDone
)

// installFunc runs the installation, reporting phases through onPhase.
type installFunc func(ctx context.Context, cfg *config.Config, onPhase func(install.Phase)) error

// installRun is shared by every copy of the model, and outlives the program
// so the installer can finish cleaning up after the UI quits.
type installRun struct {
	ctx    context.Context
	cancel context.CancelFunc
	phases chan install.Phase
	done   chan struct{}
	err    error
}

type model struct {
	height int
	width  int

	spinner spinner.Model
	help    help.Model

	error   string
	warning string
	info    string

	state tuiState
	cfg   *config.Config

	loadDevices func() ([]deviceChoice, error)
	devices     list.Model

	passphrase textinput.Model
	repeat     textinput.Model

	runInstall installFunc
	run        *installRun
	phase      string
}

type devicesMsg struct {
	devices []deviceChoice
	err     error
}

type phaseMsg install.Phase

type installDoneMsg struct{ err error }

type item struct {
	title, desc, path string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + " " + i.desc }

type dialogContinueQuitKeyMap struct {
	Continue key.Binding
	Quit     key.Binding
}

func (k dialogContinueQuitKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Continue, k.Quit}
}

func (k dialogContinueQuitKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Continue, k.Quit}}
}

var dialogContinueQuitKeys = dialogContinueQuitKeyMap{
	Continue: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "continue"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "esc", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

type dialogQuitKeyMap struct{ Quit key.Binding }

func (k dialogQuitKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Quit}
}

func (k dialogQuitKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Quit}}
}

var dialogQuitKeys = dialogQuitKeyMap{
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c", "enter"), key.WithHelp("q", "quit")),
}

type yesNoKeyMap struct {
	Yes  key.Binding
	No   key.Binding
	Quit key.Binding
}

func (k yesNoKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Yes, k.No, k.Quit}
}

func (k yesNoKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Yes, k.No, k.Quit}}
}

var encryptKeys = yesNoKeyMap{
	Yes:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "encrypt")),
	No:   key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "don't encrypt")),
	Quit: key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q", "quit")),
}

var rescanKey = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan devices"))

var docStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(lipgloss.BrightBlue).
	Margin(1, 1)

var dialogStyle = docStyle.
	Align(lipgloss.Center, lipgloss.Center).
	Padding(0, 4)

var dialogTitleStyle = lipgloss.NewStyle().
	Background(lipgloss.BrightBlue).
	Foreground(lipgloss.Complementary(lipgloss.BrightBlue)).
	Padding(0, 1)

func dialogTitleWithColorStyle(color ansi.Color) lipgloss.Style {
	return dialogTitleStyle.Background(color).Foreground(lipgloss.Complementary(color))
}

func newPassphraseInput(prompt string) textinput.Model {
	input := textinput.New()
	input.Prompt = prompt
	input.EchoMode = textinput.EchoPassword
	input.CharLimit = 512
	return input
}

func initialModel(cfg *config.Config, loadDevices func() ([]deviceChoice, error), runInstall installFunc) model {
	m := model{
		info: `This wizard will guide you through installing Arch Linux.

You will choose the disk to install to and whether the system should be encrypted.

Warning: All data on the disk you select will be ERASED!`,
		cfg:         cfg,
		loadDevices: loadDevices,
		runInstall:  runInstall,
		devices:     list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0),
		passphrase:  newPassphraseInput("Passphrase: "),
		repeat:      newPassphraseInput("Repeat:     "),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot)),
		help:        help.New(),
	}
	m.devices.Title = wizardTitle + " - Select target disk"
	m.devices.AdditionalShortHelpKeys = func() []key.Binding { return []key.Binding{rescanKey} }
	return m
}

func (m model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m model) loadDevicesCmd() tea.Cmd {
	load := m.loadDevices
	return func() tea.Msg {
		devices, err := load()
		return devicesMsg{devices: devices, err: err}
	}
}

func waitForPhase(run *installRun) tea.Cmd {
	return func() tea.Msg {
		p, ok := <-run.phases
		if !ok {
			return nil
		}
		return phaseMsg(p)
	}
}

func (m model) installCmd() tea.Cmd {
	run, cfg, runInstall := m.run, m.cfg, m.runInstall
	return func() tea.Msg {
		err := runInstall(run.ctx, cfg, func(p install.Phase) {
			select {
			case run.phases <- p:
			default:
			}
		})
		run.err = err
		close(run.phases)
		close(run.done)
		return installDoneMsg{err: err}
	}
}

func (m model) startInstall() (model, tea.Cmd) {
	ctx, cancel := context.WithCancel(context.Background())
	m.run = &installRun{
		ctx:    ctx,
		cancel: cancel,
		phases: make(chan install.Phase, 16),
		done:   make(chan struct{}),
	}
	m.state = stateInstalling
	m.phase = "Starting installation..."
	return m, tea.Batch(m.spinner.Tick, m.installCmd(), waitForPhase(m.run))
}

func (m model) toConfirm() model {
	if err := m.cfg.Validate(); err != nil {
		m.error = imaging.CapitalizeString("invalid configuration: " + err.Error())
		m.state = stateDevices
		return m
	}
	m.state = stateConfirm
	return m
}

func (m model) updateKey(msg tea.KeyPressMsg) (model, tea.Cmd, bool) {
	if m.error != "" || m.warning != "" || m.info != "" {
		switch {
		case key.Matches(msg, dialogContinueQuitKeys.Continue):
			if m.state == stateDone {
				return m, tea.Quit, true
			}
			if m.error != "" {
				m.error = ""
			} else if m.warning != "" {
				m.warning = ""
			} else if m.info != "" {
				m.info = ""
			}
			if m.state == stateIntro {
				m.state = stateDevices
				return m, m.loadDevicesCmd(), true
			}
		case key.Matches(msg, dialogContinueQuitKeys.Quit):
			return m, tea.Quit, true
		}
		return m, nil, true
	}

	switch m.state {
	case stateDevices:
		if m.devices.SettingFilter() {
			return m, nil, false
		}
		switch {
		case msg.String() == "ctrl+c":
			return m, tea.Quit, true
		case key.Matches(msg, rescanKey):
			return m, m.loadDevicesCmd(), true
		case msg.String() == "enter":
			if selected, ok := m.devices.SelectedItem().(item); ok {
				m.cfg.Disk = selected.path
				m.state = stateEncrypt
			}
			return m, nil, true
		}
	case stateEncrypt:
		switch {
		case key.Matches(msg, encryptKeys.Yes):
			m.cfg.Encrypt = true
			m.state = statePassphrase
			m.repeat.Blur()
			return m, m.passphrase.Focus(), true
		case key.Matches(msg, encryptKeys.No):
			m.cfg.Encrypt = false
			m.cfg.Passphrase = ""
			return m.toConfirm(), nil, true
		case key.Matches(msg, encryptKeys.Quit):
			return m, tea.Quit, true
		}
		return m, nil, true
	case statePassphrase:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit, true
		case "esc":
			m.passphrase.Reset()
			m.repeat.Reset()
			m.state = stateEncrypt
			return m, nil, true
		case "enter":
			if m.passphrase.Focused() {
				m.passphrase.Blur()
				return m, m.repeat.Focus(), true
			}
			if problem := checkPassphrase(m.passphrase.Value(), m.repeat.Value()); problem != "" {
				m.warning = problem
				m.passphrase.Reset()
				m.repeat.Reset()
				m.repeat.Blur()
				return m, m.passphrase.Focus(), true
			}
			m.cfg.Passphrase = m.passphrase.Value()
			m.passphrase.Reset()
			m.repeat.Reset()
			return m.toConfirm(), nil, true
		}
	case stateConfirm:
		switch {
		case key.Matches(msg, dialogContinueQuitKeys.Continue):
			m, cmd := m.startInstall()
			return m, cmd, true
		case key.Matches(msg, dialogContinueQuitKeys.Quit):
			return m, tea.Quit, true
		}
		return m, nil, true
	case stateInstalling:
		if msg.String() == "ctrl+c" {
			m.run.cancel()
			m.phase = "Cancelling, cleaning up..."
		}
		return m, nil, true
	}

	return m, nil, false
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		var (
			cmd     tea.Cmd
			handled bool
		)
		if m, cmd, handled = m.updateKey(msg); handled {
			return m, cmd
		}
	case tea.WindowSizeMsg:
		m.height = msg.Height
		m.width = msg.Width

		m.help.SetWidth(msg.Width)
		h, v := docStyle.GetFrameSize()
		m.devices.SetSize(msg.Width-h, msg.Height-v)
	case devicesMsg:
		if msg.err != nil {
			m.error = imaging.CapitalizeString("failed to get connected drives: " + msg.err.Error())
			return m, nil
		}
		items := make([]list.Item, len(msg.devices))
		for index, d := range msg.devices {
			items[index] = item{title: d.Path, desc: strings.TrimPrefix(d.Label, d.Path+" "), path: d.Path}
		}
		if len(items) == 0 {
			m.warning = "Failed to find any disks connected to your computer.\n\n" +
				"Please connect a disk and press 'r' to rescan."
		}
		return m, m.devices.SetItems(items)
	case phaseMsg:
		m.phase = install.Phase(msg).String()
		return m, waitForPhase(m.run)
	case installDoneMsg:
		m.state = stateDone
		if msg.err != nil {
			m.error = imaging.CapitalizeString("installation failed: " + msg.err.Error())
		} else {
			m.info = "Arch Linux was installed to " + m.cfg.Disk + ".\n\nRemove the installation medium and reboot."
		}
		return m, nil
	}

	var cmd tea.Cmd
	switch m.state {
	case stateInstalling:
		m.spinner, cmd = m.spinner.Update(msg)
	case stateDevices:
		if m.error == "" && m.warning == "" && m.info == "" {
			m.devices, cmd = m.devices.Update(msg)
		}
	case statePassphrase:
		if m.passphrase.Focused() {
			m.passphrase, cmd = m.passphrase.Update(msg)
		} else {
			m.repeat, cmd = m.repeat.Update(msg)
		}
	}
	return m, cmd
}

func (m model) View() tea.View {
	var view string

	fullscreenDocStyle := docStyle.Height(m.height - 1).Width(m.width - 3)
	fullscreenDialogStyle := dialogStyle.Height(m.height - 1).Width(m.width - 3)

	if m.error != "" {
		view = fullscreenDialogStyle.BorderForeground(lipgloss.Red).Render(
			dialogTitleStyle.Render(wizardTitle)+"\n",
			dialogTitleWithColorStyle(lipgloss.Red).Render("Error!")+"\n\n",
			m.error+"\n\n",
			m.help.View(dialogContinueQuitKeys),
		)
	} else if m.warning != "" {
		view = fullscreenDialogStyle.BorderForeground(lipgloss.Yellow).Render(
			dialogTitleStyle.Render(wizardTitle)+"\n",
			dialogTitleWithColorStyle(lipgloss.Yellow).Render("Warning!")+"\n\n",
			m.warning+"\n\n",
			m.help.View(dialogContinueQuitKeys),
		)
	} else if m.info != "" {
		keys := help.KeyMap(dialogContinueQuitKeys)
		if m.state == stateDone {
			keys = dialogQuitKeys
		}
		view = fullscreenDialogStyle.Render(
			dialogTitleStyle.Render(wizardTitle)+"\n\n",
			m.info+"\n\n",
			m.help.View(keys),
		)
	} else {
		switch m.state {
		case stateEncrypt:
			view = fullscreenDialogStyle.Render(
				dialogTitleStyle.Render(wizardTitle+" - Encryption")+"\n\n",
				"Encrypt the root partition with LUKS2?\n\n"+
					"You will have to enter the passphrase every time the system boots.\n\n",
				m.help.View(encryptKeys),
			)
		case statePassphrase:
			view = fullscreenDialogStyle.Render(
				dialogTitleStyle.Render(wizardTitle+" - Encryption passphrase")+"\n\n",
				m.passphrase.View()+"\n",
				m.repeat.View()+"\n\n",
				m.help.View(dialogContinueQuitKeys),
			)
		case stateConfirm:
			view = fullscreenDialogStyle.BorderForeground(lipgloss.Yellow).Render(
				dialogTitleStyle.Render(wizardTitle+" - Confirm Installation and Data Wipe")+"\n\n",
				summary(m.cfg)+"\n",
				dialogTitleWithColorStyle(lipgloss.Yellow).Render("Warning: All data on "+m.cfg.Disk+" will be ERASED!")+"\n\n",
				m.help.View(dialogContinueQuitKeys),
			)
		case stateInstalling:
			view = fullscreenDialogStyle.Render(
				dialogTitleStyle.Render(wizardTitle)+"\n\n",
				m.spinner.View()+" "+m.phase,
			)
		default:
			view = fullscreenDocStyle.Render(m.devices.View())
		}
	}
	v := tea.NewView(view)
	v.AltScreen = true
	return v
}

func (a *app) tuiCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Start the terminal UI for installing Arch Linux.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd)
			if err != nil {
				return err
			}

			// log lines would tear the UI apart
			logFile, err := os.CreateTemp("", "glassarch-*.log")
			if err != nil {
				return err
			}
			defer logFile.Close()
			a.log.SetOutput(logFile)
			defer a.log.SetOutput(cmd.ErrOrStderr())

			runInstall := func(ctx context.Context, cfg *config.Config, onPhase func(install.Phase)) error {
				ctx, cancel := signalContext(ctx)
				defer cancel()

				installer := install.New(cfg, a.log)
				installer.OnPhase = onPhase
				return installer.Run(ctx)
			}

			final, err := tea.NewProgram(initialModel(cfg, listDevices, runInstall)).Run()
			if err != nil {
				return fmt.Errorf("failed to run terminal UI: %w", err)
			}

			m, ok := final.(model)
			if !ok || m.run == nil {
				return nil
			}

			// the UI may quit before the installer finished cleaning up
			<-m.run.done
			if m.run.err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "installation failed, see %s for details\n", logFile.Name())
				return &silentError{m.run.err}
			}
			return nil
		},
	}

	addConfigFlags(cmd.Flags())

	return cmd
}
