package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"checklist/internal/config"
	"checklist/internal/session"
	"checklist/internal/storage"
)

type mode int

const (
	modeList mode = iota
	modeAdd
	modeEdit
	modeRename
	modeHistory
	modeSettings
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	checkedStyle = lipgloss.NewStyle().Faint(true).Strikethrough(true)
	statusStyle  = lipgloss.NewStyle().Faint(true)
)

var settingLabels = map[string]string{
	storage.SettingSortByChecked:   "Sort checked items to the bottom",
	storage.SettingAutoHideChecked: "Move checked items to history",
	storage.SettingAutoLineBreak:   "Wrap long items",
}

type (
	changedMsg  struct{}
	positionMsg int
	resultMsg   struct {
		status string
		err    error
	}
)

type confirmation struct {
	prompt string
	done   string
	run    func(context.Context) error
}

type Model struct {
	ctrl    *session.Controller
	cfg     config.Config
	mode    mode
	cursor  int
	input   textinput.Model
	status  string
	confirm *confirmation
	editID  int64
	pos     int
	width   int
	dragX   int
	drag    bool
}

func New(ctrl *session.Controller, cfg config.Config, firstLaunch bool) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 40

	status := "Press 'a' to add, space to toggle, h/l to switch lists."
	if firstLaunch {
		status = "Welcome! " + status
	}
	return Model{
		ctrl:   ctrl,
		cfg:    cfg,
		mode:   modeList,
		input:  ti,
		status: status,
		width:  80,
	}
}

func Run(ctrl *session.Controller, cfg config.Config, firstLaunch bool) error {
	program := tea.NewProgram(New(ctrl, cfg, firstLaunch), tea.WithMouseCellMotion())
	_, err := program.Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.waitForChange(), m.refreshPosition())
}

func (m Model) waitForChange() tea.Cmd {
	changes := m.ctrl.Changes()
	return func() tea.Msg {
		<-changes
		return changedMsg{}
	}
}

func (m Model) refreshPosition() tea.Cmd {
	return func() tea.Msg {
		pos, err := m.ctrl.Position(context.Background())
		if err != nil {
			return resultMsg{err: err}
		}
		return positionMsg(pos)
	}
}

// do runs fn off the render loop and reports status or the error.
func (m Model) do(status string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		if err := fn(context.Background()); err != nil {
			return resultMsg{err: err}
		}
		return resultMsg{status: status}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case changedMsg:
		m.cursor = clampCursor(m.cursor, m.rowCount())
		return m, tea.Batch(m.waitForChange(), m.refreshPosition())
	case positionMsg:
		m.pos = int(msg)
	case resultMsg:
		switch {
		case errors.Is(msg.err, session.ErrBlankText):
			m.status = "Text cannot be empty"
		case msg.err != nil:
			m.status = fmt.Sprintf("failed: %v", msg.err)
		case msg.status != "":
			m.status = msg.status
		}
		return m, m.refreshPosition()
	case tea.MouseMsg:
		return m.updateMouse(msg)
	case tea.KeyMsg:
		if m.confirm != nil {
			return m.updateConfirm(msg.String())
		}
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - 10
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	switch m.mode {
	case modeAdd, modeEdit, modeRename:
		return m.updateInputMode(key, msg)
	case modeHistory:
		return m.updateHistoryMode(key)
	case modeSettings:
		return m.updateSettingsMode(key)
	}
	return m.updateListMode(key)
}

func (m Model) startInput(md mode, value, placeholder string) (tea.Model, tea.Cmd) {
	m.mode = md
	m.input.SetValue(value)
	m.input.Placeholder = placeholder
	return m, m.input.Focus()
}

func (m Model) updateInputMode(key string, msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key {
	case m.cfg.Keys.Cancel:
		m.mode = modeList
		m.input.SetValue("")
		m.input.Blur()
		m.status = "Cancelled"
		return m, nil
	case m.cfg.Keys.Confirm:
		value := m.input.Value()
		md, id := m.mode, m.editID
		m.mode = modeList
		m.input.SetValue("")
		m.input.Blur()
		switch md {
		case modeAdd:
			return m, m.do("Added item", func(ctx context.Context) error {
				_, err := m.ctrl.AddItem(ctx, value)
				return err
			})
		case modeEdit:
			return m, m.do("Updated item", func(ctx context.Context) error {
				return m.ctrl.UpdateItemText(ctx, id, value)
			})
		default:
			return m, m.do("Renamed list", func(ctx context.Context) error {
				return m.ctrl.RenameCurrentList(ctx, value)
			})
		}
	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

func (m Model) updateListMode(key string) (tea.Model, tea.Cmd) {
	items := m.ctrl.VisibleItems()
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(items))
	case m.cfg.Keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(items))
	case m.cfg.Keys.Add:
		m.status = "Add mode: type the item and press Enter"
		return m.startInput(modeAdd, "", "New item")
	case m.cfg.Keys.Toggle:
		if len(items) == 0 {
			return m, nil
		}
		it := items[clampCursor(m.cursor, len(items))]
		return m, m.do("Toggled item", func(ctx context.Context) error {
			return m.ctrl.SetChecked(ctx, it.ID, !it.Checked)
		})
	case m.cfg.Keys.Edit:
		if len(items) == 0 {
			m.status = "No items to edit"
			return m, nil
		}
		it := items[clampCursor(m.cursor, len(items))]
		m.editID = it.ID
		m.status = "Edit mode: change the text and press Enter"
		return m.startInput(modeEdit, it.Text, "Item text")
	case m.cfg.Keys.Archive:
		if len(items) == 0 {
			return m, nil
		}
		it := items[clampCursor(m.cursor, len(items))]
		return m, m.do("Moved item to history", func(ctx context.Context) error {
			return m.ctrl.ArchiveItem(ctx, it.ID)
		})
	case m.cfg.Keys.ArchiveChecked:
		if len(m.ctrl.CheckedItems.Value()) == 0 {
			m.status = "No checked items"
			return m, nil
		}
		return m, m.do("Moved checked items to history", m.ctrl.ArchiveCheckedItems)
	case m.cfg.Keys.NextList:
		return m, m.do("", func(ctx context.Context) error {
			_, err := m.ctrl.SelectNext(ctx)
			return err
		})
	case m.cfg.Keys.PrevList:
		return m, m.do("", func(ctx context.Context) error {
			_, err := m.ctrl.SelectPrev(ctx)
			return err
		})
	case m.cfg.Keys.NewList:
		return m, m.do("Created list", func(ctx context.Context) error {
			_, err := m.ctrl.CreateNewList(ctx)
			return err
		})
	case m.cfg.Keys.Rename:
		m.status = "Rename list: type the title and press Enter"
		return m.startInput(modeRename, m.ctrl.Title.Value().String, "List title")
	case m.cfg.Keys.DeleteList:
		if !m.ctrl.CanDeleteList() {
			m.status = "The last list cannot be deleted"
			return m, nil
		}
		return m.ask(fmt.Sprintf("Delete list %q and its items? y/n", m.ctrl.Title.Value().String), "Deleted list",
			func(ctx context.Context) error {
				_, err := m.ctrl.DeleteCurrentListAndSelect(ctx)
				return err
			})
	case m.cfg.Keys.Delete:
		if len(items) == 0 {
			return m, nil
		}
		it := items[clampCursor(m.cursor, len(items))]
		return m.ask(fmt.Sprintf("Delete %q? y/n", it.Text), "Deleted item", func(ctx context.Context) error {
			return m.ctrl.DeleteItem(ctx, it.ID)
		})
	case m.cfg.Keys.History:
		m.mode = modeHistory
		m.cursor = 0
		m.status = "History: space selects, u restores, d deletes selected"
	case m.cfg.Keys.Settings:
		m.mode = modeSettings
		m.cursor = 0
		m.status = "Settings: space toggles"
	}
	return m, nil
}

func (m Model) updateHistoryMode(key string) (tea.Model, tea.Cmd) {
	items := m.ctrl.ArchivedItems.Value()
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Cancel, m.cfg.Keys.History:
		m.mode = modeList
		m.cursor = 0
		m.status = ""
	case m.cfg.Keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(items))
	case m.cfg.Keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(items))
	case m.cfg.Keys.Toggle:
		if len(items) == 0 {
			return m, nil
		}
		it := items[clampCursor(m.cursor, len(items))]
		return m, m.do("", func(ctx context.Context) error {
			return m.ctrl.SetChecked(ctx, it.ID, !it.Checked)
		})
	case m.cfg.Keys.Unarchive:
		return m, m.do("Restored selected items", m.ctrl.UnarchiveSelected)
	case m.cfg.Keys.Delete:
		return m, m.do("Deleted selected items", m.ctrl.DeleteSelectedArchived)
	case m.cfg.Keys.ClearHistory:
		if len(items) == 0 {
			return m, nil
		}
		return m.ask("Clear the whole history? y/n", "History cleared", m.ctrl.ClearArchiveHistory)
	}
	return m, nil
}

func (m Model) updateSettingsMode(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "ctrl+c", m.cfg.Keys.Quit:
		return m, tea.Quit
	case m.cfg.Keys.Cancel, m.cfg.Keys.Settings:
		m.mode = modeList
		m.cursor = 0
		m.status = ""
	case m.cfg.Keys.Down, "down":
		m.cursor = clampCursor(m.cursor+1, len(storage.SettingNames))
	case m.cfg.Keys.Up, "up":
		m.cursor = clampCursor(m.cursor-1, len(storage.SettingNames))
	case m.cfg.Keys.Toggle, m.cfg.Keys.Confirm:
		name := storage.SettingNames[clampCursor(m.cursor, len(storage.SettingNames))]
		enabled := !m.settingValue(name)
		return m, m.do("Saved setting", func(ctx context.Context) error {
			return m.ctrl.SetSetting(ctx, name, enabled)
		})
	case m.cfg.Keys.ResetSettings:
		return m, m.do("Settings reset", m.ctrl.ResetSettings)
	}
	return m, nil
}

func (m Model) ask(prompt, done string, run func(context.Context) error) (tea.Model, tea.Cmd) {
	m.confirm = &confirmation{prompt: prompt, done: done, run: run}
	m.status = prompt
	return m, nil
}

func (m Model) updateConfirm(key string) (tea.Model, tea.Cmd) {
	switch key {
	case "n", "N", m.cfg.Keys.Cancel:
		m.confirm = nil
		m.status = "Cancelled"
		return m, nil
	case "y", "Y":
		c := m.confirm
		m.confirm = nil
		return m, m.do(c.done, c.run)
	default:
		return m, nil
	}
}

// updateMouse treats a horizontal left-button drag as a swipe between lists.
func (m Model) updateMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if m.mode != modeList {
		return m, nil
	}
	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button != tea.MouseButtonLeft {
			return m, nil
		}
		m.drag, m.dragX = true, msg.X
	case tea.MouseActionRelease:
		if !m.drag {
			return m, nil
		}
		m.drag = false
		distance := float64(msg.X - m.dragX)
		threshold := float64(m.cfg.SwipeThreshold)
		return m, m.do("", func(ctx context.Context) error {
			_, err := m.ctrl.Swipe(ctx, distance, threshold)
			return err
		})
	}
	return m, nil
}

func (m Model) settingValue(name string) bool {
	switch name {
	case storage.SettingSortByChecked:
		return m.ctrl.SortByChecked.Value()
	case storage.SettingAutoHideChecked:
		return m.ctrl.AutoHideChecked.Value()
	case storage.SettingAutoLineBreak:
		return m.ctrl.AutoLineBreak.Value()
	}
	return false
}

func (m Model) rowCount() int {
	switch m.mode {
	case modeHistory:
		return len(m.ctrl.ArchivedItems.Value())
	case modeSettings:
		return len(storage.SettingNames)
	}
	return len(m.ctrl.VisibleItems())
}

func (m Model) View() string {
	var b strings.Builder

	switch m.mode {
	case modeHistory:
		b.WriteString(titleStyle.Render("History"))
		b.WriteString("\n\n")
		b.WriteString(m.renderItems(m.ctrl.ArchivedItems.Value(), "History is empty."))
	case modeSettings:
		b.WriteString(titleStyle.Render("Settings"))
		b.WriteString("\n\n")
		b.WriteString(m.renderSettings())
	default:
		title := m.ctrl.Title.Value().String
		b.WriteString(titleStyle.Render(title))
		b.WriteString(fmt.Sprintf("  %d of %d", m.pos+1, m.ctrl.ListCount.Value()))
		b.WriteString("\n\n")
		b.WriteString(m.renderItems(m.ctrl.VisibleItems(), "No items yet. Press 'a' to add one."))
	}

	if m.mode == modeAdd || m.mode == modeEdit || m.mode == modeRename {
		b.WriteString("\n")
		b.WriteString(m.input.View())
	}

	b.WriteString("\n\n")
	b.WriteString(statusStyle.Render(m.status))
	b.WriteString("\n")
	b.WriteString(renderHelp(m.mode, m.cfg.Keys))
	return b.String()
}

func (m Model) renderItems(items []storage.Item, empty string) string {
	if len(items) == 0 {
		return empty + "\n"
	}
	wrap := m.ctrl.AutoLineBreak.Value()
	var b strings.Builder
	for i, it := range items {
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		checkbox := "[ ]"
		if it.Checked {
			checkbox = "[x]"
		}
		text := renderText(it.Text, wrap, m.width-8)
		if it.Checked && m.mode == modeList {
			text = checkedStyle.Render(text)
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", cursor, checkbox, text))
	}
	return b.String()
}

func (m Model) renderSettings() string {
	var b strings.Builder
	for i, name := range storage.SettingNames {
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		checkbox := "[ ]"
		if m.settingValue(name) {
			checkbox = "[x]"
		}
		b.WriteString(fmt.Sprintf("%s %s %s\n", cursor, checkbox, settingLabels[name]))
	}
	return b.String()
}

// renderText wraps text to width when wrap is set and flattens it onto one
// line otherwise.
func renderText(text string, wrap bool, width int) string {
	if !wrap || width <= 0 {
		return strings.Join(strings.Fields(text), " ")
	}
	return lipgloss.NewStyle().Width(width).Render(text)
}

func renderHelp(md mode, k config.Keymap) string {
	switch md {
	case modeHistory:
		return fmt.Sprintf("%s/%s move • %q select • %s restore • %s delete • %s clear • %s back",
			k.Up, k.Down, k.Toggle, k.Unarchive, k.Delete, k.ClearHistory, k.Cancel)
	case modeSettings:
		return fmt.Sprintf("%s/%s move • %q toggle • %s reset • %s back", k.Up, k.Down, k.Toggle, k.ResetSettings, k.Cancel)
	case modeAdd, modeEdit, modeRename:
		return fmt.Sprintf("%s save • %s cancel", k.Confirm, k.Cancel)
	}
	return fmt.Sprintf("%s/%s move • %s add • %q toggle • %s edit • %s/%s archive • %s/%s lists • %s new • %s rename • %s history • %s settings • %s quit",
		k.Up, k.Down, k.Add, k.Toggle, k.Edit, k.Archive, k.ArchiveChecked, k.PrevList, k.NextList, k.NewList, k.Rename, k.History, k.Settings, k.Quit)
}

func clampCursor(cur, n int) int {
	if n <= 0 {
		return 0
	}
	if cur < 0 {
		return 0
	}
	if cur >= n {
		return n - 1
	}
	return cur
}
