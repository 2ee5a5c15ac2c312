// Package session owns the current list selection, keeps live views of the
// selected list, and exposes the mutations a front end issues.
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"checklist/internal/navigator"
	"checklist/internal/storage"
)

var (
	// ErrBlankText rejects item texts and list titles that are empty after
	// trimming.
	ErrBlankText = errors.New("item text is blank")
	// ErrUnknownSetting rejects names outside storage.SettingNames.
	ErrUnknownSetting = errors.New("unknown setting")
)

const DefaultTitlePrefix = "List"

type Options struct {
	Logger *log.Logger
	// TitlePrefix names new lists "<prefix> N". Empty means DefaultTitlePrefix.
	TitlePrefix string
	// RetryDelay is how long a view waits before reopening a failed live
	// query. Zero means one second.
	RetryDelay time.Duration
}

type Controller struct {
	store  *storage.Store
	nav    *navigator.Navigator
	log    *log.Logger
	prefix string

	sel     *selection
	changes chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	retry  time.Duration

	// Keyed by the current list.
	ActiveItems       *View[[]storage.Item]
	ActiveItemsSorted *View[[]storage.Item]
	CheckedItems      *View[[]storage.Item]
	// Title is invalid while the selected list does not exist.
	Title *View[sql.NullString]

	// Global.
	ArchivedItems   *View[[]storage.Item]
	ListCount       *View[int]
	Lists           *View[[]storage.List]
	SortByChecked   *View[bool]
	AutoHideChecked *View[bool]
	AutoLineBreak   *View[bool]
}

// New starts the live views. Call Bootstrap before handing the controller to
// a front end and Close when done.
func New(store *storage.Store, opts Options) *Controller {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	prefix := strings.TrimSpace(opts.TitlePrefix)
	if prefix == "" {
		prefix = DefaultTitlePrefix
	}
	retry := opts.RetryDelay
	if retry <= 0 {
		retry = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		store:   store,
		nav:     navigator.New(store),
		log:     logger,
		prefix:  prefix,
		sel:     newSelection(),
		changes: make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		retry:   retry,

		ActiveItems:       &View[[]storage.Item]{},
		ActiveItemsSorted: &View[[]storage.Item]{},
		CheckedItems:      &View[[]storage.Item]{},
		Title:             &View[sql.NullString]{},
		ArchivedItems:     &View[[]storage.Item]{},
		ListCount:         &View[int]{},
		Lists:             &View[[]storage.List]{},
		SortByChecked:     &View[bool]{},
		AutoHideChecked:   &View[bool]{},
		AutoLineBreak:     &View[bool]{},
	}

	c.wg.Add(10)
	go followList(c, c.ActiveItems, store.WatchActiveItems)
	go followList(c, c.ActiveItemsSorted, store.WatchActiveItemsSorted)
	go followList(c, c.CheckedItems, store.WatchCheckedItems)
	go followList(c, c.Title, store.WatchTitle)
	go followGlobal(c, c.ArchivedItems, store.WatchArchivedItems)
	go followGlobal(c, c.ListCount, store.WatchListCount)
	go followGlobal(c, c.Lists, store.WatchLists)
	go followGlobal(c, c.SortByChecked, c.watchSetting(storage.SettingSortByChecked))
	go followGlobal(c, c.AutoHideChecked, c.watchSetting(storage.SettingAutoHideChecked))
	go followGlobal(c, c.AutoLineBreak, c.watchSetting(storage.SettingAutoLineBreak))
	return c
}

// Close stops every view and waits for them to exit.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

// Changes signals that at least one view has a new snapshot. Signals are
// coalesced; readers re-read the views they render.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

// Bootstrap creates a default list when none exists, seeds missing settings
// and selects the first list. Running it again changes nothing.
func (c *Controller) Bootstrap(ctx context.Context) error {
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return c.fail("bootstrap", err)
	}
	if len(ids) == 0 {
		if _, err := c.createDefaultList(ctx); err != nil {
			return c.fail("bootstrap", err)
		}
	}

	settings, err := c.store.Settings(ctx)
	if err != nil {
		return c.fail("bootstrap", err)
	}
	if len(settings) < len(storage.SettingNames) {
		for _, name := range storage.SettingNames {
			if err := c.store.CreateSetting(ctx, name, false); err != nil {
				return c.fail("bootstrap", err)
			}
		}
	}

	first, err := c.nav.First(ctx)
	if err != nil {
		return c.fail("bootstrap", err)
	}
	c.SelectList(first)
	c.log.Debug("bootstrapped", "list", first)
	return nil
}

func (c *Controller) CurrentList() int64 {
	id, _ := c.sel.get()
	return id
}

// SelectList switches every keyed view to id.
func (c *Controller) SelectList(id int64) {
	c.sel.set(id)
}

func (c *Controller) SelectNext(ctx context.Context) (int64, error) {
	id, err := c.nav.Next(ctx, c.CurrentList())
	if err != nil {
		return 0, c.fail("select next", err)
	}
	c.SelectList(id)
	return id, nil
}

func (c *Controller) SelectPrev(ctx context.Context) (int64, error) {
	id, err := c.nav.Prev(ctx, c.CurrentList())
	if err != nil {
		return 0, c.fail("select prev", err)
	}
	c.SelectList(id)
	return id, nil
}

// Swipe selects the list a horizontal drag of distance resolves to.
func (c *Controller) Swipe(ctx context.Context, distance, threshold float64) (int64, error) {
	id, err := c.nav.Swipe(ctx, c.CurrentList(), distance, threshold)
	if err != nil {
		return 0, c.fail("swipe", err)
	}
	c.SelectList(id)
	return id, nil
}

// Position returns the 0-based rank of the current list.
func (c *Controller) Position(ctx context.Context) (int, error) {
	pos, err := c.nav.Position(ctx, c.CurrentList())
	if err != nil {
		return 0, c.fail("position", err)
	}
	return pos, nil
}

// CanDeleteList reports whether more than one list exists.
func (c *Controller) CanDeleteList() bool {
	return c.ListCount.Value() > 1
}

// VisibleItems returns the current list's active items in the order the
// sortByChecked setting selects.
func (c *Controller) VisibleItems() []storage.Item {
	if c.SortByChecked.Value() {
		return c.ActiveItemsSorted.Value()
	}
	return c.ActiveItems.Value()
}

func (c *Controller) AddItem(ctx context.Context, text string) (int64, error) {
	if strings.TrimSpace(text) == "" {
		return 0, ErrBlankText
	}
	id, err := c.store.AddItem(ctx, c.CurrentList(), text)
	if err != nil {
		return 0, c.fail("add item", err)
	}
	return id, nil
}

func (c *Controller) UpdateItemText(ctx context.Context, id int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrBlankText
	}
	return c.fail("update item text", c.store.UpdateItemText(ctx, id, text))
}

// SetChecked checks or unchecks an item. With autoHideChecked on, checking an
// item also moves it to the archive.
func (c *Controller) SetChecked(ctx context.Context, id int64, checked bool) error {
	if err := c.store.SetChecked(ctx, id, checked); err != nil {
		return c.fail("set checked", err)
	}
	if !checked {
		return nil
	}
	settings, err := c.store.Settings(ctx)
	if err != nil {
		return c.fail("set checked", err)
	}
	if !settings[storage.SettingAutoHideChecked] {
		return nil
	}
	return c.fail("set checked", c.store.SetArchived(ctx, id, true))
}

func (c *Controller) ArchiveItem(ctx context.Context, id int64) error {
	return c.fail("archive item", c.store.SetArchived(ctx, id, true))
}

func (c *Controller) UnarchiveItem(ctx context.Context, id int64) error {
	return c.fail("unarchive item", c.store.SetArchived(ctx, id, false))
}

func (c *Controller) DeleteItem(ctx context.Context, id int64) error {
	return c.fail("delete item", c.store.DeleteItem(ctx, id))
}

// ArchiveCheckedItems archives the checked items of the last delivered
// ActiveItems snapshot. Items checked after that snapshot are left alone.
func (c *Controller) ArchiveCheckedItems(ctx context.Context) error {
	items, key, ready := c.ActiveItems.Snapshot()
	if !ready || key != c.CurrentList() {
		return nil
	}
	for _, it := range items {
		if !it.Checked {
			continue
		}
		if err := c.store.SetArchived(ctx, it.ID, true); err != nil {
			return c.fail("archive checked items", err)
		}
	}
	return nil
}

// DeleteSelectedArchived deletes the checked items of the last delivered
// archive snapshot.
func (c *Controller) DeleteSelectedArchived(ctx context.Context) error {
	for _, it := range c.ArchivedItems.Value() {
		if !it.Checked {
			continue
		}
		if err := c.store.DeleteItem(ctx, it.ID); err != nil {
			return c.fail("delete selected archived", err)
		}
	}
	return nil
}

// UnarchiveSelected restores the checked items of the last delivered archive
// snapshot to their lists.
func (c *Controller) UnarchiveSelected(ctx context.Context) error {
	for _, it := range c.ArchivedItems.Value() {
		if !it.Checked {
			continue
		}
		if err := c.store.SetArchived(ctx, it.ID, false); err != nil {
			return c.fail("unarchive selected", err)
		}
	}
	return nil
}

func (c *Controller) ClearArchiveHistory(ctx context.Context) error {
	return c.fail("clear archive history", c.store.DeleteArchived(ctx))
}

// DeleteCurrentListAndSelect deletes the current list and selects its
// successor. Deleting the only list leaves none behind, so a fresh default
// list is created and selected instead.
func (c *Controller) DeleteCurrentListAndSelect(ctx context.Context) (int64, error) {
	cur := c.CurrentList()
	next, err := c.nav.DeleteAndSelect(ctx, cur)
	if err != nil {
		return 0, c.fail("delete list", err)
	}
	ids, err := c.store.ListIDs(ctx)
	if err != nil {
		return 0, c.fail("delete list", err)
	}
	if len(ids) == 0 {
		if next, err = c.createDefaultList(ctx); err != nil {
			return 0, c.fail("delete list", err)
		}
		c.log.Info("recreated default list", "deleted", cur, "list", next)
	}
	c.SelectList(next)
	return next, nil
}

func (c *Controller) RenameCurrentList(ctx context.Context, title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrBlankText
	}
	return c.fail("rename list", c.store.RenameList(ctx, c.CurrentList(), title))
}

// CreateNewList creates a list with the default title and selects it.
func (c *Controller) CreateNewList(ctx context.Context) (int64, error) {
	id, err := c.createDefaultList(ctx)
	if err != nil {
		return 0, c.fail("create list", err)
	}
	c.SelectList(id)
	return id, nil
}

func (c *Controller) SetSetting(ctx context.Context, name string, enabled bool) error {
	if !slices.Contains(storage.SettingNames, name) {
		return fmt.Errorf("%w: %q", ErrUnknownSetting, name)
	}
	return c.fail("set setting", c.store.SetSetting(ctx, name, enabled))
}

// ResetSettings turns sorting and auto-hiding back off.
func (c *Controller) ResetSettings(ctx context.Context) error {
	for _, name := range []string{storage.SettingSortByChecked, storage.SettingAutoHideChecked} {
		if err := c.store.SetSetting(ctx, name, false); err != nil {
			return c.fail("reset settings", err)
		}
	}
	return nil
}

func (c *Controller) createDefaultList(ctx context.Context) (int64, error) {
	last, err := c.nav.Last(ctx)
	if err != nil {
		return 0, err
	}
	return c.store.CreateList(ctx, fmt.Sprintf("%s %d", c.prefix, last+1))
}

func (c *Controller) watchSetting(name string) func(context.Context) *storage.Subscription[bool] {
	return func(ctx context.Context) *storage.Subscription[bool] {
		return c.store.WatchSetting(ctx, name)
	}
}

// fail logs err and returns it wrapped with op. A nil err passes through.
func (c *Controller) fail(op string, err error) error {
	if err == nil {
		return nil
	}
	c.log.Error(op, "list", c.CurrentList(), "err", err)
	return fmt.Errorf("%s: %w", op, err)
}
