package session

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"checklist/internal/storage"
)

func newTestController(t *testing.T) (*Controller, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "checklist.db"), storage.Options{})
	if err != nil {
		t.Fatalf("storage.Open() error = %v", err)
	}
	c := New(store, Options{})
	t.Cleanup(func() {
		c.Close()
		store.Close()
	})
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	return c, store
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func ids(items []storage.Item) []int64 {
	out := []int64{}
	for _, it := range items {
		out = append(out, it.ID)
	}
	return out
}

func mustAdd(t *testing.T, c *Controller, text string) int64 {
	t.Helper()
	id, err := c.AddItem(context.Background(), text)
	if err != nil {
		t.Fatalf("AddItem(%q) error = %v", text, err)
	}
	return id
}

func TestBootstrapFirstRun(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()

	lists, err := store.Lists(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(lists) != 1 || lists[0].Title != "List 1" {
		t.Fatalf("lists = %+v, want one list titled List 1", lists)
	}
	if c.CurrentList() != lists[0].ID {
		t.Errorf("CurrentList() = %d, want %d", c.CurrentList(), lists[0].ID)
	}
	settings, err := store.Settings(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range storage.SettingNames {
		enabled, ok := settings[name]
		if !ok || enabled {
			t.Errorf("setting %s = %v (present %v), want false", name, enabled, ok)
		}
	}
	eventually(t, "title view", func() bool { return c.Title.Value().String == "List 1" })
}

func TestBootstrapIsIdempotent(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := c.Bootstrap(ctx); err != nil {
			t.Fatal(err)
		}
	}
	listIDs, _ := store.ListIDs(ctx)
	if len(listIDs) != 1 {
		t.Errorf("lists = %v, want exactly one", listIDs)
	}
	settings, _ := store.Settings(ctx)
	if len(settings) != 3 {
		t.Errorf("settings = %v, want exactly 3", settings)
	}
}

func TestBootstrapKeepsExistingLists(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "checklist.db"), storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()
	store.CreateList(ctx, "Mine")
	store.CreateList(ctx, "Other")

	c := New(store, Options{TitlePrefix: "Checklist"})
	defer c.Close()
	if err := c.Bootstrap(ctx); err != nil {
		t.Fatal(err)
	}
	lists, _ := store.Lists(ctx)
	if len(lists) != 2 {
		t.Errorf("lists = %+v, want the two existing ones", lists)
	}
	if c.CurrentList() != 1 {
		t.Errorf("CurrentList() = %d, want 1", c.CurrentList())
	}
}

func TestAddItemRejectsBlank(t *testing.T) {
	c, store := newTestController(t)
	for _, text := range []string{"", "   ", "\t\n"} {
		if _, err := c.AddItem(context.Background(), text); !errors.Is(err, ErrBlankText) {
			t.Errorf("AddItem(%q) error = %v, want ErrBlankText", text, err)
		}
	}
	items, _ := store.ActiveItems(context.Background(), c.CurrentList())
	if len(items) != 0 {
		t.Errorf("items = %+v, want none", items)
	}
}

func TestEditsRejectBlankText(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	id := mustAdd(t, c, "milk")

	for _, text := range []string{"", "   ", "\t\n"} {
		if err := c.UpdateItemText(ctx, id, text); !errors.Is(err, ErrBlankText) {
			t.Errorf("UpdateItemText(%q) error = %v, want ErrBlankText", text, err)
		}
		if err := c.RenameCurrentList(ctx, text); !errors.Is(err, ErrBlankText) {
			t.Errorf("RenameCurrentList(%q) error = %v, want ErrBlankText", text, err)
		}
	}

	it, err := store.Item(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if it.Text != "milk" {
		t.Errorf("text = %q, want milk", it.Text)
	}
	title, err := store.ListTitle(ctx, c.CurrentList())
	if err != nil {
		t.Fatal(err)
	}
	if title != "List 1" {
		t.Errorf("title = %q, want List 1", title)
	}
}

func TestUpdateItemTextRoundTrip(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	id := mustAdd(t, c, "x")
	if err := c.UpdateItemText(ctx, id, "y"); err != nil {
		t.Fatal(err)
	}
	it, err := store.Item(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if it.Text != "y" {
		t.Errorf("text = %q, want y", it.Text)
	}
	eventually(t, "active view text", func() bool {
		items := c.ActiveItems.Value()
		return len(items) == 1 && items[0].Text == "y"
	})
}

func TestViewsFollowSelection(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	first := c.CurrentList()
	a := mustAdd(t, c, "in first")

	second, err := c.CreateNewList(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if c.CurrentList() != second {
		t.Fatalf("CurrentList() = %d, want %d", c.CurrentList(), second)
	}
	b := mustAdd(t, c, "in second")

	eventually(t, "second list items", func() bool {
		v, key, ok := c.ActiveItems.Snapshot()
		return ok && key == second && slices.Equal(ids(v), []int64{b})
	})
	eventually(t, "second title", func() bool { return c.Title.Value().String == "List 2" })

	c.SelectList(first)
	eventually(t, "first list items", func() bool {
		v, key, ok := c.ActiveItems.Snapshot()
		return ok && key == first && slices.Equal(ids(v), []int64{a})
	})
	eventually(t, "list count", func() bool { return c.ListCount.Value() == 2 })
}

func TestLatestSelectionWins(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	var lists []int64
	lists = append(lists, c.CurrentList())
	for i := 0; i < 3; i++ {
		id, err := c.CreateNewList(ctx)
		if err != nil {
			t.Fatal(err)
		}
		lists = append(lists, id)
	}
	c.SelectList(lists[0])
	want := mustAdd(t, c, "target")

	for _, id := range lists[1:] {
		c.SelectList(id)
	}
	c.SelectList(lists[0])

	eventually(t, "final selection", func() bool {
		v, key, ok := c.CheckedItems.Snapshot()
		return ok && key == lists[0] && len(v) == 0
	})
	eventually(t, "active items of final selection", func() bool {
		v, key, _ := c.ActiveItems.Snapshot()
		return key == lists[0] && slices.Equal(ids(v), []int64{want})
	})
}

func TestArchiveCheckedItems(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	one := mustAdd(t, c, "one")
	two := mustAdd(t, c, "two")
	if err := c.SetChecked(ctx, one, true); err != nil {
		t.Fatal(err)
	}
	eventually(t, "checked snapshot", func() bool {
		v := c.ActiveItems.Value()
		return len(v) == 2 && v[0].Checked
	})

	if err := c.ArchiveCheckedItems(ctx); err != nil {
		t.Fatal(err)
	}
	it1, _ := store.Item(ctx, one)
	it2, _ := store.Item(ctx, two)
	if !it1.Archived || it2.Archived {
		t.Errorf("archived = %v/%v, want true/false", it1.Archived, it2.Archived)
	}
	eventually(t, "active view without archived item", func() bool {
		return slices.Equal(ids(c.ActiveItems.Value()), []int64{two})
	})
	eventually(t, "archive view", func() bool {
		return slices.Equal(ids(c.ArchivedItems.Value()), []int64{one})
	})
}

func TestArchiveCheckedIgnoresSnapshotOfOtherList(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	first := c.CurrentList()
	id := mustAdd(t, c, "checked")
	c.SetChecked(ctx, id, true)
	eventually(t, "checked snapshot", func() bool {
		v := c.ActiveItems.Value()
		return len(v) == 1 && v[0].Checked
	})

	other, err := store.CreateList(ctx, "other")
	if err != nil {
		t.Fatal(err)
	}
	c.SelectList(other)
	if err := c.ArchiveCheckedItems(ctx); err != nil {
		t.Fatal(err)
	}
	it, _ := store.Item(ctx, id)
	if it.Archived {
		t.Errorf("item of list %d archived while list %d was selected", first, other)
	}
}

func TestArchiveHistoryOperations(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	keep := mustAdd(t, c, "keep")
	restore := mustAdd(t, c, "restore")
	drop := mustAdd(t, c, "drop")
	for _, id := range []int64{keep, restore, drop} {
		if err := c.ArchiveItem(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	c.SetChecked(ctx, restore, true)
	eventually(t, "archive snapshot", func() bool {
		v := c.ArchivedItems.Value()
		return len(v) == 3 && slices.ContainsFunc(v, func(it storage.Item) bool { return it.ID == restore && it.Checked })
	})
	if err := c.UnarchiveSelected(ctx); err != nil {
		t.Fatal(err)
	}
	if it, _ := store.Item(ctx, restore); it.Archived {
		t.Error("selected item still archived")
	}

	c.SetChecked(ctx, drop, true)
	eventually(t, "archive snapshot after unarchive", func() bool {
		v := c.ArchivedItems.Value()
		return len(v) == 2 && slices.ContainsFunc(v, func(it storage.Item) bool { return it.ID == drop && it.Checked })
	})
	if err := c.DeleteSelectedArchived(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Item(ctx, drop); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Item(drop) error = %v, want ErrNotFound", err)
	}
	if it, err := store.Item(ctx, keep); err != nil || !it.Archived {
		t.Errorf("unselected archived item changed: %+v, %v", it, err)
	}

	if err := c.ClearArchiveHistory(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Item(ctx, keep); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Item(keep) error = %v, want ErrNotFound", err)
	}
	if err := c.UnarchiveItem(ctx, restore); err != nil {
		t.Fatal(err)
	}
	if err := c.DeleteItem(ctx, restore); err != nil {
		t.Fatal(err)
	}
	eventually(t, "empty views", func() bool {
		return len(c.ArchivedItems.Value()) == 0 && len(c.ActiveItems.Value()) == 0
	})
}

func TestDeleteCurrentListAndSelect(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	c.CreateNewList(ctx)
	c.CreateNewList(ctx)

	c.SelectList(2)
	got, err := c.DeleteCurrentListAndSelect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != 3 || c.CurrentList() != 3 {
		t.Errorf("after deleting 2: got %d, current %d, want 3", got, c.CurrentList())
	}

	got, err = c.DeleteCurrentListAndSelect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Errorf("after deleting tail 3: got %d, want 1", got)
	}
	remaining, _ := store.ListIDs(ctx)
	if !slices.Equal(remaining, []int64{1}) {
		t.Errorf("remaining = %v, want [1]", remaining)
	}
}

func TestDeletingOnlyListRecreatesDefault(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	only := c.CurrentList()
	item := mustAdd(t, c, "gone with the list")

	got, err := c.DeleteCurrentListAndSelect(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == only {
		t.Fatalf("selected deleted list %d", only)
	}
	remaining, _ := store.ListIDs(ctx)
	if !slices.Equal(remaining, []int64{got}) {
		t.Errorf("remaining = %v, want [%d]", remaining, got)
	}
	if _, err := store.Item(ctx, item); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("item survived cascade: %v", err)
	}
	title, _ := store.ListTitle(ctx, got)
	if title != "List 1" {
		t.Errorf("recreated title = %q, want List 1", title)
	}
	eventually(t, "title of recreated list", func() bool { return c.Title.Value().String == "List 1" })
}

func TestNavigationAndPosition(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	c.CreateNewList(ctx)
	c.CreateNewList(ctx)
	c.SelectList(1)

	if id, _ := c.SelectNext(ctx); id != 2 {
		t.Errorf("SelectNext() = %d, want 2", id)
	}
	if pos, _ := c.Position(ctx); pos != 1 {
		t.Errorf("Position() = %d, want 1", pos)
	}
	c.SelectNext(ctx)
	if id, _ := c.SelectNext(ctx); id != 3 {
		t.Errorf("SelectNext() at tail = %d, want 3", id)
	}
	if id, _ := c.SelectPrev(ctx); id != 2 {
		t.Errorf("SelectPrev() = %d, want 2", id)
	}
	if id, _ := c.Swipe(ctx, 120, 50); id != 1 {
		t.Errorf("Swipe(right) = %d, want 1", id)
	}
	if id, _ := c.Swipe(ctx, -10, 50); id != 1 {
		t.Errorf("Swipe(short) = %d, want 1", id)
	}
	eventually(t, "delete allowed", c.CanDeleteList)
}

func TestRenameCurrentList(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	if err := c.RenameCurrentList(ctx, "Groceries"); err != nil {
		t.Fatal(err)
	}
	title, _ := store.ListTitle(ctx, c.CurrentList())
	if title != "Groceries" {
		t.Errorf("title = %q, want Groceries", title)
	}
	eventually(t, "title view", func() bool { return c.Title.Value().String == "Groceries" })
}

func TestSettingsAndVisibleItems(t *testing.T) {
	c, _ := newTestController(t)
	ctx := context.Background()
	one := mustAdd(t, c, "one")
	two := mustAdd(t, c, "two")
	three := mustAdd(t, c, "three")
	c.SetChecked(ctx, two, true)

	eventually(t, "insertion order", func() bool {
		return slices.Equal(ids(c.VisibleItems()), []int64{one, two, three}) && c.ActiveItems.Value()[1].Checked
	})

	if err := c.SetSetting(ctx, storage.SettingSortByChecked, true); err != nil {
		t.Fatal(err)
	}
	eventually(t, "sorted order", func() bool {
		return slices.Equal(ids(c.VisibleItems()), []int64{three, one, two})
	})

	if err := c.SetSetting(ctx, storage.SettingAutoHideChecked, true); err != nil {
		t.Fatal(err)
	}
	if err := c.ResetSettings(ctx); err != nil {
		t.Fatal(err)
	}
	eventually(t, "settings reset", func() bool {
		return !c.SortByChecked.Value() && !c.AutoHideChecked.Value()
	})

	if err := c.SetSetting(ctx, "bogus", true); !errors.Is(err, ErrUnknownSetting) {
		t.Errorf("SetSetting(bogus) error = %v, want ErrUnknownSetting", err)
	}
	if err := c.SetSetting(ctx, storage.SettingAutoLineBreak, true); err != nil {
		t.Fatal(err)
	}
	eventually(t, "line break setting", c.AutoLineBreak.Value)
}

func TestAutoHideCheckedArchivesOnCheck(t *testing.T) {
	c, store := newTestController(t)
	ctx := context.Background()
	kept := mustAdd(t, c, "kept")
	done := mustAdd(t, c, "done")

	if err := c.SetSetting(ctx, storage.SettingAutoHideChecked, true); err != nil {
		t.Fatal(err)
	}
	if err := c.SetChecked(ctx, done, true); err != nil {
		t.Fatal(err)
	}
	it, err := store.Item(ctx, done)
	if err != nil {
		t.Fatal(err)
	}
	if !it.Checked || !it.Archived {
		t.Errorf("item = %+v, want checked and archived", it)
	}
	eventually(t, "checked item in history", func() bool {
		return slices.Equal(ids(c.VisibleItems()), []int64{kept}) &&
			slices.Equal(ids(c.ArchivedItems.Value()), []int64{done})
	})
	if len(c.CheckedItems.Value()) != 0 {
		t.Errorf("CheckedItems = %+v, want none", c.CheckedItems.Value())
	}

	if err := c.SetChecked(ctx, kept, false); err != nil {
		t.Fatal(err)
	}
	if it, _ := store.Item(ctx, kept); it.Archived {
		t.Error("unchecking archived the item")
	}

	if err := c.SetSetting(ctx, storage.SettingAutoHideChecked, false); err != nil {
		t.Fatal(err)
	}
	if err := c.SetChecked(ctx, kept, true); err != nil {
		t.Fatal(err)
	}
	if it, _ := store.Item(ctx, kept); it.Archived {
		t.Error("item archived with autoHideChecked off")
	}
}

func TestGlobalViewReopensAfterQueryError(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "checklist.db"), storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	broken, err := storage.Open(filepath.Join(t.TempDir(), "broken.db"), storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	broken.Close()

	c := New(store, Options{RetryDelay: 10 * time.Millisecond})
	t.Cleanup(func() {
		c.Close()
		store.Close()
	})
	if err := c.Bootstrap(context.Background()); err != nil {
		t.Fatal(err)
	}

	var opens atomic.Int32
	v := &View[int]{}
	c.wg.Add(1)
	go followGlobal(c, v, func(ctx context.Context) *storage.Subscription[int] {
		if opens.Add(1) == 1 {
			return broken.WatchListCount(ctx)
		}
		return store.WatchListCount(ctx)
	})

	eventually(t, "view recovered", func() bool {
		n, _, ready := v.Snapshot()
		return ready && n == 1
	})
	if got := opens.Load(); got != 2 {
		t.Errorf("opened %d subscriptions, want 2", got)
	}
}

func TestChangesSignals(t *testing.T) {
	c, _ := newTestController(t)
	// Drain whatever bootstrap produced.
	select {
	case <-c.Changes():
	case <-time.After(time.Second):
	}
	mustAdd(t, c, "ping")
	select {
	case <-c.Changes():
	case <-time.After(3 * time.Second):
		t.Fatal("no change signal after AddItem")
	}
}

func TestCloseStopsViews(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "checklist.db"), storage.Options{})
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	c := New(store, Options{})

	done := make(chan struct{})
	go func() {
		c.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close() did not return")
	}
}
