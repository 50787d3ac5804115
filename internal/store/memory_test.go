package store

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/stockpulse/internal/stock"
)

func TestNewMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	if store == nil {
		t.Fatal("NewMemoryStore() = nil")
	}

	if len(store.List()) != 0 {
		t.Errorf("List() = %v items, want 0", len(store.List()))
	}
}

func TestMemoryStore_Upsert(t *testing.T) {
	store := NewMemoryStore()

	if !store.Upsert("Widget", "http://a.example/w") {
		t.Fatal("Upsert() = false for new item, want true")
	}

	item, ok := store.Get("Widget", "http://a.example/w")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if item.Status != stock.Unknown {
		t.Errorf("Status = %v, want %v", item.Status, stock.Unknown)
	}
	if item.PreviousStatus != stock.Unknown {
		t.Errorf("PreviousStatus = %v, want %v", item.PreviousStatus, stock.Unknown)
	}
}

func TestMemoryStore_UpsertDuplicateKey(t *testing.T) {
	store := NewMemoryStore()

	store.Upsert("Widget", "http://a.example/w")
	store.SetStatus("Widget", "http://a.example/w", stock.OutOfStock)

	if store.Upsert("Widget", "http://a.example/w") {
		t.Error("Upsert() = true for duplicate key, want false")
	}

	all := store.List()
	if len(all) != 1 {
		t.Fatalf("List() = %v items, want 1", len(all))
	}
	// merge keeps the recorded status
	if all[0].Status != stock.OutOfStock {
		t.Errorf("Status = %v, want %v", all[0].Status, stock.OutOfStock)
	}
}

func TestMemoryStore_SameNameDifferentURL(t *testing.T) {
	store := NewMemoryStore()

	store.Upsert("Widget", "http://a.example/w")
	store.Upsert("Widget", "http://b.example/w")

	if got := len(store.List()); got != 2 {
		t.Errorf("List() = %v items, want 2", got)
	}
}

func TestMemoryStore_ListInsertionOrder(t *testing.T) {
	store := NewMemoryStore()

	names := []string{"c", "a", "b", "d"}
	for _, n := range names {
		store.Upsert(n, "http://shop.example/"+n)
	}
	// status updates must not reorder
	store.SetStatus("a", "http://shop.example/a", stock.InStock)

	for round := 0; round < 3; round++ {
		all := store.List()
		for i, n := range names {
			if all[i].Name != n {
				t.Fatalf("round %d: List()[%d].Name = %q, want %q", round, i, all[i].Name, n)
			}
		}
	}
}

func TestMemoryStore_Remove(t *testing.T) {
	store := NewMemoryStore()

	store.Upsert("a", "http://shop.example/a")
	store.Upsert("b", "http://shop.example/b")
	store.Upsert("c", "http://shop.example/c")

	store.Remove("b", "http://shop.example/b")

	all := store.List()
	if len(all) != 2 {
		t.Fatalf("List() = %v items, want 2", len(all))
	}
	if all[0].Name != "a" || all[1].Name != "c" {
		t.Errorf("List() names = %q,%q, want a,c", all[0].Name, all[1].Name)
	}

	// index must follow the shifted positions
	if _, ok := store.SetStatus("c", "http://shop.example/c", stock.InStock); !ok {
		t.Error("SetStatus() after Remove ok = false, want true")
	}
	item, _ := store.Get("c", "http://shop.example/c")
	if item.Status != stock.InStock {
		t.Errorf("Status = %v, want %v", item.Status, stock.InStock)
	}
}

func TestMemoryStore_RemoveMissingIsNoop(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("a", "http://shop.example/a")

	store.Remove("missing", "http://shop.example/missing")
	store.Remove("a", "http://other.example/a")

	if got := len(store.List()); got != 1 {
		t.Errorf("List() = %v items, want 1", got)
	}
}

func TestMemoryStore_SetStatusTransition(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("Widget", "http://a.example/w")

	tr, ok := store.SetStatus("Widget", "http://a.example/w", stock.OutOfStock)
	if !ok {
		t.Fatal("SetStatus() ok = false, want true")
	}
	if tr.Previous != stock.Unknown || tr.Current != stock.OutOfStock {
		t.Errorf("transition = %v -> %v, want unknown -> out_of_stock", tr.Previous, tr.Current)
	}
	if tr.Restocked() {
		t.Error("Restocked() = true, want false")
	}

	tr, _ = store.SetStatus("Widget", "http://a.example/w", stock.InStock)
	if tr.Previous != stock.OutOfStock || tr.Current != stock.InStock {
		t.Errorf("transition = %v -> %v, want out_of_stock -> in_stock", tr.Previous, tr.Current)
	}
	if !tr.Restocked() {
		t.Error("Restocked() = false, want true")
	}

	item, _ := store.Get("Widget", "http://a.example/w")
	if item.CheckedAt.IsZero() {
		t.Error("CheckedAt is zero after SetStatus")
	}
}

func TestMemoryStore_SetStatusMissing(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.SetStatus("ghost", "http://a.example/g", stock.InStock); ok {
		t.Error("SetStatus() ok = true for missing key, want false")
	}
	if got := len(store.List()); got != 0 {
		t.Errorf("List() = %v items, want 0", got)
	}
}

// TestMemoryStore_PreviousTracksLastCurrent checks that after every call the
// previous status equals the current status observed before the call.
func TestMemoryStore_PreviousTracksLastCurrent(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("Widget", "http://a.example/w")

	statuses := []stock.Status{stock.Unknown, stock.InStock, stock.OutOfStock, stock.FetchError}
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		before, _ := store.Get("Widget", "http://a.example/w")
		next := statuses[rng.Intn(len(statuses))]

		tr, _ := store.SetStatus("Widget", "http://a.example/w", next)
		after, _ := store.Get("Widget", "http://a.example/w")

		if after.PreviousStatus != before.Status {
			t.Fatalf("call %d: PreviousStatus = %v, want %v", i, after.PreviousStatus, before.Status)
		}
		if after.Status != next {
			t.Fatalf("call %d: Status = %v, want %v", i, after.Status, next)
		}
		if tr.Previous != before.Status || tr.Current != next {
			t.Fatalf("call %d: transition = %v -> %v, want %v -> %v", i, tr.Previous, tr.Current, before.Status, next)
		}
	}
}

func TestMemoryStore_Edit(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("a", "http://shop.example/a")
	store.Upsert("b", "http://shop.example/b")
	store.SetStatus("a", "http://shop.example/a", stock.InStock)

	// rename only keeps statuses
	if err := store.Edit(Key{Name: "a", URL: "http://shop.example/a"}, "a2", "http://shop.example/a"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	item, ok := store.Get("a2", "http://shop.example/a")
	if !ok {
		t.Fatal("Get() after rename ok = false")
	}
	if item.Status != stock.InStock {
		t.Errorf("Status = %v, want %v", item.Status, stock.InStock)
	}
	if all := store.List(); all[0].Name != "a2" {
		t.Errorf("List()[0].Name = %q, want a2", all[0].Name)
	}

	// url change resets statuses
	if err := store.Edit(Key{Name: "a2", URL: "http://shop.example/a"}, "a2", "http://shop.example/a-new"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	item, _ = store.Get("a2", "http://shop.example/a-new")
	if item.Status != stock.Unknown || item.PreviousStatus != stock.Unknown {
		t.Errorf("statuses = %v/%v, want unknown/unknown", item.Status, item.PreviousStatus)
	}
}

func TestMemoryStore_EditErrors(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("a", "http://shop.example/a")
	store.Upsert("b", "http://shop.example/b")

	err := store.Edit(Key{Name: "missing", URL: "http://shop.example/x"}, "x", "http://shop.example/x")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Edit() missing error = %v, want ErrNotFound", err)
	}

	err = store.Edit(Key{Name: "a", URL: "http://shop.example/a"}, "b", "http://shop.example/b")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Edit() collision error = %v, want ErrDuplicate", err)
	}
	if got := len(store.List()); got != 2 {
		t.Errorf("List() = %v items, want 2", got)
	}
}

func TestMemoryStore_Subscribe(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("Test", "http://a.example/t")

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	go func() {
		store.SetStatus("Test", "http://a.example/t", stock.InStock)
	}()

	select {
	case item := <-ch:
		if item.Name != "Test" {
			t.Errorf("received Name = %v, want %v", item.Name, "Test")
		}
		if item.Status != stock.InStock {
			t.Errorf("received Status = %v, want %v", item.Status, stock.InStock)
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive update")
	}
}

func TestMemoryStore_SubscribeRemovals(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("A", "http://a.example/a")
	store.Upsert("B", "http://a.example/b")

	ch := store.Subscribe()
	defer store.Unsubscribe(ch)

	store.Remove("A", "http://a.example/a")
	store.Remove("missing", "http://a.example/x")
	if err := store.Edit(Key{Name: "B", URL: "http://a.example/b"}, "B2", "http://a.example/b"); err != nil {
		t.Fatalf("Edit() error = %v", err)
	}

	want := []struct {
		name    string
		removed bool
	}{
		{"A", true},
		{"B", true},
		{"B2", false},
	}
	for i, w := range want {
		select {
		case got := <-ch:
			if got.Name != w.name || got.Removed != w.removed {
				t.Errorf("event %d = (%s, removed=%v), want (%s, removed=%v)", i, got.Name, got.Removed, w.name, w.removed)
			}
		case <-time.After(time.Second):
			t.Fatalf("event %d not received", i)
		}
	}

	select {
	case extra := <-ch:
		t.Errorf("unexpected event %+v", extra)
	default:
	}

	for _, it := range store.List() {
		if it.Removed {
			t.Errorf("List() item %q marked removed", it.Name)
		}
	}
}

func TestMemoryStore_Unsubscribe(t *testing.T) {
	store := NewMemoryStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)
	store.Unsubscribe(ch)

	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}
}

func TestMemoryStore_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("Test", "http://a.example/t")

	// never read
	_ = store.Subscribe()

	done := make(chan bool)
	go func() {
		for i := 0; i < 500; i++ {
			store.SetStatus("Test", "http://a.example/t", stock.OutOfStock)
		}
		done <- true
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("SetStatus() blocked on slow subscriber")
	}
}

// TestMemoryStore_ConcurrentReadersSeeWholeItems runs writers flipping an item
// between two consistent states while readers check they never see a mix.
func TestMemoryStore_ConcurrentReadersSeeWholeItems(t *testing.T) {
	store := NewMemoryStore()
	store.Upsert("Widget", "http://a.example/w")
	store.SetStatus("Widget", "http://a.example/w", stock.OutOfStock)

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		next := stock.InStock
		for {
			select {
			case <-stop:
				return
			default:
			}
			store.SetStatus("Widget", "http://a.example/w", next)
			if next == stock.InStock {
				next = stock.OutOfStock
			} else {
				next = stock.InStock
			}
		}
	}()

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 2000; j++ {
				for _, item := range store.List() {
					if item.Status == item.PreviousStatus {
						t.Errorf("torn read: status and previous both %v", item.Status)
						return
					}
				}
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				store.Upsert("API", "http://a.example/api")
				store.SetStatus("API", "http://a.example/api", stock.InStock)
				_ = store.List()
				store.Remove("API", "http://a.example/api")
			}
		}()
	}

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()

	if got := len(store.List()); got > 1 {
		t.Errorf("List() = %v items, want at most 1", got)
	}
}
