package prices

import (
	"context"
	"testing"
	"time"

	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/router"
)

func initial(prices map[string]float64) router.InitialPrices {
	return router.InitialPrices{Prices: prices, ReceivedAt: time.Now()}
}

func update(prices map[string]float64) router.PriceUpdate {
	return router.PriceUpdate{Prices: prices, ReceivedAt: time.Now()}
}

func newTestReconciler(t *testing.T, cfg Config) *Reconciler {
	t.Helper()
	r := New(cfg, nil)
	t.Cleanup(r.Stop)
	return r
}

func receiveChange(t *testing.T, q *router.Queue[model.PriceChange]) model.PriceChange {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	c, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("waiting for change event: %v", err)
	}
	return c
}

func TestReconciler_InitialSetsSnapshotAndBaseline(t *testing.T) {
	r := newTestReconciler(t, DefaultConfig())

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100, "TSLA": 250}))

	snap := r.Snapshot()
	base := r.Baseline()
	if len(snap) != 2 || snap["GOOG"] != 100 || snap["TSLA"] != 250 {
		t.Errorf("Snapshot = %v", snap)
	}
	if len(base) != 2 || base["GOOG"] != 100 || base["TSLA"] != 250 {
		t.Errorf("Baseline = %v", base)
	}
	if len(r.Flags()) != 0 {
		t.Errorf("Flags = %v, want none", r.Flags())
	}
}

func TestReconciler_BaselineKeptAcrossInitials(t *testing.T) {
	r := newTestReconciler(t, DefaultConfig())

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100, "TSLA": 250}))
	r.ApplyUpdate(update(map[string]float64{"GOOG": 120}))
	r.ApplyInitial(initial(map[string]float64{"GOOG": 130}))

	snap := r.Snapshot()
	if len(snap) != 1 || snap["GOOG"] != 130 {
		t.Errorf("Snapshot = %v, want {GOOG:130}", snap)
	}
	if _, ok := r.Price("TSLA"); ok {
		t.Error("TSLA should be gone after the second INITIAL_PRICES replaced the snapshot")
	}

	base := r.Baseline()
	if base["GOOG"] != 100 || base["TSLA"] != 250 {
		t.Errorf("Baseline = %v, want the first INITIAL_PRICES payload", base)
	}
}

func TestReconciler_UpdatesMerge(t *testing.T) {
	r := newTestReconciler(t, DefaultConfig())

	r.ApplyInitial(initial(map[string]float64{"A": 1, "B": 2}))
	r.ApplyUpdate(update(map[string]float64{"A": 3}))
	r.ApplyUpdate(update(map[string]float64{"C": 5}))
	r.ApplyUpdate(update(map[string]float64{"A": 4, "B": 1}))

	want := map[string]float64{"A": 4, "B": 1, "C": 5}
	snap := r.Snapshot()
	if len(snap) != len(want) {
		t.Fatalf("Snapshot = %v, want %v", snap, want)
	}
	for k, v := range want {
		if snap[k] != v {
			t.Errorf("Snapshot[%s] = %v, want %v", k, snap[k], v)
		}
	}

	base := r.Baseline()
	if len(base) != 2 || base["A"] != 1 || base["B"] != 2 {
		t.Errorf("Baseline = %v, want {A:1 B:2}", base)
	}
}

func TestReconciler_Flags(t *testing.T) {
	tests := []struct {
		name   string
		policy EqualPolicy
		seed   bool
		next   float64
		want   model.Direction
	}{
		{"up", EqualIsNone, true, 105, model.Up},
		{"down", EqualIsNone, true, 95, model.Down},
		{"equal is none", EqualIsNone, true, 100, model.None},
		{"equal is down", EqualIsDown, true, 100, model.Down},
		{"first sighting", EqualIsNone, false, 105, model.None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.EqualPolicy = tt.policy
			cfg.FlashWindow = time.Hour
			r := newTestReconciler(t, cfg)

			if tt.seed {
				r.ApplyInitial(initial(map[string]float64{"GOOG": 100}))
			}
			r.ApplyUpdate(update(map[string]float64{"GOOG": tt.next}))

			if got := r.Flag("GOOG"); got != tt.want {
				t.Errorf("Flag = %v, want %v", got, tt.want)
			}
			if _, present := r.Flags()["GOOG"]; present != (tt.want != model.None) {
				t.Errorf("Flags() = %v", r.Flags())
			}
			if p, _ := r.Price("GOOG"); p != tt.next {
				t.Errorf("Price = %v, want %v", p, tt.next)
			}
		})
	}
}

func TestReconciler_FlagsExpireTogether(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlashWindow = 50 * time.Millisecond
	r := newTestReconciler(t, cfg)
	q := r.Subscribe()

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100, "TSLA": 250}))
	q.Drain(0)

	start := time.Now()
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110, "TSLA": 240}))

	if r.Flag("GOOG") != model.Up || r.Flag("TSLA") != model.Down {
		t.Fatalf("Flags = %v", r.Flags())
	}

	// Two update events, then two expiry events.
	for i := 0; i < 2; i++ {
		if c := receiveChange(t, q); c.Kind != model.ChangeUpdate {
			t.Fatalf("event %d kind = %v, want update", i, c.Kind)
		}
	}
	var batch uint64
	for i := 0; i < 2; i++ {
		c := receiveChange(t, q)
		if c.Kind != model.ChangeExpired || c.Direction != model.None {
			t.Fatalf("event kind/direction = %v/%v, want expired/none", c.Kind, c.Direction)
		}
		if i > 0 && c.Batch != batch {
			t.Errorf("expiry batches differ: %d and %d", batch, c.Batch)
		}
		batch = c.Batch
	}

	if elapsed := time.Since(start); elapsed < cfg.FlashWindow {
		t.Errorf("flags expired after %v, want >= %v", elapsed, cfg.FlashWindow)
	}
	if len(r.Flags()) != 0 {
		t.Errorf("Flags = %v, want none", r.Flags())
	}

	time.Sleep(2 * cfg.FlashWindow)
	if c, ok := q.TryReceive(); ok {
		t.Errorf("unexpected event after expiry: %+v", c)
	}

	stats := r.Stats()
	if stats.FlagsSet != 2 || stats.FlagsExpired != 2 || stats.PendingTimers != 0 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestReconciler_NewerBatchOwnsFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlashWindow = time.Hour
	r := newTestReconciler(t, cfg)

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100, "TSLA": 250})) // batch 1
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110, "TSLA": 260}))  // batch 2
	r.ApplyUpdate(update(map[string]float64{"GOOG": 105}))               // batch 3

	r.expire(2)
	if got := r.Flag("GOOG"); got != model.Down {
		t.Errorf("GOOG flag after batch 2 expiry = %v, want down", got)
	}
	if got := r.Flag("TSLA"); got != model.None {
		t.Errorf("TSLA flag after batch 2 expiry = %v, want none", got)
	}

	r.expire(3)
	if got := r.Flag("GOOG"); got != model.None {
		t.Errorf("GOOG flag after batch 3 expiry = %v, want none", got)
	}

	// A second expiry of the same batch is a no-op.
	r.expire(3)
	if got := r.Stats().FlagsExpired; got != 2 {
		t.Errorf("FlagsExpired = %d, want 2", got)
	}
}

func TestReconciler_UnchangedPriceClearsEarlierFlag(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlashWindow = time.Hour
	r := newTestReconciler(t, cfg)

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100}))
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110}))
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110}))

	if got := r.Flag("GOOG"); got != model.None {
		t.Errorf("Flag = %v, want none", got)
	}
	if got := r.Stats().PendingTimers; got != 1 {
		t.Errorf("PendingTimers = %d, want 1", got)
	}
}

func TestReconciler_ChangeEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlashWindow = time.Hour
	r := newTestReconciler(t, cfg)
	q := r.Subscribe()

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100}))
	c := receiveChange(t, q)
	if c.Kind != model.ChangeInitial || c.Ticker != "GOOG" || c.Price != 100 || c.Batch != 1 {
		t.Errorf("initial event = %+v", c)
	}

	r.ApplyUpdate(update(map[string]float64{"GOOG": 90, "NVDA": 400}))
	got := map[string]model.PriceChange{}
	for i := 0; i < 2; i++ {
		c := receiveChange(t, q)
		got[c.Ticker] = c
	}

	goog := got["GOOG"]
	if goog.Kind != model.ChangeUpdate || !goog.HadPrev || goog.Previous != 100 || goog.Direction != model.Down {
		t.Errorf("GOOG event = %+v", goog)
	}
	nvda := got["NVDA"]
	if nvda.HadPrev || nvda.Direction != model.None || nvda.Price != 400 {
		t.Errorf("NVDA event = %+v", nvda)
	}
	if goog.ID == nvda.ID {
		t.Error("events should have distinct IDs")
	}
	if goog.Batch != 2 || nvda.Batch != 2 {
		t.Errorf("batches = %d/%d, want 2", goog.Batch, nvda.Batch)
	}
}

func TestReconciler_ResetCancelsTimers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FlashWindow = 20 * time.Millisecond
	r := newTestReconciler(t, cfg)
	q := r.Subscribe()

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100}))
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110}))
	r.Reset()
	q.Drain(0)

	time.Sleep(60 * time.Millisecond)
	if c, ok := q.TryReceive(); ok {
		t.Errorf("unexpected event after Reset: %+v", c)
	}
	if len(r.Snapshot()) != 0 || len(r.Baseline()) != 0 || len(r.Flags()) != 0 {
		t.Error("Reset should clear snapshot, baseline and flags")
	}

	r.ApplyInitial(initial(map[string]float64{"GOOG": 200}))
	if base := r.Baseline(); base["GOOG"] != 200 {
		t.Errorf("Baseline after Reset = %v, want {GOOG:200}", base)
	}
}

func TestReconciler_Stop(t *testing.T) {
	bus := router.NewBus(nil)
	r := New(DefaultConfig(), nil)
	r.Attach(bus)
	q := r.Subscribe()

	bus.Publish(initial(map[string]float64{"GOOG": 100}))
	r.Stop()
	r.Stop()

	if bus.Len(router.TypeInitialPrices) != 0 || bus.Len(router.TypePriceUpdate) != 0 {
		t.Error("Stop should detach from the source")
	}

	r.ApplyUpdate(update(map[string]float64{"GOOG": 110}))
	if p, _ := r.Price("GOOG"); p != 100 {
		t.Errorf("Price after Stop = %v, want 100", p)
	}

	q.Drain(0)
	if _, err := q.Receive(context.Background()); err != router.ErrQueueClosed {
		t.Errorf("Receive after Stop = %v, want ErrQueueClosed", err)
	}

	late := r.Subscribe()
	if _, err := late.Receive(context.Background()); err != router.ErrQueueClosed {
		t.Errorf("Subscribe after Stop should return a closed queue, got %v", err)
	}
}

func TestReconciler_AttachReplaces(t *testing.T) {
	bus := router.NewBus(nil)
	r := newTestReconciler(t, DefaultConfig())

	r.Attach(bus)
	r.Attach(bus)
	if n := bus.Len(router.TypePriceUpdate); n != 1 {
		t.Errorf("PRICE_UPDATE handlers = %d, want 1", n)
	}

	bus.Publish(initial(map[string]float64{"AMZN": 180}))
	bus.Publish(update(map[string]float64{"AMZN": 181}))
	if got := r.Flag("AMZN"); got != model.Up {
		t.Errorf("Flag = %v, want up", got)
	}

	r.Detach()
	if n := bus.Len(router.TypeInitialPrices); n != 0 {
		t.Errorf("INITIAL_PRICES handlers after Detach = %d, want 0", n)
	}
}

func TestReconciler_DayChange(t *testing.T) {
	r := newTestReconciler(t, DefaultConfig())

	r.ApplyInitial(initial(map[string]float64{"GOOG": 100, "ZERO": 0}))
	r.ApplyUpdate(update(map[string]float64{"GOOG": 110, "ZERO": 5, "META": 500}))

	tests := []struct {
		ticker string
		want   float64
		ok     bool
	}{
		{"GOOG", 10, true},
		{"ZERO", 0, false},
		{"META", 0, false},
		{"MISSING", 0, false},
	}

	for _, tt := range tests {
		got, ok := r.DayChange(tt.ticker)
		if ok != tt.ok {
			t.Errorf("DayChange(%s) ok = %v, want %v", tt.ticker, ok, tt.ok)
			continue
		}
		if ok && (got < tt.want-1e-9 || got > tt.want+1e-9) {
			t.Errorf("DayChange(%s) = %v, want %v", tt.ticker, got, tt.want)
		}
	}
}

func TestReconciler_ReadersGetCopies(t *testing.T) {
	r := newTestReconciler(t, DefaultConfig())
	r.ApplyInitial(initial(map[string]float64{"GOOG": 100}))

	snap := r.Snapshot()
	snap["GOOG"] = 1
	base := r.Baseline()
	base["GOOG"] = 1
	flags := r.Flags()
	flags["GOOG"] = model.Up

	if p, _ := r.Price("GOOG"); p != 100 {
		t.Errorf("Price = %v, want 100", p)
	}
	if b := r.Baseline(); b["GOOG"] != 100 {
		t.Errorf("Baseline = %v", b)
	}
	if f := r.Flag("GOOG"); f != model.None {
		t.Errorf("Flag = %v, want none", f)
	}
}

func TestParseEqualPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    EqualPolicy
		wantErr bool
	}{
		{"", EqualIsNone, false},
		{"none", EqualIsNone, false},
		{"DOWN", EqualIsDown, false},
		{" down ", EqualIsDown, false},
		{"up", EqualIsNone, true},
	}

	for _, tt := range tests {
		got, err := ParseEqualPolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseEqualPolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseEqualPolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPercentChange(t *testing.T) {
	if got, ok := PercentChange(110, 100); !ok || got != 10 {
		t.Errorf("PercentChange(110, 100) = %v, %v, want 10, true", got, ok)
	}
	if _, ok := PercentChange(5, 0); ok {
		t.Error("PercentChange with a zero baseline reported ok")
	}
}
