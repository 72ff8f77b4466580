package prices

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rickgao/pricefeed/internal/model"
	"github.com/rickgao/pricefeed/internal/router"
)

// Source is anything the reconciler can register feed handlers on.
// connection.Manager and *router.Bus both satisfy it.
type Source interface {
	On(msgType string, handler router.Handler) *router.Subscription
}

// Stats contains runtime statistics.
type Stats struct {
	Tickers       int   // Tickers in the snapshot
	Initials      int64 // INITIAL_PRICES batches applied
	Updates       int64 // PRICE_UPDATE batches applied
	FlagsSet      int64 // Up/Down flags raised
	FlagsExpired  int64 // Flags reverted by their batch timer
	ActiveFlags   int
	PendingTimers int
	Subscribers   int
}

// flagEntry is a raised flag and the batch that owns it.
type flagEntry struct {
	dir   model.Direction
	batch uint64
}

// Reconciler maintains the price snapshot, baseline and change flags.
type Reconciler struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.RWMutex
	snapshot    map[string]float64
	baseline    map[string]float64
	hasBaseline bool
	flags       map[string]flagEntry
	batch       uint64
	timers      map[uint64]*time.Timer
	subs        []*router.Subscription
	watchers    []*router.Queue[model.PriceChange]
	stopped     bool

	// Stats
	initials     int64
	updates      int64
	flagsSet     int64
	flagsExpired int64
}

// New creates a Reconciler with an empty snapshot and no baseline.
func New(cfg Config, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FlashWindow <= 0 {
		cfg.FlashWindow = DefaultConfig().FlashWindow
	}

	return &Reconciler{
		cfg:      cfg,
		logger:   logger,
		snapshot: make(map[string]float64),
		baseline: make(map[string]float64),
		flags:    make(map[string]flagEntry),
		timers:   make(map[uint64]*time.Timer),
	}
}

// Attach registers the reconciler's handlers on src, replacing any earlier
// registrations it made.
func (r *Reconciler) Attach(src Source) {
	r.Detach()

	subs := []*router.Subscription{
		src.On(router.TypeInitialPrices, r.handle),
		src.On(router.TypePriceUpdate, r.handle),
	}

	r.mu.Lock()
	r.subs = subs
	r.mu.Unlock()
}

// Detach removes the handlers registered by Attach.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	subs := r.subs
	r.subs = nil
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Off()
	}
}

func (r *Reconciler) handle(msg router.Message) {
	switch m := msg.(type) {
	case router.InitialPrices:
		r.ApplyInitial(m)
	case router.PriceUpdate:
		r.ApplyUpdate(m)
	}
}

// ApplyInitial replaces the snapshot with msg's prices and, when no baseline
// is held, captures them as the baseline.
func (r *Reconciler) ApplyInitial(msg router.InitialPrices) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	r.batch++
	r.initials++
	r.snapshot = copyPrices(msg.Prices)

	captured := false
	if !r.hasBaseline {
		r.baseline = copyPrices(msg.Prices)
		r.hasBaseline = true
		captured = true
	}

	at := msg.ReceivedAt.UnixMicro()
	for ticker, price := range msg.Prices {
		r.publish(model.PriceChange{
			ID:         uuid.New(),
			Batch:      r.batch,
			Kind:       model.ChangeInitial,
			Ticker:     ticker,
			Price:      price,
			Direction:  r.flags[ticker].dir,
			ReceivedAt: at,
		})
	}

	r.logger.Debug("applied initial prices",
		"batch", r.batch,
		"tickers", len(msg.Prices),
		"baseline_captured", captured,
	)
}

// ApplyUpdate merges msg's prices into the snapshot and raises a change flag
// for every ticker that moved. The batch's flags revert to None together
// after FlashWindow.
func (r *Reconciler) ApplyUpdate(msg router.PriceUpdate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}

	r.batch++
	r.updates++
	batch := r.batch
	at := msg.ReceivedAt.UnixMicro()

	// Compare against the pre-update snapshot before merging anything.
	changes := make([]model.PriceChange, 0, len(msg.Prices))
	raised := 0
	for ticker, price := range msg.Prices {
		prev, known := r.snapshot[ticker]
		dir := r.direction(prev, price, known)

		if dir == model.None {
			delete(r.flags, ticker)
		} else {
			r.flags[ticker] = flagEntry{dir: dir, batch: batch}
			raised++
		}

		changes = append(changes, model.PriceChange{
			ID:         uuid.New(),
			Batch:      batch,
			Kind:       model.ChangeUpdate,
			Ticker:     ticker,
			Price:      price,
			Previous:   prev,
			HadPrev:    known,
			Direction:  dir,
			ReceivedAt: at,
		})
	}

	for ticker, price := range msg.Prices {
		r.snapshot[ticker] = price
	}

	for _, c := range changes {
		r.publish(c)
	}

	if raised > 0 {
		r.flagsSet += int64(raised)
		r.timers[batch] = time.AfterFunc(r.cfg.FlashWindow, func() {
			r.expire(batch)
		})
	}
}

// direction computes the flag for a ticker moving from prev to next.
func (r *Reconciler) direction(prev, next float64, known bool) model.Direction {
	if !known {
		return model.None
	}
	switch {
	case next > prev:
		return model.Up
	case next < prev:
		return model.Down
	case r.cfg.EqualPolicy == EqualIsDown:
		return model.Down
	}
	return model.None
}

// expire reverts the flags still owned by batch.
func (r *Reconciler) expire(batch uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.timers[batch]; !ok {
		// Cancelled by Reset or Stop.
		return
	}
	delete(r.timers, batch)

	now := time.Now().UnixMicro()
	for ticker, f := range r.flags {
		if f.batch != batch {
			continue
		}
		delete(r.flags, ticker)
		r.flagsExpired++
		r.publish(model.PriceChange{
			ID:         uuid.New(),
			Batch:      batch,
			Kind:       model.ChangeExpired,
			Ticker:     ticker,
			Price:      r.snapshot[ticker],
			Direction:  model.None,
			ReceivedAt: now,
		})
	}
}

// publish fans an event out to subscribers. Must be called with mu held.
func (r *Reconciler) publish(c model.PriceChange) {
	for _, q := range r.watchers {
		q.Send(c)
	}
}

// Snapshot returns a copy of the latest known prices.
func (r *Reconciler) Snapshot() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyPrices(r.snapshot)
}

// Baseline returns a copy of the baseline prices. It is empty until the first
// INITIAL_PRICES arrives.
func (r *Reconciler) Baseline() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return copyPrices(r.baseline)
}

// Price returns the latest price of ticker. ok is false when no price has
// been received for it yet.
func (r *Reconciler) Price(ticker string) (price float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	price, ok = r.snapshot[ticker]
	return price, ok
}

// Flag returns the current change flag of ticker.
func (r *Reconciler) Flag(ticker string) model.Direction {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.flags[ticker].dir
}

// Flags returns a copy of every raised flag. Tickers without a flag are
// absent.
func (r *Reconciler) Flags() map[string]model.Direction {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]model.Direction, len(r.flags))
	for ticker, f := range r.flags {
		out[ticker] = f.dir
	}
	return out
}

// DayChange returns the percentage move of ticker against its baseline. ok
// is false when either price is missing or the baseline is zero.
func (r *Reconciler) DayChange(ticker string) (pct float64, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cur, ok1 := r.snapshot[ticker]
	base, ok2 := r.baseline[ticker]
	if !ok1 || !ok2 {
		return 0, false
	}
	return PercentChange(cur, base)
}

// PercentChange returns the move from baseline to current in percent. ok is
// false when baseline is zero.
func PercentChange(current, baseline float64) (pct float64, ok bool) {
	if baseline == 0 {
		return 0, false
	}
	return (current - baseline) / baseline * 100, true
}

// Subscribe returns a queue receiving every subsequent change event. Sends
// never block the feed; the queue grows as needed and is closed by Stop.
func (r *Reconciler) Subscribe() *router.Queue[model.PriceChange] {
	q := router.NewQueue[model.PriceChange](64)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		q.Close()
		return q
	}
	r.watchers = append(r.watchers, q)
	return q
}

// Reset clears the snapshot, baseline and flags and cancels pending flag
// timers. The next INITIAL_PRICES captures a new baseline.
func (r *Reconciler) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cancelTimers()
	r.snapshot = make(map[string]float64)
	r.baseline = make(map[string]float64)
	r.hasBaseline = false
	r.flags = make(map[string]flagEntry)

	r.logger.Debug("reconciler reset")
}

// Stop detaches from the source, cancels pending flag timers and closes
// every subscriber queue. Reads keep working on the final state.
func (r *Reconciler) Stop() {
	r.Detach()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.stopped {
		return
	}
	r.stopped = true
	r.cancelTimers()
	for _, q := range r.watchers {
		q.Close()
	}
	r.watchers = nil
}

// Stats returns current statistics.
func (r *Reconciler) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return Stats{
		Tickers:       len(r.snapshot),
		Initials:      r.initials,
		Updates:       r.updates,
		FlagsSet:      r.flagsSet,
		FlagsExpired:  r.flagsExpired,
		ActiveFlags:   len(r.flags),
		PendingTimers: len(r.timers),
		Subscribers:   len(r.watchers),
	}
}

// cancelTimers stops every pending flag timer. Must be called with mu held.
func (r *Reconciler) cancelTimers() {
	for batch, t := range r.timers {
		t.Stop()
		delete(r.timers, batch)
	}
}

func copyPrices(src map[string]float64) map[string]float64 {
	dst := make(map[string]float64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
