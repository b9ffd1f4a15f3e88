package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "dailyremind/pkg/logx"
)

// LocalConfig controls the in-process dispatcher.
type LocalConfig struct {
	// Capacity caps outstanding requests, mirroring the pending-notification
	// ceiling of mobile platforms. Default 64.
	Capacity int
	// RatePerSec throttles deliveries so a backlog of simultaneous fire
	// times doesn't burst. Default 5.
	RatePerSec int
	// QueueSize bounds the delivery queue. Default 128.
	QueueSize int
}

func (c LocalConfig) withDefaults() LocalConfig {
	if c.Capacity <= 0 {
		c.Capacity = 64
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 5
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 128
	}
	return c
}

// Sink receives the user-visible side of a delivery (console line, Telegram
// message, ...). The Handler callback runs regardless of sink errors.
type Sink interface {
	Deliver(ctx context.Context, req Request) error
}

// Local is a timer-based Dispatcher. Each outstanding request owns one
// time.AfterFunc; per-ID version counters make callbacks from replaced or
// canceled timers harmless. Fired requests pass through a rate-limited
// delivery worker before reaching the sink and handler.
type Local struct {
	log logx.Logger
	cfg LocalConfig

	handler Handler
	sink    Sink

	mu      sync.Mutex
	timers  map[string]*time.Timer
	vers    map[string]uint64
	pending map[string]Request

	queue     chan Request
	limiter   *rate.Limiter
	runCtx    context.Context
	runCancel context.CancelFunc
	workerWG  sync.WaitGroup
}

func NewLocal(cfg LocalConfig, log logx.Logger) *Local {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Local{
		log:     log,
		cfg:     cfg,
		timers:  map[string]*time.Timer{},
		vers:    map[string]uint64{},
		pending: map[string]Request{},
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// SetHandler installs the callback target. Must be called before Start.
func (d *Local) SetHandler(h Handler) { d.handler = h }

// SetSink installs an optional delivery sink.
func (d *Local) SetSink(s Sink) { d.sink = s }

func (d *Local) Start(ctx context.Context) {
	d.mu.Lock()
	if d.queue != nil {
		d.mu.Unlock()
		return
	}
	d.queue = make(chan Request, d.cfg.QueueSize)
	d.runCtx, d.runCancel = context.WithCancel(ctx)
	d.mu.Unlock()

	d.workerWG.Add(1)
	go func() {
		defer d.workerWG.Done()
		d.deliveryLoop()
	}()
}

func (d *Local) Stop(ctx context.Context) {
	d.mu.Lock()
	cancel := d.runCancel
	d.runCancel = nil
	for id, t := range d.timers {
		_ = t.Stop()
		delete(d.timers, id)
		d.vers[id]++
	}
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		d.workerWG.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}

	d.mu.Lock()
	d.queue = nil
	d.runCtx = nil
	d.mu.Unlock()
}

// RequestPermission always grants: the local dispatcher has nothing to ask.
func (d *Local) RequestPermission(ctx context.Context) (bool, error) {
	_ = ctx
	return true, nil
}

func (d *Local) Schedule(ctx context.Context, req Request) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queue == nil {
		return ErrStopped
	}

	_, replacing := d.pending[req.ID]
	if !replacing && len(d.pending) >= d.cfg.Capacity {
		return ErrCapacity
	}

	// Upsert: stop the previous timer for this id and bump the version so a
	// stale callback from it is ignored.
	if t, ok := d.timers[req.ID]; ok {
		_ = t.Stop()
		delete(d.timers, req.ID)
	}
	d.vers[req.ID]++
	ver := d.vers[req.ID]
	d.pending[req.ID] = req

	delay := time.Until(req.FireAt)
	if delay < 0 {
		delay = 0
	}
	id := req.ID
	d.timers[id] = time.AfterFunc(delay, func() {
		d.fire(id, ver)
	})
	d.log.Debug("dispatch scheduled",
		logx.String("id", id),
		logx.Time("at", req.FireAt),
		logx.Int("outstanding", len(d.pending)))
	return nil
}

func (d *Local) Cancel(ctx context.Context, id string) error {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	if t, ok := d.timers[id]; ok {
		_ = t.Stop()
		delete(d.timers, id)
	}
	if _, ok := d.pending[id]; ok {
		delete(d.pending, id)
		d.vers[id]++
		d.log.Debug("dispatch canceled", logx.String("id", id))
	}
	return nil
}

func (d *Local) ListPending(ctx context.Context) ([]string, error) {
	_ = ctx
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.pending))
	for id := range d.pending {
		ids = append(ids, id)
	}
	return ids, nil
}

// Outstanding reports whether a request id is still scheduled.
func (d *Local) Outstanding(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[id]
	return ok
}

func (d *Local) fire(id string, ver uint64) {
	d.mu.Lock()
	// If the request was canceled or replaced, ignore this callback.
	if d.vers[id] != ver {
		d.mu.Unlock()
		return
	}
	req, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.pending, id)
	delete(d.timers, id)
	delete(d.vers, id)
	q := d.queue
	d.mu.Unlock()

	if q == nil {
		return
	}
	select {
	case q <- req:
	default:
		d.log.Warn("delivery queue full, dropping fire", logx.String("id", id))
	}
}

func (d *Local) deliveryLoop() {
	d.mu.Lock()
	q := d.queue
	ctx := d.runCtx
	d.mu.Unlock()
	if q == nil || ctx == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req := <-q:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			d.deliver(ctx, req)
		}
	}
}

func (d *Local) deliver(ctx context.Context, req Request) {
	if d.sink != nil {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		if err := d.sink.Deliver(sctx, req); err != nil {
			d.log.Warn("delivery sink failed", logx.String("id", req.ID), logx.Err(err))
		}
		cancel()
	}
	if d.handler != nil {
		d.handler.HandleFire(ctx, req.Payload)
	}
	d.log.Debug("dispatch fired", logx.String("id", req.ID))
}
