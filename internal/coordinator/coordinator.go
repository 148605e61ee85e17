package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jalvrz/go-sos-relay/internal/connectivity"
	"github.com/jalvrz/go-sos-relay/internal/gateway"
	"github.com/jalvrz/go-sos-relay/internal/models"
	"github.com/jalvrz/go-sos-relay/internal/queue"
	"github.com/jalvrz/go-sos-relay/internal/worker"
)

type SubmitStatus string

const (
	// StatusDelivered means the server acknowledged the report during submit.
	StatusDelivered SubmitStatus = "delivered"
	// StatusQueued means the report is durably stored and will be retried.
	// Once a report is queued, transient send failures are never surfaced
	// as user-facing errors.
	StatusQueued SubmitStatus = "queued"
)

type SubmitResult struct {
	LocalID string       `json:"local_id"`
	Status  SubmitStatus `json:"status"`
	Message string       `json:"message"`
}

// Connectivity is the slice of the monitor the coordinator needs.
type Connectivity interface {
	State() connectivity.State
	Subscribe() (uint64, chan connectivity.Event)
	Unsubscribe(id uint64)
}

// Coordinator drives the create -> send -> ack / retry -> drain lifecycle.
// It is the single writer of queue state transitions.
type Coordinator struct {
	queue       queue.Queue
	gw          gateway.Gateway
	conn        Connectivity
	tasks       *worker.Pool
	sendTimeout time.Duration

	// At most one drain pass runs at a time; triggers that land while a
	// pass is active are coalesced into a no-op.
	draining  atomic.Bool
	delivered atomic.Int64

	wg sync.WaitGroup
}

func New(q queue.Queue, gw gateway.Gateway, conn Connectivity, tasks *worker.Pool, sendTimeout time.Duration) *Coordinator {
	return &Coordinator{
		queue:       q,
		gw:          gw,
		conn:        conn,
		tasks:       tasks,
		sendTimeout: sendTimeout,
	}
}

// Submit validates and durably queues a report, then makes at most one
// immediate delivery attempt if the device is online. Append-before-send: a
// crash between creation and server ack never loses the report.
func (c *Coordinator) Submit(ctx context.Context, r *models.EmergencyReport) (*SubmitResult, error) {
	if r.LocalID == "" {
		r.LocalID = uuid.NewString()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	r.State = models.StatePending

	if err := r.Validate(); err != nil {
		return nil, err
	}

	if err := c.queue.Append(ctx, r); err != nil {
		// The durable copy failed, which the caller must hear about. The
		// in-memory report still gets one immediate send attempt so an
		// online device with a broken disk can deliver anyway.
		if c.conn.State() == connectivity.Online {
			if ack, sendErr := c.send(ctx, r); sendErr == nil {
				c.delivered.Add(1)
				slog.Warn("report delivered without durable copy", "local_id", r.LocalID, "call_id", ack.CallID)
				return &SubmitResult{LocalID: r.LocalID, Status: StatusDelivered, Message: "emergency call delivered"}, nil
			}
		}
		return nil, fmt.Errorf("failed to store report: %w", err)
	}

	c.resolveAddressLater(r)

	if c.conn.State() != connectivity.Online {
		slog.Info("report saved offline", "local_id", r.LocalID)
		return &SubmitResult{LocalID: r.LocalID, Status: StatusQueued, Message: "saved offline, will send when connected"}, nil
	}

	if err := c.queue.MarkInFlight(ctx, r.LocalID); err != nil {
		slog.Error("error marking report in flight", "local_id", r.LocalID, "error", err)
	}

	ack, err := c.send(ctx, r)
	if err != nil {
		if markErr := c.queue.MarkFailed(ctx, r.LocalID); markErr != nil {
			slog.Error("error marking report failed", "local_id", r.LocalID, "error", markErr)
		}
		slog.Warn("immediate send failed, report queued", "local_id", r.LocalID, "error", err)
		return &SubmitResult{LocalID: r.LocalID, Status: StatusQueued, Message: "saved, will retry"}, nil
	}

	if err := c.queue.Remove(ctx, r.LocalID); err != nil {
		slog.Error("error removing delivered report", "local_id", r.LocalID, "error", err)
	}
	c.delivered.Add(1)
	slog.Info("report delivered", "local_id", r.LocalID, "call_id", ack.CallID)
	return &SubmitResult{LocalID: r.LocalID, Status: StatusDelivered, Message: "emergency call delivered"}, nil
}

// Drain makes one pass over the pending snapshot, sending records
// sequentially oldest first. Failed records wait for the next trigger; there
// is no intra-pass retry, which bounds work under a flapping connection.
// Returns the number of records delivered in this pass.
func (c *Coordinator) Drain(ctx context.Context) int {
	if !c.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer c.draining.Store(false)

	pending, err := c.queue.ListPending(ctx)
	if err != nil {
		slog.Error("error listing pending reports", "error", err)
		return 0
	}
	if len(pending) == 0 {
		return 0
	}

	slog.Info("draining offline queue", "pending", len(pending))

	sent := 0
	for i := range pending {
		r := &pending[i]

		if err := c.queue.MarkInFlight(ctx, r.LocalID); err != nil {
			slog.Error("error marking report in flight", "local_id", r.LocalID, "error", err)
			continue
		}

		ack, err := c.send(ctx, r)
		if err != nil {
			if markErr := c.queue.MarkFailed(ctx, r.LocalID); markErr != nil {
				slog.Error("error marking report failed", "local_id", r.LocalID, "error", markErr)
			}
			slog.Warn("drain send failed", "local_id", r.LocalID, "retries", r.RetryCount+1, "error", err)
			continue
		}

		if err := c.queue.Remove(ctx, r.LocalID); err != nil {
			slog.Error("error removing delivered report", "local_id", r.LocalID, "error", err)
			continue
		}
		c.delivered.Add(1)
		sent++
		slog.Info("queued report delivered", "local_id", r.LocalID, "call_id", ack.CallID)
	}

	slog.Info("drain pass complete", "sent", sent, "remaining", len(pending)-sent)
	return sent
}

func (c *Coordinator) send(ctx context.Context, r *models.EmergencyReport) (*gateway.Ack, error) {
	sctx, cancel := context.WithTimeout(ctx, c.sendTimeout)
	defer cancel()
	return c.gw.SendReport(sctx, r)
}

// resolveAddressLater fills the display address in the background. Failures
// degrade to showing raw coordinates and never touch delivery.
func (c *Coordinator) resolveAddressLater(r *models.EmergencyReport) {
	if c.tasks == nil || r.Location == nil || r.LocationAddress != "" {
		return
	}

	localID := r.LocalID
	loc := *r.Location
	c.tasks.Submit(func(ctx context.Context) {
		addr, err := c.gw.ResolveAddress(ctx, loc.Latitude, loc.Longitude)
		if err != nil {
			slog.Debug("address lookup failed", "local_id", localID, "error", err)
			return
		}
		if err := c.queue.UpdateAddress(ctx, localID, addr); err != nil {
			slog.Debug("error updating address", "local_id", localID, "error", err)
		}
	})
}

// Run subscribes to connectivity transitions and triggers one drain per
// Online event. It blocks until ctx is cancelled or the monitor closes the
// subscription. If the device is already online at startup, one drain runs
// immediately to pick up records left over from a previous run.
func (c *Coordinator) Run(ctx context.Context) {
	id, events := c.conn.Subscribe()
	defer c.conn.Unsubscribe(id)

	if c.conn.State() == connectivity.Online {
		c.Drain(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.State == connectivity.Online {
				c.Drain(ctx)
			}
		}
	}
}

// Start runs the drain loop on its own goroutine; Stop waits for it.
func (c *Coordinator) Start(ctx context.Context) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Run(ctx)
	}()
}

func (c *Coordinator) Stop() {
	c.wg.Wait()
}

// Delivered reports how many acks this process has observed.
func (c *Coordinator) Delivered() int64 {
	return c.delivered.Load()
}
