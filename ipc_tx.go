package main

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	ipcCarStateKey = "lkas-car-state"
	ipcLKASKey     = "lkas"

	ipcQueueSize = 256
)

type ipcJob struct {
	name string
	fn   func(ctx context.Context) error
}

// ipcQueue runs Redis writes on a single goroutine in submission order.
// Enqueue never blocks; a full queue drops the write.
type ipcQueue struct {
	log     *LeveledLogger
	jobs    chan ipcJob
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	dropped uint64
}

func newIPCQueue(logger *LeveledLogger, size int) *ipcQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &ipcQueue{
		log:    logger,
		jobs:   make(chan ipcJob, size),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *ipcQueue) run() {
	defer close(q.done)

	for {
		select {
		case <-q.ctx.Done():
			return
		case job := <-q.jobs:
			if err := job.fn(q.ctx); err != nil {
				q.log.Error("Failed to %s: %v", job.name, err)
			}
		}
	}
}

func (q *ipcQueue) Enqueue(name string, fn func(ctx context.Context) error) error {
	select {
	case q.jobs <- ipcJob{name: name, fn: fn}:
		return nil
	default:
		n := atomic.AddUint64(&q.dropped, 1)
		return errors.Errorf("ipc queue full, dropped %s (%d dropped)", name, n)
	}
}

// Dropped returns how many writes were discarded because the queue was full.
func (q *ipcQueue) Dropped() uint64 {
	return atomic.LoadUint64(&q.dropped)
}

// Close stops the worker. Writes still queued are discarded.
func (q *ipcQueue) Close() {
	q.cancel()
	<-q.done
}

type IPCTx struct {
	log   *LeveledLogger
	redis *redis.Client
	queue *ipcQueue
}

func NewIPCTx(logger *LeveledLogger, redis *redis.Client) *IPCTx {
	return &IPCTx{
		log:   logger,
		redis: redis,
		queue: newIPCQueue(logger, ipcQueueSize),
	}
}

func (tx *IPCTx) Destroy() {
	tx.queue.Close()
	if n := tx.queue.Dropped(); n > 0 {
		tx.log.Warn("%d Redis writes dropped on a full queue", n)
	}
}

// SendCarState writes the decoded vehicle state. Subscribers are notified
// only when notify is set, which the caller does on gear or cruise changes.
func (tx *IPCTx) SendCarState(data RedisCarState, notify bool) error {
	fields := map[string]interface{}{
		"speed":            fmt.Sprintf("%.2f", data.Speed),
		"raw-speed":        fmt.Sprintf("%.2f", data.RawSpeed),
		"gear":             data.Gear,
		"steering-angle":   fmt.Sprintf("%.1f", data.SteeringAngle),
		"steering-torque":  fmt.Sprintf("%.0f", data.SteeringTorque),
		"steering-pressed": onOff(data.SteeringPressed),
		"gas":              fmt.Sprintf("%.3f", data.Gas),
		"gas-pressed":      onOff(data.GasPressed),
		"brake":            fmt.Sprintf("%.3f", data.Brake),
		"brake-pressed":    onOff(data.BrakePressed),
		"cruise":           onOff(data.CruiseEnabled),
		"cruise-available": onOff(data.CruiseAvailable),
		"cruise-speed":     fmt.Sprintf("%.1f", data.CruiseSpeed),
		"blinker-left":     onOff(data.LeftBlinker),
		"blinker-right":    onOff(data.RightBlinker),
		"door":             map[bool]string{true: "open", false: "closed"}[data.DoorOpen],
		"seatbelt":         map[bool]string{true: "unlatched", false: "latched"}[data.SeatbeltUnlatched],
		"can-valid":        map[bool]string{true: "valid", false: "invalid"}[data.CanValid],
	}

	return tx.queue.Enqueue("send car state", func(ctx context.Context) error {
		pipe := tx.redis.Pipeline()

		pipe.HSet(ctx, ipcCarStateKey, fields)

		if notify {
			pipe.Publish(ctx, ipcCarStateKey, "state")
		}

		_, err := pipe.Exec(ctx)
		return err
	})
}

func (tx *IPCTx) SendSteerStatus(data RedisSteerStatus) error {
	return tx.queue.Enqueue("send steer status", func(ctx context.Context) error {
		return tx.redis.HSet(ctx, ipcLKASKey,
			"steer-torque", data.Torque,
			"steer-request", onOff(data.Request),
			"counter", data.Counter,
			"vetoed", map[bool]string{true: "yes", false: "no"}[data.Vetoed],
			"violation", data.Violation,
		).Err()
	})
}

func (tx *IPCTx) SendSafetyStatus(data RedisSafetyStatus) error {
	return tx.queue.Enqueue("send safety status", func(ctx context.Context) error {
		return tx.redis.HSet(ctx, ipcLKASKey,
			"override", onOff(data.Override),
			"frames-accepted", data.Accepted,
			"frames-vetoed", data.Vetoed,
			"frames-dropped", data.Dropped,
		).Err()
	})
}

func (tx *IPCTx) SendEngagement(data RedisEngagement) error {
	return tx.queue.Enqueue("send engagement", func(ctx context.Context) error {
		pipe := tx.redis.Pipeline()

		pipe.HSet(ctx, ipcLKASKey,
			"available", onOff(data.Available),
			"reason-off", data.ReasonOff.String(),
		)

		// Also publish reason off changes
		pipe.Publish(ctx, ipcLKASKey, "reason-off")

		_, err := pipe.Exec(ctx)
		return err
	})
}

func (tx *IPCTx) SendButtonEvent(button string) error {
	return tx.queue.Enqueue("publish button "+button, func(ctx context.Context) error {
		return tx.redis.Publish(ctx, "lkas-buttons", button).Err()
	})
}

func (tx *IPCTx) SendSessionID(id string) error {
	return tx.queue.Enqueue("send session id", func(ctx context.Context) error {
		return tx.redis.HSet(ctx, ipcLKASKey, "session-id", id).Err()
	})
}
