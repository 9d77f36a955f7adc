package main

import (
	"context"
	"sync"

	"lkas-service/safety"

	"github.com/go-redis/redis/v8"
)

const (
	diagGroupName           = "lkas"
	diagFaultSetKey         = "lkas:fault"
	diagEventStream         = "events:faults"
	diagEventStreamMaxLen   = 1000
	diagNotificationChannel = "lkas"
)

// Diag mirrors active safety violations into the shared fault set and
// event stream. Only presence changes reach Redis.
type Diag struct {
	log         *LeveledLogger
	redis       *redis.Client
	mu          sync.RWMutex
	faultStates map[safety.Violation]bool
	queue       *ipcQueue
}

func NewDiag(logger *LeveledLogger, redis *redis.Client) *Diag {
	return &Diag{
		log:         logger,
		redis:       redis,
		faultStates: make(map[safety.Violation]bool),
		queue:       newIPCQueue(logger, ipcQueueSize),
	}
}

func (d *Diag) Destroy() {
	d.queue.Close()
}

func (d *Diag) SetFaultPresence(fault safety.Violation, present bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fault == safety.ViolationNone {
		return
	}
	d.setLocked(fault, present)
}

func (d *Diag) setLocked(fault safety.Violation, present bool) {
	if d.faultStates[fault] == present {
		return
	}
	d.faultStates[fault] = present

	config, ok := safety.GetViolationConfig(fault)
	if !ok {
		d.log.Warn("Unknown fault code: %d", fault)
		return
	}

	if present {
		d.log.Warn("Fault set: code=%d, description=%s", fault, config.Description)
		d.reportFaultPresent(fault, config)
	} else {
		d.log.Info("Fault cleared: code=%d, description=%s", fault, config.Description)
		d.reportFaultAbsent(fault)
	}
}

func (d *Diag) reportFaultPresent(fault safety.Violation, config safety.ViolationConfig) {
	d.report("report fault present", func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SAdd(ctx, diagFaultSetKey, uint32(fault))

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: diagEventStream,
			MaxLen: diagEventStreamMaxLen,
			Values: map[string]interface{}{
				"group":       diagGroupName,
				"code":        uint32(fault),
				"description": config.Description,
				"severity":    map[safety.Severity]string{safety.SeverityWarning: "warning", safety.SeverityCritical: "critical"}[config.Severity],
			},
		})
	})
}

func (d *Diag) reportFaultAbsent(fault safety.Violation) {
	d.report("report fault absent", func(ctx context.Context, pipe redis.Pipeliner) {
		pipe.SRem(ctx, diagFaultSetKey, uint32(fault))

		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: diagEventStream,
			MaxLen: diagEventStreamMaxLen,
			Values: map[string]interface{}{
				"group": diagGroupName,
				"code":  -int32(fault),
			},
		})
	})
}

// report queues one fault pipeline followed by the notification.
func (d *Diag) report(name string, build func(ctx context.Context, pipe redis.Pipeliner)) {
	if d.redis == nil {
		return
	}
	err := d.queue.Enqueue(name, func(ctx context.Context) error {
		pipe := d.redis.Pipeline()
		build(ctx, pipe)
		pipe.Publish(ctx, diagNotificationChannel, "fault")
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		d.log.Error("Failed to %s: %v", name, err)
	}
}
