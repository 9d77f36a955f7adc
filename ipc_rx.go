package main

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"lkas-service/gwm"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

const (
	ipcRxControlKey   = "lkas-control"
	ipcRxResetPayload = "safety-reset"

	// A planner request older than this is treated as disabled
	ControlRequestTimeout = 500 * time.Millisecond
)

// ControlInput holds the latest planner request
type ControlInput struct {
	mu      sync.Mutex
	cc      gwm.CarControl
	updated time.Time
	timeout time.Duration
}

func NewControlInput(timeout time.Duration) *ControlInput {
	return &ControlInput{timeout: timeout}
}

func (c *ControlInput) Set(cc gwm.CarControl, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cc = cc
	c.updated = now
}

// Get returns the request, disabled once it has gone stale.
func (c *ControlInput) Get(now time.Time) gwm.CarControl {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.updated.IsZero() || now.Sub(c.updated) > c.timeout {
		return gwm.CarControl{}
	}
	return c.cc
}

// parseControlRequest reads the planner hash. A missing enabled field means
// disabled and a missing torque means zero. Torque must be a finite value in
// -1..1.
func parseControlRequest(fields map[string]string) (gwm.CarControl, error) {
	var cc gwm.CarControl

	if v, ok := fields["enabled"]; ok {
		switch strings.ToLower(v) {
		case "on", "true", "1":
			cc.Enabled = true
		case "off", "false", "0", "":
		default:
			return gwm.CarControl{}, errors.Errorf("invalid enabled value %q", v)
		}
	}

	if v, ok := fields["torque"]; ok && v != "" {
		torque, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return gwm.CarControl{}, errors.Wrapf(err, "invalid torque %q", v)
		}
		if math.IsNaN(torque) || math.Abs(torque) > 1 {
			return gwm.CarControl{}, errors.Errorf("torque %q outside -1..1", v)
		}
		cc.Torque = torque
	}

	return cc, nil
}

type IPCRx struct {
	log     *LeveledLogger
	redis   *redis.Client
	control *ControlInput
	onReset func()
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc

	controlSubscription *redis.PubSub
}

func NewIPCRx(logger *LeveledLogger, redis *redis.Client, control *ControlInput, onReset func()) *IPCRx {
	ctx, cancel := context.WithCancel(context.Background())

	rx := &IPCRx{
		log:     logger,
		redis:   redis,
		control: control,
		onReset: onReset,
		ctx:     ctx,
		cancel:  cancel,
	}

	rx.controlSubscription = rx.redis.Subscribe(rx.ctx, ipcRxControlKey)
	go rx.handleControlSubscription()

	rx.readControl()

	return rx
}

func (rx *IPCRx) handleControlSubscription() {
	rx.log.Info("Starting control subscription handler")

	for {
		msg, err := rx.controlSubscription.Receive(rx.ctx)
		if err != nil {
			if err == context.Canceled {
				return
			}
			// Check for closed client - panic to trigger systemd restart
			if err.Error() == "redis: client is closed" {
				rx.log.Error("Redis connection lost on control subscription - restarting service")
				panic("Redis disconnected")
			}
			rx.log.Error("Control subscription error: %v", err)
			continue
		}

		switch m := msg.(type) {
		case *redis.Message:
			rx.log.Debug("Control message received: channel=%s, payload=%s", m.Channel, m.Payload)

			if m.Payload == ipcRxResetPayload {
				rx.log.Info("Safety reset requested")
				if rx.onReset != nil {
					rx.onReset()
				}
				continue
			}

			rx.readControl()

		case *redis.Subscription:
			rx.log.Debug("Control subscription event: %s %s", m.Channel, m.Kind)
		}
	}
}

func (rx *IPCRx) readControl() {
	fields, err := rx.redis.HGetAll(rx.ctx, ipcRxControlKey).Result()
	if err != nil && err != redis.Nil {
		rx.log.Error("Failed to read control request: %v", err)
		return
	}

	cc, err := parseControlRequest(fields)
	if err != nil {
		rx.log.Warn("Ignoring control request: %v", err)
		return
	}

	rx.control.Set(cc, time.Now())
}

func (rx *IPCRx) Destroy() {
	rx.mu.Lock()
	defer rx.mu.Unlock()

	if rx.cancel != nil {
		rx.cancel()
	}

	if rx.controlSubscription != nil {
		rx.controlSubscription.Close()
	}
}
