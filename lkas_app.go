package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"lkas-service/gwm"
	"lkas-service/safety"

	"github.com/brutella/can"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	// Car state is mirrored to Redis at this rate regardless of cycle rate
	LKASAppStateRate = 10
)

type LKASApp struct {
	log        *LeveledLogger
	opts       *Options
	redis      *redis.Client
	ipcRx      *IPCRx
	ipcTx      *IPCTx
	diag       *Diag
	engagement *Engagement
	control    *ControlInput
	car        *gwm.CarInterface
	monitor    *safety.Monitor
	ptParser   *gwm.Parser
	camParser  *gwm.Parser
	ptBus      *can.Bus
	camBus     *can.Bus
	sessionID  string
	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	cycles        uint64
	stateEvery    uint64
	lastGear      gwm.Gear
	lastCruise    bool
	lastViolation safety.Violation
}

// writeDefaultRedisState writes default values to Redis
func (app *LKASApp) writeDefaultRedisState() {
	app.mu.Lock()
	defer app.mu.Unlock()

	if err := app.ipcTx.SendCarState(RedisCarState{Gear: gwm.GearUnknown.String()}, false); err != nil {
		app.log.Error("Failed to send default car state: %v", err)
	}

	if err := app.ipcTx.SendSteerStatus(RedisSteerStatus{}); err != nil {
		app.log.Error("Failed to send default steer status: %v", err)
	}

	if err := app.ipcTx.SendSafetyStatus(RedisSafetyStatus{}); err != nil {
		app.log.Error("Failed to send default safety status: %v", err)
	}

	app.log.Info("Default Redis state written")
}

func NewLKASApp(opts *Options) (*LKASApp, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &LKASApp{
		log:    NewLeveledLogger(log.New(log.Writer(), fmt.Sprintf("LKAS: %s ", ProjectName), log.LstdFlags), opts.LogLevel),
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
	}

	app.stateEvery = uint64(opts.CycleRate / LKASAppStateRate)
	if app.stateEvery == 0 {
		app.stateEvery = 1
	}

	// Initialize Redis client with timeouts
	app.redis = redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", opts.RedisServerAddr, opts.RedisServerPort),
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	// Test Redis connection with timeout
	connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
	defer connectCancel()

	app.log.Info("Connecting to Redis at %s:%d...", opts.RedisServerAddr, opts.RedisServerPort)

	if err := app.redis.Ping(connectCtx).Err(); err != nil {
		app.Destroy()
		return nil, errors.Wrap(err, "failed to connect to Redis")
	}
	app.log.Info("Successfully connected to Redis")

	app.ipcTx = NewIPCTx(app.log.Named("ipc-tx"), app.redis)
	app.log.Info("IPC TX component initialized")

	app.sessionID = uuid.New().String()
	if err := app.ipcTx.SendSessionID(app.sessionID); err != nil {
		app.log.Error("Failed to send session id: %v", err)
	}
	app.log.Info("Session %s", app.sessionID)

	app.writeDefaultRedisState()

	// Start health check goroutine
	app.wg.Add(1)
	go app.redisHealthCheck()

	app.diag = NewDiag(app.log.Named("diag"), app.redis)
	app.log.Info("Diagnostics component initialized")

	app.engagement = NewEngagement(app.log.Named("engagement"), app.ipcTx, opts.Profile.SteerLimitTimer)
	app.control = NewControlInput(ControlRequestTimeout)

	app.car = gwm.NewCarInterface(gwm.CarConfig{
		Logger:  app.log.Named("gwm"),
		Profile: opts.Profile,
	})
	app.car.SetCycleTime(opts.CyclePeriod())

	app.monitor = safety.NewMonitor(opts.Profile.Limits, safety.WithLogger(app.log.Named("safety")))
	app.monitor.Reset()

	app.ptParser = gwm.NewParser(gwm.BusPowertrain)
	app.camParser = gwm.NewParser(gwm.BusCamera)

	// Both buses exist before either receive loop starts, the gateway
	// reads them from the handlers
	var err error
	app.ptBus, err = can.NewBusForInterfaceWithName(opts.CANDevice)
	if err != nil {
		app.Destroy()
		return nil, errors.Wrapf(err, "failed to initialize CAN bus %s", opts.CANDevice)
	}

	if opts.CameraCANDevice != "" {
		app.camBus, err = can.NewBusForInterfaceWithName(opts.CameraCANDevice)
		if err != nil {
			app.Destroy()
			return nil, errors.Wrapf(err, "failed to initialize CAN bus %s", opts.CameraCANDevice)
		}
		app.log.Info("Gateway between %s and %s enabled", opts.CANDevice, opts.CameraCANDevice)
	}

	app.startBus(app.ptBus, opts.CANDevice, gwm.BusPowertrain)
	if app.camBus != nil {
		app.startBus(app.camBus, opts.CameraCANDevice, gwm.BusCamera)
	}

	app.ipcRx = NewIPCRx(app.log.Named("ipc-rx"), app.redis, app.control, app.monitor.Reset)
	app.log.Info("IPC RX component initialized")

	if opts.DryRun {
		app.log.Warn("Dry run: steering frames are validated but never sent")
	}

	app.wg.Add(1)
	go app.cycleLoop()

	return app, nil
}

func (app *LKASApp) startBus(b *can.Bus, device string, bus uint8) {
	b.Subscribe(&frameHandler{app: app, bus: bus})

	go func() {
		if err := b.ConnectAndPublish(); err != nil {
			app.log.Error("CAN bus %s publish error: %v", device, err)
		}
	}()

	app.log.Info("CAN bus %s initialized as bus %d", device, bus)
}

// Frame handler for CAN messages
type frameHandler struct {
	app *LKASApp
	bus uint8
}

func (h *frameHandler) Handle(frame can.Frame) {
	h.app.handleFrame(gwm.BusFrame{Bus: h.bus, Frame: frame})
}

func (app *LKASApp) handleFrame(frame gwm.BusFrame) {
	gwm.DebugCANFrame(app.log, "RX", frame)

	if !app.monitor.OnReceive(frame) {
		app.log.Debug("Dropped inbound frame %s", frame)
		return
	}

	switch frame.Bus {
	case gwm.BusPowertrain:
		app.ptParser.Handle(frame)
	case gwm.BusCamera:
		app.camParser.Handle(frame)
	}

	app.forward(frame)
}

// forward copies a frame to the opposite bus when both buses are attached.
func (app *LKASApp) forward(frame gwm.BusFrame) {
	if app.camBus == nil || app.opts.DryRun {
		return
	}

	var dst *can.Bus
	switch app.monitor.Forward(frame.Bus, frame.ID) {
	case int(gwm.BusPowertrain):
		dst = app.ptBus
	case int(gwm.BusCamera):
		dst = app.camBus
	default:
		return
	}

	if err := dst.Publish(frame.Frame); err != nil {
		app.log.Error("Failed to forward frame 0x%03X: %v", frame.ID, err)
	}
}

// values merges both parsers. The camera's AUTOPILOT carries the stock
// cruise state when the camera sits behind the gateway.
func (app *LKASApp) values() gwm.CANValues {
	values := app.ptParser.Values()
	if app.camBus == nil {
		return values
	}
	if ap, ok := app.camParser.Values()[gwm.MsgAutopilot]; ok {
		values[gwm.MsgAutopilot] = ap
	}
	return values
}

func (app *LKASApp) cycleLoop() {
	defer app.wg.Done()

	ticker := time.NewTicker(app.opts.CyclePeriod())
	defer ticker.Stop()

	app.log.Info("Control loop running at %d Hz", app.opts.CycleRate)

	for {
		select {
		case <-app.ctx.Done():
			return
		case now := <-ticker.C:
			app.cycle(now)
		}
	}
}

// cycle runs decode, engagement, encode and validation once. Redis writes
// issued here only queue; the frame goes out before any of them.
func (app *LKASApp) cycle(now time.Time) {
	state := app.car.Update(app.values())
	status := app.monitor.Status()

	cc := app.engagement.Update(now, state, app.control.Get(now), status.Override)
	frame := app.car.Apply(cc)

	violation := app.monitor.CheckTransmit(frame)
	accepted := violation == safety.ViolationNone

	if !accepted {
		app.log.Debug("Vetoed steering frame %s: %s", frame, violation)
	} else if !app.opts.DryRun {
		gwm.DebugCANFrame(app.log, "TX", frame)
		if err := app.ptBus.Publish(frame.Frame); err != nil {
			app.log.Error("Failed to send steering frame: %v", err)
		}
	}

	app.engagement.RecordTransmit(now, accepted)
	app.updateFaults(status.Override, violation)

	for _, ev := range state.ButtonEvents {
		if err := app.ipcTx.SendButtonEvent(ev.Type.String()); err != nil {
			app.log.Error("Failed to send button event: %v", err)
		}
	}

	app.cycles++
	notify := state.GearShifter != app.lastGear || state.Cruise.Enabled != app.lastCruise
	if notify || app.cycles%app.stateEvery == 0 {
		app.updateRedisState(state, frame, violation, notify)
	}
}

// updateFaults keeps the override fault in step with the monitor latch and
// the veto fault on the most recent violation.
func (app *LKASApp) updateFaults(override bool, violation safety.Violation) {
	app.diag.SetFaultPresence(safety.ViolationDriverOverride, override)

	if violation == safety.ViolationDriverOverride {
		violation = safety.ViolationNone
	}
	if violation != app.lastViolation {
		app.diag.SetFaultPresence(app.lastViolation, false)
		app.diag.SetFaultPresence(violation, true)
		app.lastViolation = violation
	}
}

// Update Redis with the current decode and steer state
func (app *LKASApp) updateRedisState(state gwm.VehicleState, frame gwm.BusFrame, violation safety.Violation, notify bool) {
	app.mu.Lock()
	defer app.mu.Unlock()

	carState := RedisCarState{
		Speed:             state.VEgo * 3.6,
		RawSpeed:          state.VEgoRaw * 3.6,
		Gear:              state.GearShifter.String(),
		SteeringAngle:     state.SteeringAngleDeg,
		SteeringTorque:    state.SteeringTorque,
		SteeringPressed:   state.SteeringPressed,
		Gas:               state.Gas,
		GasPressed:        state.GasPressed,
		Brake:             state.Brake,
		BrakePressed:      state.BrakePressed,
		CruiseEnabled:     state.Cruise.Enabled,
		CruiseAvailable:   state.Cruise.Available,
		CruiseSpeed:       state.Cruise.Speed * 3.6,
		LeftBlinker:       state.LeftBlinker,
		RightBlinker:      state.RightBlinker,
		DoorOpen:          state.DoorOpen,
		SeatbeltUnlatched: state.SeatbeltUnlatched,
		CanValid:          state.CanValid,
	}

	if err := app.ipcTx.SendCarState(carState, notify); err != nil {
		app.log.Error("Failed to send car state: %v", err)
	} else {
		app.lastGear = state.GearShifter
		app.lastCruise = state.Cruise.Enabled
	}

	cmd := gwm.DecodeSteerCommand(frame.Data)
	steer := RedisSteerStatus{
		Torque:    cmd.Torque,
		Request:   cmd.Request,
		Counter:   app.car.Controller().Counter(),
		Vetoed:    violation != safety.ViolationNone,
		Violation: violation.String(),
	}
	if err := app.ipcTx.SendSteerStatus(steer); err != nil {
		app.log.Error("Failed to send steer status: %v", err)
	}

	status := app.monitor.Status()
	if err := app.ipcTx.SendSafetyStatus(RedisSafetyStatus{
		Override: status.Override,
		Accepted: status.Accepted,
		Vetoed:   status.Vetoed,
		Dropped:  status.Dropped,
	}); err != nil {
		app.log.Error("Failed to send safety status: %v", err)
	}
}

func (app *LKASApp) redisHealthCheck() {
	defer app.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(app.ctx, 2*time.Second)
			if err := app.redis.Ping(ctx).Err(); err != nil {
				app.log.Error("Redis health check failed: %v", err)
			}
			cancel()
		}
	}
}

func (app *LKASApp) Destroy() {
	app.log.Info("Shutting down lkas application...")

	if app.cancel != nil {
		app.cancel()
	}
	app.wg.Wait()

	app.mu.Lock()
	defer app.mu.Unlock()

	if app.ipcRx != nil {
		app.ipcRx.Destroy()
		app.log.Info("IPC RX shutdown complete")
	}

	for _, b := range []*can.Bus{app.ptBus, app.camBus} {
		if b == nil {
			continue
		}
		if err := b.Disconnect(); err != nil {
			app.log.Error("Error disconnecting CAN bus: %v", err)
		}
	}
	app.log.Info("CAN shutdown complete")

	if app.diag != nil {
		app.diag.Destroy()
		app.log.Info("Diagnostics shutdown complete")
	}

	if app.ipcTx != nil {
		app.ipcTx.Destroy()
		app.log.Info("IPC TX shutdown complete")
	}

	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.log.Error("Error closing Redis connection: %v", err)
		} else {
			app.log.Info("Redis connection closed")
		}
	}

	app.log.Info("LKAS application shutdown complete")
}
