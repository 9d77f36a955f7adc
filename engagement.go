package main

import (
	"sync"
	"time"

	"lkas-service/gwm"
)

type ReasonOff int

const (
	ReasonOffNone ReasonOff = iota
	ReasonOffCANInvalid
	ReasonOffSteerFault
	ReasonOffGear
	ReasonOffCruiseOff
	ReasonOffOverride
	ReasonOffSafety
)

func (r ReasonOff) String() string {
	switch r {
	case ReasonOffCANInvalid:
		return "can-invalid"
	case ReasonOffSteerFault:
		return "steer-fault"
	case ReasonOffGear:
		return "gear"
	case ReasonOffCruiseOff:
		return "cruise-off"
	case ReasonOffOverride:
		return "override"
	case ReasonOffSafety:
		return "safety"
	case ReasonOffNone:
		fallthrough
	default:
		return "none"
	}
}

type engagementPublisher interface {
	SendEngagement(data RedisEngagement) error
}

// Engagement decides whether a planner request may reach the encoder. A
// run of vetoed frames longer than the steer limit timer latches the
// safety reason until the planner drops its request.
type Engagement struct {
	log        *LeveledLogger
	tx         engagementPublisher
	limitTimer time.Duration

	mu            sync.Mutex
	reasonOff     ReasonOff
	published     bool
	vetoSince     time.Time
	safetyLatched bool
}

func NewEngagement(logger *LeveledLogger, tx engagementPublisher, limitTimer time.Duration) *Engagement {
	return &Engagement{
		log:        logger,
		tx:         tx,
		limitTimer: limitTimer,
	}
}

// Update gates the planner request against the decoded state and the
// monitor's override latch.
func (e *Engagement) Update(now time.Time, state gwm.VehicleState, cc gwm.CarControl, override bool) gwm.CarControl {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !cc.Enabled {
		if e.safetyLatched {
			e.log.Info("Planner released request, clearing safety latch")
		}
		e.safetyLatched = false
		e.vetoSince = time.Time{}
	} else if !e.vetoSince.IsZero() && now.Sub(e.vetoSince) > e.limitTimer && !e.safetyLatched {
		e.log.Warn("Steering frames vetoed for %v, disengaging", now.Sub(e.vetoSince))
		e.safetyLatched = true
	}

	var reason ReasonOff
	switch {
	case !state.CanValid:
		reason = ReasonOffCANInvalid
	case state.SteerFaultTemporary || state.SteerFaultPermanent:
		reason = ReasonOffSteerFault
	case state.GearShifter != gwm.GearDrive:
		reason = ReasonOffGear
	case !state.Cruise.Enabled:
		reason = ReasonOffCruiseOff
	case override:
		reason = ReasonOffOverride
	case e.safetyLatched:
		reason = ReasonOffSafety
	}

	e.setReasonOff(reason)

	return gwm.CarControl{
		Enabled: cc.Enabled && reason == ReasonOffNone,
		Torque:  cc.Torque,
	}
}

// RecordTransmit feeds the monitor's verdict on the frame built this cycle.
func (e *Engagement) RecordTransmit(now time.Time, accepted bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if accepted {
		e.vetoSince = time.Time{}
		return
	}
	if e.vetoSince.IsZero() {
		e.vetoSince = now
	}
}

func (e *Engagement) setReasonOff(reason ReasonOff) {
	if e.published && reason == e.reasonOff {
		return
	}

	e.log.Info("Engagement reason-off: %s -> %s", e.reasonOff, reason)
	e.reasonOff = reason
	e.published = true

	if e.tx == nil {
		return
	}
	if err := e.tx.SendEngagement(RedisEngagement{
		Available: reason == ReasonOffNone,
		ReasonOff: reason,
	}); err != nil {
		e.log.Error("Failed to send engagement: %v", err)
	}
}

func (e *Engagement) ReasonOff() ReasonOff {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.reasonOff
}

func (e *Engagement) Available() bool {
	return e.ReasonOff() == ReasonOffNone
}
