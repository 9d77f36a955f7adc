package main

import (
	"time"

	"lkas-service/gwm"
)

type LogLevel int

const (
	LogLevelNone  LogLevel = 0
	LogLevelError LogLevel = 1
	LogLevelWarn  LogLevel = 2
	LogLevelInfo  LogLevel = 3
	LogLevelDebug LogLevel = 4
)

func (l LogLevel) String() string {
	switch l {
	case LogLevelNone:
		return "none"
	case LogLevelError:
		return "error"
	case LogLevelWarn:
		return "warn"
	case LogLevelInfo:
		return "info"
	case LogLevelDebug:
		return "debug"
	default:
		return "unknown"
	}
}

type Options struct {
	LogLevel        LogLevel
	RedisServerAddr string
	RedisServerPort uint16
	CANDevice       string
	CameraCANDevice string
	Profile         gwm.Profile
	CycleRate       int
	DryRun          bool
}

// CyclePeriod is the interval between control cycles.
func (o *Options) CyclePeriod() time.Duration {
	if o.CycleRate <= 0 {
		return gwm.DTCtrl
	}
	return time.Second / time.Duration(o.CycleRate)
}
