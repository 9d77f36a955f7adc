package gwm

// Logger interface for platform logging
type Logger interface {
	Printf(format string, v ...interface{})
	Debug(format string, v ...interface{})
	Info(format string, v ...interface{})
	Warn(format string, v ...interface{})
	Error(format string, v ...interface{})
	DebugCAN(direction string, id uint32, data []byte, length uint8)
}

// nopLogger is used when no logger is configured
type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{})                          {}
func (nopLogger) Debug(format string, v ...interface{})                           {}
func (nopLogger) Info(format string, v ...interface{})                            {}
func (nopLogger) Warn(format string, v ...interface{})                            {}
func (nopLogger) Error(format string, v ...interface{})                           {}
func (nopLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}

// DebugCANFrame formats and logs a CAN frame
func DebugCANFrame(logger Logger, direction string, frame BusFrame) {
	if logger != nil {
		logger.DebugCAN(direction, frame.ID, frame.Data[:], frame.Length)
	}
}
