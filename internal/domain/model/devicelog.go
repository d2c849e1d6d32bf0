package model

import "time"

// DeviceLogEntry is a debug log line forwarded by the agent.
type DeviceLogEntry struct {
	Seq       int64
	Time      time.Time
	Component string
	Level     LogLevel
	Message   string
}
