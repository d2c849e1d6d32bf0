package model

// DecryptionState is the lifecycle position of a captured credential record.
type DecryptionState string

const (
	DecryptionEncrypted DecryptionState = "encrypted"
	DecryptionRequested DecryptionState = "decrypt_requested"
	DecryptionDecrypted DecryptionState = "decrypted"
	DecryptionFailed    DecryptionState = "decrypt_failed"
)

// CanRequestDecrypt reports whether a new decrypt request may start from s.
// A pending request may be superseded by a newer one.
func (s DecryptionState) CanRequestDecrypt() bool {
	switch s {
	case DecryptionEncrypted, DecryptionFailed, DecryptionRequested:
		return true
	default:
		return false
	}
}

// LogLevel is the severity tag of a device log line.
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// ParseLogLevel maps a level name to a LogLevel. Unknown or empty names
// fall back to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch LogLevel(s) {
	case LogLevelWarn, "warning":
		return LogLevelWarn
	case LogLevelError, "err":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Tag returns the bracketed prefix the device firmware uses for the level.
func (l LogLevel) Tag() string {
	switch l {
	case LogLevelWarn:
		return "[WARN] "
	case LogLevelError:
		return "[ERR]  "
	default:
		return "[INFO] "
	}
}
