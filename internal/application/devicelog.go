package application

import (
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
	"github.com/ericfisherdev/opconsole/internal/domain/port/driven"
)

const (
	// DefaultDeviceLogDepth is the number of device log lines retained.
	DefaultDeviceLogDepth = 100

	// MaxDeviceLogEntryChars bounds a single line, level tag included.
	MaxDeviceLogEntryChars = 350

	oversizeInfoMessage = "ERROR LOG MESSAGE TOO LARGE!"
)

// DeviceLog keeps the most recent debug lines forwarded by the agent,
// oldest first.
type DeviceLog struct {
	mu      sync.Mutex
	entries []model.DeviceLogEntry
	depth   int
	lastSeq int64
	now     func() time.Time

	listeners map[int]driven.DeviceLogListener
	nextID    int
}

// NewDeviceLog creates a log that retains at most depth entries. A
// non-positive depth selects DefaultDeviceLogDepth.
func NewDeviceLog(depth int) *DeviceLog {
	if depth <= 0 {
		depth = DefaultDeviceLogDepth
	}
	return &DeviceLog{
		depth:     depth,
		now:       time.Now,
		listeners: make(map[int]driven.DeviceLogListener),
	}
}

// Subscribe registers l for future lines and returns a function that
// removes it.
func (d *DeviceLog) Subscribe(l driven.DeviceLogListener) func() {
	d.mu.Lock()
	id := d.nextID
	d.nextID++
	d.listeners[id] = l
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		delete(d.listeners, id)
		d.mu.Unlock()
	}
}

// Append records a line. The bound counts characters, not bytes.
// Oversized info lines are replaced with a marker; oversized warnings and
// errors are truncated on a character boundary.
func (d *DeviceLog) Append(component string, level model.LogLevel, msg string) model.DeviceLogEntry {
	tagLen := utf8.RuneCountInString(level.Tag())
	if tagLen+utf8.RuneCountInString(msg) > MaxDeviceLogEntryChars {
		if level == model.LogLevelInfo {
			msg = oversizeInfoMessage
		} else {
			msg = string([]rune(msg)[:MaxDeviceLogEntryChars-tagLen])
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastSeq++
	entry := model.DeviceLogEntry{
		Seq:       d.lastSeq,
		Time:      d.now().UTC(),
		Component: component,
		Level:     level,
		Message:   msg,
	}
	d.entries = append(d.entries, entry)
	if over := len(d.entries) - d.depth; over > 0 {
		d.entries = append(d.entries[:0:0], d.entries[over:]...)
	}

	for id := 0; id < d.nextID; id++ {
		if l, ok := d.listeners[id]; ok {
			l.DeviceLogAppended(entry)
		}
	}
	return entry
}

// Snapshot returns a copy of the retained entries, oldest first.
func (d *DeviceLog) Snapshot() []model.DeviceLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]model.DeviceLogEntry, len(d.entries))
	copy(out, d.entries)
	return out
}

// Clear drops all retained entries.
func (d *DeviceLog) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = nil
}
