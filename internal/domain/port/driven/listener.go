package driven

import "github.com/ericfisherdev/opconsole/internal/domain/model"

// ProgressListener receives execution-progress transitions. Calls arrive
// synchronously and in transition order; implementations must return
// quickly and must not call back into the tracker.
type ProgressListener interface {
	ScriptLoaded(script model.Script, sequence uint64)
	CursorMoved(change model.CursorChange)
}

// RecordListener receives credential log changes. Records are copies.
type RecordListener interface {
	RecordAppended(record model.CredentialRecord)
	RecordUpdated(record model.CredentialRecord)
}

// DeviceLogListener receives device log lines as they are appended, in
// sequence order.
type DeviceLogListener interface {
	DeviceLogAppended(entry model.DeviceLogEntry)
}
