package livefeed

import (
	"time"

	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// Message types pushed to browsers.
const (
	TypeScriptLoaded   = "script_loaded"
	TypeCursorMoved    = "cursor_moved"
	TypeRecordAppended = "record_appended"
	TypeRecordUpdated  = "record_updated"

	TypeDeviceLogAppended = "devicelog_appended"
)

// Message is the envelope of every live feed frame. Exactly one of the
// payload fields is set, matching Type.
type Message struct {
	Type     string      `json:"type"`
	Sequence uint64      `json:"sequence,omitempty"`
	Script   *ScriptView `json:"script,omitempty"`
	Cursor   *CursorView `json:"cursor,omitempty"`
	Record   *RecordView `json:"record,omitempty"`

	DeviceLog *DeviceLogView `json:"devicelog,omitempty"`
}

// ScriptView is the wire form of a loaded script.
type ScriptView struct {
	Lines    []LineView `json:"lines"`
	LoadedAt time.Time  `json:"loaded_at"`
}

// LineView is one script line. Index is 1-based.
type LineView struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// CursorView is the wire form of a cursor transition. Zero means no line.
type CursorView struct {
	Previous int  `json:"previous"`
	Current  int  `json:"current"`
	Rendered bool `json:"rendered"`
}

// RecordView is the wire form of a credential record. The payload is only
// ever sent as a preview; Plaintext is set only for decrypted records.
type RecordView struct {
	ID            string    `json:"id"`
	Seq           int64     `json:"seq"`
	CapturedAt    time.Time `json:"captured_at"`
	Principal     string    `json:"principal"`
	Preview       string    `json:"preview"`
	State         string    `json:"state"`
	Plaintext     string    `json:"plaintext,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// DeviceLogView is the wire form of one device log line.
type DeviceLogView struct {
	Seq       int64     `json:"seq"`
	Time      time.Time `json:"time"`
	Component string    `json:"component"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

func scriptMessage(script model.Script, seq uint64) Message {
	lines := make([]LineView, 0, len(script.Lines))
	for _, l := range script.Lines {
		lines = append(lines, LineView{Index: l.Index, Text: l.Text})
	}
	return Message{
		Type:     TypeScriptLoaded,
		Sequence: seq,
		Script:   &ScriptView{Lines: lines, LoadedAt: script.LoadedAt},
	}
}

func cursorMessage(change model.CursorChange) Message {
	return Message{
		Type:     TypeCursorMoved,
		Sequence: change.Sequence,
		Cursor: &CursorView{
			Previous: change.Previous.Active,
			Current:  change.Current.Active,
			Rendered: change.Rendered,
		},
	}
}

func recordMessage(typ string, rec model.CredentialRecord, previewLength int) Message {
	view := &RecordView{
		ID:            rec.ID,
		Seq:           rec.Seq,
		CapturedAt:    rec.CapturedAt,
		Principal:     rec.Principal,
		Preview:       rec.Preview(previewLength),
		State:         string(rec.State),
		FailureReason: rec.FailureReason,
	}
	if rec.State == model.DecryptionDecrypted {
		view.Plaintext = rec.Plaintext
	}
	return Message{Type: typ, Record: view}
}

func deviceLogMessage(e model.DeviceLogEntry) Message {
	return Message{
		Type: TypeDeviceLogAppended,
		DeviceLog: &DeviceLogView{
			Seq:       e.Seq,
			Time:      e.Time,
			Component: e.Component,
			Level:     string(e.Level),
			Message:   e.Message,
		},
	}
}
