package web

import (
	"fmt"
	"time"

	"github.com/microcosm-cc/bluemonday"

	vm "github.com/ericfisherdev/opconsole/internal/adapter/driving/web/viewmodel"
	"github.com/ericfisherdev/opconsole/internal/application"
	"github.com/ericfisherdev/opconsole/internal/domain/model"
)

// textSanitizer strips every tag from agent-supplied text. Principals and
// device log lines come from the target machine and are untrusted.
var textSanitizer = bluemonday.StrictPolicy()

// sanitizeText returns s with all markup removed and the rest escaped.
func sanitizeText(s string) string {
	return textSanitizer.Sanitize(s)
}

// stateLabels maps decryption states to operator-facing labels.
var stateLabels = map[model.DecryptionState]string{
	model.DecryptionEncrypted: "Encrypted",
	model.DecryptionRequested: "Decrypting…",
	model.DecryptionDecrypted: "Decrypted",
	model.DecryptionFailed:    "Failed",
}

// toScriptViewModel converts a tracker snapshot to a ScriptViewModel.
func toScriptViewModel(s application.TrackerSnapshot) vm.ScriptViewModel {
	lines := make([]vm.ScriptLineViewModel, 0, len(s.Script.Lines))
	for _, l := range s.Script.Lines {
		lines = append(lines, vm.ScriptLineViewModel{
			Index:  l.Index,
			Text:   l.Text,
			Active: l.Index == s.Cursor.Active,
			DOMID:  lineDOMID(l.Index),
		})
	}

	out := vm.ScriptViewModel{
		Loaded:     !s.Script.LoadedAt.IsZero(),
		Lines:      lines,
		ActiveLine: s.Cursor.Active,
		Sequence:   s.Sequence,
	}
	if out.Loaded {
		out.LoadedAt = s.Script.LoadedAt.Local().Format(time.DateTime)
	}
	return out
}

// toRecordViewModel converts a credential record to a RecordViewModel. The
// payload only ever leaves as a preview.
func toRecordViewModel(r model.CredentialRecord, previewLength int) vm.RecordViewModel {
	out := vm.RecordViewModel{
		ID:            r.ID,
		RowID:         "record-" + r.ID,
		Seq:           r.Seq,
		CapturedAt:    r.CapturedAt.Local().Format(time.DateTime),
		PrincipalHTML: sanitizeText(r.Principal),
		Preview:       r.Preview(previewLength),
		PayloadBytes:  len(r.CipherPayload),
		State:         string(r.State),
		StateLabel:    stateLabels[r.State],
		FailureReason: r.FailureReason,
		CanDecrypt:    r.State.CanRequestDecrypt(),
		Pending:       r.State == model.DecryptionRequested,
		DecryptURL:    fmt.Sprintf("/app/captures/%s/decrypt", r.ID),
		DismissURL:    fmt.Sprintf("/app/captures/%s/dismiss", r.ID),
	}
	if r.State == model.DecryptionDecrypted {
		out.Plaintext = r.Plaintext
	}
	return out
}

func toRecordViewModels(records []model.CredentialRecord, previewLength int) []vm.RecordViewModel {
	out := make([]vm.RecordViewModel, 0, len(records))
	for _, r := range records {
		out = append(out, toRecordViewModel(r, previewLength))
	}
	return out
}

func toDeviceLogViewModels(entries []model.DeviceLogEntry) []vm.DeviceLogEntryViewModel {
	out := make([]vm.DeviceLogEntryViewModel, 0, len(entries))
	for _, e := range entries {
		out = append(out, vm.DeviceLogEntryViewModel{
			Seq:         e.Seq,
			Time:        e.Time.Local().Format(time.TimeOnly),
			Component:   e.Component,
			Level:       string(e.Level),
			LevelClass:  "log-" + string(e.Level),
			MessageHTML: sanitizeText(e.Message),
		})
	}
	return out
}

func lineDOMID(index int) string {
	return fmt.Sprintf("line-%d", index)
}
