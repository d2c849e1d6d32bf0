// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// ConsoleViewModel holds everything the full console page renders.
type ConsoleViewModel struct {
	Title     string
	CSRFToken string
	Decrypter string
	Script    ScriptViewModel
	Records   []RecordViewModel
	DeviceLog []DeviceLogEntryViewModel
}

// ScriptViewModel holds the loaded script and the execution cursor.
type ScriptViewModel struct {
	Loaded     bool
	LoadedAt   string
	Lines      []ScriptLineViewModel
	ActiveLine int    // 0 when no line is executing
	Sequence   uint64 // lets the browser discard stale live updates
}

// ScriptLineViewModel is one rendered script line.
type ScriptLineViewModel struct {
	Index  int
	Text   string
	Active bool
	DOMID  string
}

// RecordViewModel holds presentation-ready data for one credential row.
type RecordViewModel struct {
	ID            string
	RowID         string
	Seq           int64
	CapturedAt    string
	PrincipalHTML string // sanitized, safe to write unescaped
	Preview       string
	PayloadBytes  int
	State         string
	StateLabel    string
	Plaintext     string
	FailureReason string

	CanDecrypt bool // show the key form
	Pending    bool // show the dismiss button
	DecryptURL string
	DismissURL string
}

// DeviceLogEntryViewModel is one device log line.
type DeviceLogEntryViewModel struct {
	Seq         int64
	Time        string
	Component   string
	Level       string
	LevelClass  string
	MessageHTML string // sanitized, safe to write unescaped
}
