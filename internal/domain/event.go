package domain

import "time"

// EventKind enumerates pipeline events delivered to subscribers
type EventKind string

const (
	EventQueued        EventKind = "queued"
	EventStarted       EventKind = "started"
	EventProgress      EventKind = "progress"
	EventFileCompleted EventKind = "file_completed"
	EventCompleted     EventKind = "completed"
	EventFailed        EventKind = "failed"
	EventPaused        EventKind = "paused"
	EventCancelled     EventKind = "cancelled"
	EventRemoved       EventKind = "removed"
	EventInstalling    EventKind = "installing"
	EventInstalled     EventKind = "installed"
	EventInstallFailed EventKind = "install_failed"
)

// Event is a single pipeline state change.
// Record is a snapshot; subscribers may keep it.
type Event struct {
	Kind        EventKind       `json:"kind"`
	PackageName string          `json:"package_name"`
	Record      *DownloadRecord `json:"record,omitempty"`
	File        string          `json:"file,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
	At          time.Time       `json:"at"`

	Err error `json:"-"`
}

// NewEvent builds an event carrying a snapshot of the record
func NewEvent(kind EventKind, record *DownloadRecord, err error) Event {
	ev := Event{
		Kind: kind,
		At:   time.Now(),
		Err:  err,
	}
	if record != nil {
		ev.PackageName = record.PackageName
		ev.Record = record.Clone()
	}
	if err != nil {
		ev.ErrorKind = ErrorKind(err)
		ev.Error = err.Error()
	}
	return ev
}
