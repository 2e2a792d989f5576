// Package engine defines the download engine contract the coordinator drives
// and an HTTP adapter that satisfies it.
package engine

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrGroupExists is returned when a group id is already downloading
	ErrGroupExists = errors.New("download group already enqueued")
	// ErrGroupNotFound is returned when cancelling an unknown group
	ErrGroupNotFound = errors.New("download group not found")
	// ErrClosed is returned once the engine has been shut down
	ErrClosed = errors.New("download engine closed")
)

// Request is one file of a download group
type Request struct {
	URL  string
	Path string
	Size int64
	Tag  string
}

// EventKind enumerates engine callbacks
type EventKind string

const (
	EventProgress       EventKind = "progress"
	EventFileCompleted  EventKind = "file_completed"
	EventGroupCompleted EventKind = "group_completed"
	EventError          EventKind = "error"
	EventCancelled      EventKind = "cancelled"
)

// GroupSnapshot is the aggregate state of a group when an event fires
type GroupSnapshot struct {
	Downloaded     int64
	Total          int64
	CompletedFiles int
	TotalFiles     int
}

// Event is a group callback: (groupId, download, eta, bytesPerSec, groupSnapshot)
type Event struct {
	Kind           EventKind
	GroupID        int
	Download       Request
	ETA            time.Duration
	BytesPerSecond int64
	Snapshot       GroupSnapshot
	Err            error
}

// Listener receives engine events on an engine goroutine.
// Listeners must not call back into the engine synchronously.
type Listener func(Event)

// Engine is the download engine contract
type Engine interface {
	Enqueue(ctx context.Context, groupID int, requests []Request) error
	AddListener(l Listener)
	CancelGroup(groupID int) error
}
