package domain

// RecordRepository defines the interface for download record persistence
type RecordRepository interface {
	// Save creates or updates a record keyed by package name
	Save(record *DownloadRecord) error

	// Delete deletes a record by package name
	Delete(packageName string) error

	// FindByPackage finds a record by package name.
	// Returns nil if not found
	FindByPackage(packageName string) (*DownloadRecord, error)

	// FindQueued finds queued records, earliest-queued first
	FindQueued() ([]*DownloadRecord, error)

	// FindAll finds all records with optional column filters
	FindAll(filters map[string]interface{}) ([]*DownloadRecord, error)

	// ResetInterrupted moves records left downloading by a previous process back to queued
	ResetInterrupted() (int64, error)

	// MaxQueueSeq returns the highest queue sequence number in use
	MaxQueueSeq() (int64, error)

	// GetStats returns record statistics
	GetStats() (*DownloadStats, error)
}

// DownloadStats represents record statistics
type DownloadStats struct {
	Total       int64 `json:"total"`
	Queued      int64 `json:"queued"`
	Downloading int64 `json:"downloading"`
	Paused      int64 `json:"paused"`
	Completed   int64 `json:"completed"`
	Failed      int64 `json:"failed"`
	Cancelled   int64 `json:"cancelled"`
}
