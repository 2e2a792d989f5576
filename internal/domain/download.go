package domain

import (
	"fmt"
	"hash/fnv"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// DownloadStatus represents the current status of a download record
type DownloadStatus string

const (
	StatusQueued      DownloadStatus = "queued"
	StatusDownloading DownloadStatus = "downloading"
	StatusPaused      DownloadStatus = "paused"
	StatusCompleted   DownloadStatus = "completed"
	StatusFailed      DownloadStatus = "failed"
	StatusCancelled   DownloadStatus = "cancelled"
)

// InstallStatus tracks the install state machine for a record
type InstallStatus string

const (
	InstallIdle       InstallStatus = "idle"
	InstallInstalling InstallStatus = "installing"
	InstallSuccess    InstallStatus = "success"
	InstallFailed     InstallStatus = "failed"
)

// FileType identifies the role of a file inside a download group
type FileType string

const (
	FileBase  FileType = "base"
	FileSplit FileType = "split"
	FileOBB   FileType = "obb"
	FilePatch FileType = "patch"
)

// FileDescriptor describes one file of a download group
type FileDescriptor struct {
	URL  string   `json:"url"`
	Name string   `json:"name"`
	Path string   `json:"path,omitempty"`
	Type FileType `json:"type"`
	Size int64    `json:"size,omitempty"`
}

// IsAPK reports whether the file is handed to the package installer.
// OBB and patch files are staged alongside but never installed.
func (f FileDescriptor) IsAPK() bool {
	return f.Type == FileBase || f.Type == FileSplit
}

// DownloadRecord is the persisted per-package download state
type DownloadRecord struct {
	PackageName     string           `json:"package_name" gorm:"primaryKey"`
	DisplayName     string           `json:"display_name"`
	VersionCode     int64            `json:"version_code"`
	GroupID         int              `json:"group_id" gorm:"index"`
	Files           []FileDescriptor `json:"files" gorm:"serializer:json"`
	TotalSize       int64            `json:"total_size"`
	DownloadedBytes int64            `json:"downloaded_bytes"`
	Status          DownloadStatus   `json:"status" gorm:"not null;index"`
	SpeedBps        int64            `json:"speed_bps" gorm:"column:speed_bps"`
	ETAMillis       int64            `json:"eta_ms" gorm:"column:eta_millis"`
	QueueSeq        int64            `json:"queue_seq" gorm:"index"`
	Attempts        int              `json:"attempts" gorm:"default:0"`
	ErrorKind       string           `json:"error_kind,omitempty"`
	ErrorMessage    string           `json:"error_message,omitempty"`
	InstallStatus   InstallStatus    `json:"install_status" gorm:"default:idle"`
	InstallStrategy string           `json:"install_strategy,omitempty"`
	CreatedAt       time.Time        `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time        `json:"updated_at" gorm:"autoUpdateTime"`
	StartedAt       *time.Time       `json:"started_at,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// TableName specifies the table name for GORM
func (DownloadRecord) TableName() string {
	return "download_records"
}

// NewDownloadRecord creates a queued record for a package
func NewDownloadRecord(packageName, displayName string, versionCode int64, files []FileDescriptor) *DownloadRecord {
	now := time.Now()
	r := &DownloadRecord{
		PackageName:   packageName,
		DisplayName:   displayName,
		VersionCode:   versionCode,
		GroupID:       GroupID(packageName, versionCode),
		Files:         files,
		Status:        StatusQueued,
		InstallStatus: InstallIdle,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.TotalSize = r.sumSizes()
	return r
}

// GroupID derives the engine group key for a package/version pair
func GroupID(packageName string, versionCode int64) int {
	h := fnv.New32a()
	h.Write([]byte(packageName))
	h.Write([]byte{':'})
	h.Write([]byte(strconv.FormatInt(versionCode, 10)))
	return int(h.Sum32() & 0x7fffffff)
}

// Validate checks the record has what the coordinator needs to schedule it
func (r *DownloadRecord) Validate() error {
	if r.PackageName == "" {
		return fmt.Errorf("%w: package name is required", ErrInvalidRecord)
	}
	if strings.ContainsAny(r.PackageName, `/\ `) || strings.Contains(r.PackageName, "..") {
		return fmt.Errorf("%w: malformed package name %q", ErrInvalidRecord, r.PackageName)
	}
	if len(r.Files) == 0 {
		return fmt.Errorf("%w: %s has no files", ErrInvalidRecord, r.PackageName)
	}
	for i, f := range r.Files {
		if f.URL == "" {
			return fmt.Errorf("%w: file %d of %s has no url", ErrInvalidRecord, i, r.PackageName)
		}
		if f.Type != "" && !ValidateFileType(f.Type) {
			return fmt.Errorf("%w: file %d of %s has unknown type %q", ErrInvalidRecord, i, r.PackageName, f.Type)
		}
	}

	// two files staged at one path would write the same .part file
	resolved := r.Clone()
	resolved.ResolvePaths("")
	seen := make(map[string]int, len(resolved.Files))
	for i, f := range resolved.Files {
		if j, dup := seen[f.Path]; dup {
			return fmt.Errorf("%w: files %d and %d of %s both stage to %s", ErrInvalidRecord, j, i, r.PackageName, f.Path)
		}
		seen[f.Path] = i
	}
	return nil
}

// ResolvePaths fills empty file names, types and target paths under stagingDir
func (r *DownloadRecord) ResolvePaths(stagingDir string) {
	dir := filepath.Join(stagingDir, r.PackageName, strconv.FormatInt(r.VersionCode, 10))
	obbs := 0
	for i := range r.Files {
		f := &r.Files[i]
		if f.Type == "" {
			if i == 0 {
				f.Type = FileBase
			} else {
				f.Type = FileSplit
			}
		}
		if f.Name == "" {
			f.Name = fmt.Sprintf("%s_%d.apk", f.Type, i)
			if f.Type == FileOBB {
				f.Name = obbName(obbs, i, r.VersionCode, r.PackageName)
			}
		}
		if f.Type == FileOBB {
			obbs++
		}
		if f.Path == "" {
			f.Path = filepath.Join(dir, filepath.Base(f.Name))
		}
	}
	r.TotalSize = r.sumSizes()
}

// obbName follows the main/patch expansion file convention; further OBBs get an index
func obbName(nth, index int, versionCode int64, packageName string) string {
	switch nth {
	case 0:
		return fmt.Sprintf("main.%d.%s.obb", versionCode, packageName)
	case 1:
		return fmt.Sprintf("patch.%d.%s.obb", versionCode, packageName)
	default:
		return fmt.Sprintf("obb_%d.%d.%s.obb", index, versionCode, packageName)
	}
}

func (r *DownloadRecord) sumSizes() int64 {
	var total int64
	for _, f := range r.Files {
		total += f.Size
	}
	return total
}

// APKPaths returns the staged paths handed to the installer
func (r *DownloadRecord) APKPaths() []string {
	paths := make([]string, 0, len(r.Files))
	for _, f := range r.Files {
		if f.IsAPK() {
			paths = append(paths, f.Path)
		}
	}
	return paths
}

// MarkQueued puts the record (back) into the queue with a fresh sequence number
func (r *DownloadRecord) MarkQueued(seq int64) {
	r.Status = StatusQueued
	r.QueueSeq = seq
	r.SpeedBps = 0
	r.ETAMillis = 0
	r.ErrorKind = ""
	r.ErrorMessage = ""
	r.UpdatedAt = time.Now()
}

// MarkDownloading marks the record as the active download
func (r *DownloadRecord) MarkDownloading() {
	r.Status = StatusDownloading
	now := time.Now()
	r.StartedAt = &now
	r.UpdatedAt = now
}

// MarkProgress records the latest engine sample
func (r *DownloadRecord) MarkProgress(downloaded, total, speed int64, eta time.Duration) {
	r.DownloadedBytes = downloaded
	if total > 0 {
		r.TotalSize = total
	}
	r.SpeedBps = speed
	r.ETAMillis = eta.Milliseconds()
	r.UpdatedAt = time.Now()
}

// MarkCompleted marks the download group as fully downloaded
func (r *DownloadRecord) MarkCompleted() {
	r.Status = StatusCompleted
	r.SpeedBps = 0
	r.ETAMillis = 0
	if r.TotalSize > 0 {
		r.DownloadedBytes = r.TotalSize
	}
	now := time.Now()
	r.CompletedAt = &now
	r.UpdatedAt = now
}

// MarkFailed marks the download as failed
func (r *DownloadRecord) MarkFailed(err error) {
	r.Status = StatusFailed
	r.SpeedBps = 0
	r.ETAMillis = 0
	r.ErrorKind = ErrorKind(err)
	r.ErrorMessage = err.Error()
	r.UpdatedAt = time.Now()
}

// MarkPaused marks the download as paused
func (r *DownloadRecord) MarkPaused() {
	r.Status = StatusPaused
	r.SpeedBps = 0
	r.ETAMillis = 0
	r.UpdatedAt = time.Now()
}

// MarkCancelled marks the download as cancelled
func (r *DownloadRecord) MarkCancelled() {
	r.Status = StatusCancelled
	r.SpeedBps = 0
	r.ETAMillis = 0
	r.UpdatedAt = time.Now()
}

// MarkInstall updates the install state machine
func (r *DownloadRecord) MarkInstall(status InstallStatus, strategy string, err error) {
	r.InstallStatus = status
	if strategy != "" {
		r.InstallStrategy = strategy
	}
	if err != nil {
		r.ErrorKind = ErrorKind(err)
		r.ErrorMessage = err.Error()
	}
	r.UpdatedAt = time.Now()
}

// Progress returns the download progress in percent, or -1 when the size is unknown
func (r *DownloadRecord) Progress() int {
	if r.TotalSize <= 0 {
		return -1
	}
	p := int(r.DownloadedBytes * 100 / r.TotalSize)
	if p > 100 {
		p = 100
	}
	return p
}

// IsTerminal checks if the download is in a terminal state
func (r *DownloadRecord) IsTerminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed || r.Status == StatusCancelled
}

// IsPending checks if the record still holds or waits for the download slot
func (r *DownloadRecord) IsPending() bool {
	return r.Status == StatusQueued || r.Status == StatusDownloading || r.Status == StatusPaused
}

// CanRetry checks if the record can be explicitly re-enqueued
func (r *DownloadRecord) CanRetry() bool {
	return r.Status == StatusFailed || r.Status == StatusCancelled
}

// Clone returns a copy safe to hand to other goroutines
func (r *DownloadRecord) Clone() *DownloadRecord {
	c := *r
	c.Files = append([]FileDescriptor(nil), r.Files...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// ValidateFileType checks if a file type is valid
func ValidateFileType(t FileType) bool {
	return t == FileBase || t == FileSplit || t == FileOBB || t == FilePatch
}

// ValidateStatus checks if a status is valid
func ValidateStatus(s DownloadStatus) bool {
	switch s {
	case StatusQueued, StatusDownloading, StatusPaused, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}
