package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// Downloads is the coordinator surface the download endpoints drive
type Downloads interface {
	Enqueue(record *domain.DownloadRecord) (*domain.DownloadRecord, bool, error)
	Cancel(packageName string) (*domain.DownloadRecord, error)
	Pause(packageName string) (*domain.DownloadRecord, error)
	Resume(packageName string) (*domain.DownloadRecord, error)
	Retry(packageName string) (*domain.DownloadRecord, error)
	Remove(packageName string) error
	Get(packageName string) (*domain.DownloadRecord, error)
	List(filters map[string]interface{}) ([]*domain.DownloadRecord, error)
	Stats() (*domain.DownloadStats, error)
}

// DownloadHandler handles download-related HTTP requests
type DownloadHandler struct {
	downloads Downloads
	logger    *zap.Logger
}

// NewDownloadHandler creates a new download handler
func NewDownloadHandler(downloads Downloads, logger *zap.Logger) *DownloadHandler {
	return &DownloadHandler{
		downloads: downloads,
		logger:    logger,
	}
}

// FileRequest describes one file of a download group
type FileRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// AddDownloadRequest represents a request to enqueue a package
type AddDownloadRequest struct {
	PackageName string        `json:"package_name" binding:"required"`
	DisplayName string        `json:"display_name,omitempty"`
	VersionCode int64         `json:"version_code"`
	Files       []FileRequest `json:"files" binding:"required,min=1,dive"`
}

// Record builds the download record for the request
func (r AddDownloadRequest) Record() *domain.DownloadRecord {
	files := make([]domain.FileDescriptor, 0, len(r.Files))
	for _, f := range r.Files {
		files = append(files, domain.FileDescriptor{
			URL:  f.URL,
			Name: f.Name,
			Type: domain.FileType(f.Type),
			Size: f.Size,
		})
	}
	displayName := r.DisplayName
	if displayName == "" {
		displayName = r.PackageName
	}
	return domain.NewDownloadRecord(r.PackageName, displayName, r.VersionCode, files)
}

// AddDownload handles POST /api/v1/downloads
func (h *DownloadHandler) AddDownload(c *gin.Context) {
	var req AddDownloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	record, created, err := h.downloads.Enqueue(req.Record())
	if err != nil {
		h.logger.Error("Failed to enqueue download", zap.String("package", req.PackageName), zap.Error(err))
		abortWithError(c, err)
		return
	}

	if !created {
		c.JSON(http.StatusOK, record)
		return
	}
	c.JSON(http.StatusCreated, record)
}

// GetDownload handles GET /api/v1/downloads/:package
func (h *DownloadHandler) GetDownload(c *gin.Context) {
	record, err := h.downloads.Get(c.Param("package"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// ListDownloads handles GET /api/v1/downloads
func (h *DownloadHandler) ListDownloads(c *gin.Context) {
	filters := make(map[string]interface{})

	if status := c.Query("status"); status != "" {
		if !domain.ValidateStatus(domain.DownloadStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filters["status"] = status
	}
	if installStatus := c.Query("install_status"); installStatus != "" {
		filters["install_status"] = installStatus
	}

	records, err := h.downloads.List(filters)
	if err != nil {
		h.logger.Error("Failed to list downloads", zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, records)
}

// GetStats handles GET /api/v1/downloads/stats
func (h *DownloadHandler) GetStats(c *gin.Context) {
	stats, err := h.downloads.Stats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CancelDownload handles POST /api/v1/downloads/:package/cancel
func (h *DownloadHandler) CancelDownload(c *gin.Context) {
	h.transition(c, "cancel", h.downloads.Cancel)
}

// PauseDownload handles POST /api/v1/downloads/:package/pause
func (h *DownloadHandler) PauseDownload(c *gin.Context) {
	h.transition(c, "pause", h.downloads.Pause)
}

// ResumeDownload handles POST /api/v1/downloads/:package/resume
func (h *DownloadHandler) ResumeDownload(c *gin.Context) {
	h.transition(c, "resume", h.downloads.Resume)
}

// RetryDownload handles POST /api/v1/downloads/:package/retry
func (h *DownloadHandler) RetryDownload(c *gin.Context) {
	h.transition(c, "retry", h.downloads.Retry)
}

func (h *DownloadHandler) transition(c *gin.Context, action string, op func(string) (*domain.DownloadRecord, error)) {
	packageName := c.Param("package")

	record, err := op(packageName)
	if err != nil {
		h.logger.Warn("Download action failed",
			zap.String("action", action),
			zap.String("package", packageName),
			zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, record)
}

// DeleteDownload handles DELETE /api/v1/downloads/:package
func (h *DownloadHandler) DeleteDownload(c *gin.Context) {
	packageName := c.Param("package")

	if err := h.downloads.Remove(packageName); err != nil {
		h.logger.Error("Failed to remove download", zap.String("package", packageName), zap.Error(err))
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "download removed"})
}
