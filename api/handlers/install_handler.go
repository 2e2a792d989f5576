package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// Installs is the install dispatcher surface exposed over HTTP
type Installs interface {
	State(packageName string) domain.InstallStatus
	Device() domain.DeviceInfo
	Select(packageName string, apkCount int) (domain.InstallerChoice, error)
}

// InstallHandler reports install state and installer selection
type InstallHandler struct {
	installs Installs
}

// NewInstallHandler creates a new install handler
func NewInstallHandler(installs Installs) *InstallHandler {
	return &InstallHandler{installs: installs}
}

// GetDevice handles GET /api/v1/installs/device
func (h *InstallHandler) GetDevice(c *gin.Context) {
	apks, err := strconv.Atoi(c.DefaultQuery("apks", "1"))
	if err != nil || apks < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "apks must be a non-negative integer"})
		return
	}

	response := gin.H{"device": h.installs.Device()}
	choice, err := h.installs.Select("", apks)
	if err != nil {
		response["error"] = err.Error()
		response["error_kind"] = domain.ErrorKind(err)
	} else {
		response["installer"] = choice
	}
	c.JSON(http.StatusOK, response)
}

// GetInstall handles GET /api/v1/installs/:package
func (h *InstallHandler) GetInstall(c *gin.Context) {
	packageName := c.Param("package")
	c.JSON(http.StatusOK, gin.H{
		"package_name": packageName,
		"state":        h.installs.State(packageName),
	})
}
