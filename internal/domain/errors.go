package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrRecordNotFound is returned when no record exists for a package
	ErrRecordNotFound = errors.New("download record not found")
	// ErrInvalidRecord is returned for records that cannot be scheduled
	ErrInvalidRecord = errors.New("invalid download record")
	// ErrAlreadyInstalling is returned when an install for the package is in flight
	ErrAlreadyInstalling = errors.New("package is already installing")
	// ErrInvalidTransition is returned when an operation does not apply to the record's status
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInstallInterrupted marks an install that was cut short by shutdown or lost across a restart
	ErrInstallInterrupted = errors.New("install interrupted")
)

// Error kinds reported on records and events
const (
	KindNetworkFailure       = "network_failure"
	KindFileMissing          = "file_missing"
	KindInstallerRejected    = "installer_rejected"
	KindUnsupportedInstaller = "unsupported_installer"
	KindInterrupted          = "interrupted"
	KindUnknown              = "unknown"
)

// NetworkFailureError is reported by the download engine for a group
type NetworkFailureError struct {
	PackageName string
	URL         string
	Err         error
}

func (e *NetworkFailureError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("download of %s failed for %s: %v", e.PackageName, e.URL, e.Err)
	}
	return fmt.Sprintf("download of %s failed: %v", e.PackageName, e.Err)
}

func (e *NetworkFailureError) Unwrap() error {
	return e.Err
}

// FileMissingError is raised when a staged file is absent or truncated after completion
type FileMissingError struct {
	PackageName string
	Path        string
	Reason      string
}

func (e *FileMissingError) Error() string {
	return fmt.Sprintf("staged file for %s missing at %s: %s", e.PackageName, e.Path, e.Reason)
}

// InstallerRejectedError is an OS-level installer failure (e.g. signature mismatch)
type InstallerRejectedError struct {
	PackageName string
	Strategy    InstallerKind
	Code        string // e.g. INSTALL_FAILED_UPDATE_INCOMPATIBLE
	Message     string
	Err         error
}

func (e *InstallerRejectedError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s installer rejected %s: %s %s", e.Strategy, e.PackageName, e.Code, e.Message)
	}
	return fmt.Sprintf("%s installer rejected %s: %s", e.Strategy, e.PackageName, e.Message)
}

func (e *InstallerRejectedError) Unwrap() error {
	return e.Err
}

// UnsupportedInstallerConfigurationError is fatal to the install attempt
type UnsupportedInstallerConfigurationError struct {
	PackageName string
	Strategy    InstallerKind
	Reason      string
}

func (e *UnsupportedInstallerConfigurationError) Error() string {
	return fmt.Sprintf("%s installer cannot install %s: %s", e.Strategy, e.PackageName, e.Reason)
}

// ErrorKind classifies an error into the taxonomy used on records and events
func ErrorKind(err error) string {
	var (
		network     *NetworkFailureError
		missing     *FileMissingError
		rejected    *InstallerRejectedError
		unsupported *UnsupportedInstallerConfigurationError
	)
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInstallInterrupted):
		return KindInterrupted
	case errors.As(err, &network):
		return KindNetworkFailure
	case errors.As(err, &missing):
		return KindFileMissing
	case errors.As(err, &rejected):
		return KindInstallerRejected
	case errors.As(err, &unsupported):
		return KindUnsupportedInstaller
	default:
		return KindUnknown
	}
}
