package installer

import (
	"context"
	"fmt"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// Strategy installs a staged file set with one installer kind
type Strategy interface {
	Kind() domain.InstallerKind
	Install(ctx context.Context, packageName string, paths []string) error
}

// SessionInstaller uses a package installer session, which accepts split APKs
type SessionInstaller struct {
	pm *pmClient
}

// NewSessionInstaller creates the session strategy
func NewSessionInstaller(runner Runner) *SessionInstaller {
	return &SessionInstaller{pm: &pmClient{runner: runner, strategy: domain.InstallerSession}}
}

func (s *SessionInstaller) Kind() domain.InstallerKind { return domain.InstallerSession }

func (s *SessionInstaller) Install(ctx context.Context, packageName string, paths []string) error {
	return installSession(ctx, s.pm, packageName, paths)
}

// PrivilegedInstaller runs the session sequence as root and installs silently
type PrivilegedInstaller struct {
	pm *pmClient
}

// NewPrivilegedInstaller creates the root strategy
func NewPrivilegedInstaller(runner Runner) *PrivilegedInstaller {
	return &PrivilegedInstaller{pm: &pmClient{runner: runner, su: true, strategy: domain.InstallerPrivileged}}
}

func (s *PrivilegedInstaller) Kind() domain.InstallerKind { return domain.InstallerPrivileged }

func (s *PrivilegedInstaller) Install(ctx context.Context, packageName string, paths []string) error {
	return installSession(ctx, s.pm, packageName, paths)
}

// NativeInstaller installs a single APK without a session
type NativeInstaller struct {
	pm *pmClient
}

// NewNativeInstaller creates the single-file strategy
func NewNativeInstaller(runner Runner) *NativeInstaller {
	return &NativeInstaller{pm: &pmClient{runner: runner, strategy: domain.InstallerNative}}
}

func (s *NativeInstaller) Kind() domain.InstallerKind { return domain.InstallerNative }

func (s *NativeInstaller) Install(ctx context.Context, packageName string, paths []string) error {
	if len(paths) != 1 {
		return &domain.UnsupportedInstallerConfigurationError{
			PackageName: packageName,
			Strategy:    domain.InstallerNative,
			Reason:      fmt.Sprintf("native installer takes exactly one apk, got %d", len(paths)),
		}
	}
	return s.pm.install(ctx, packageName, paths[0])
}

func installSession(ctx context.Context, pm *pmClient, packageName string, paths []string) error {
	session, err := pm.createSession(ctx, packageName, totalSize(paths))
	if err != nil {
		return err
	}

	for i, path := range paths {
		if err := pm.writeSession(ctx, packageName, session, i, path); err != nil {
			pm.abandon(context.WithoutCancel(ctx), packageName, session)
			return err
		}
	}

	return pm.commit(ctx, packageName, session)
}
