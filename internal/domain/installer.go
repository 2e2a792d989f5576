package domain

// InstallerKind identifies an install strategy
type InstallerKind string

const (
	InstallerSession    InstallerKind = "session"
	InstallerNative     InstallerKind = "native"
	InstallerPrivileged InstallerKind = "privileged"
)

// SplitAPKMinSDK is the first Android API level with split APK support
const SplitAPKMinSDK = 21

// InstallerChoice describes what an install strategy can do
type InstallerChoice struct {
	Kind               InstallerKind `json:"kind"`
	CanInstallSilently bool          `json:"can_install_silently"`
	SupportsSplits     bool          `json:"supports_splits"`
	MinSDK             int           `json:"min_sdk"`
	RequiresRoot       bool          `json:"requires_root"`
	// FallbackFrom is the preferred kind when the device forced another one
	FallbackFrom InstallerKind `json:"fallback_from,omitempty"`
}

var installerChoices = map[InstallerKind]InstallerChoice{
	InstallerSession: {
		Kind:           InstallerSession,
		SupportsSplits: true,
		MinSDK:         SplitAPKMinSDK,
	},
	InstallerNative: {
		Kind: InstallerNative,
	},
	InstallerPrivileged: {
		Kind:               InstallerPrivileged,
		CanInstallSilently: true,
		SupportsSplits:     true,
		MinSDK:             SplitAPKMinSDK,
		RequiresRoot:       true,
	},
}

// ChoiceFor returns the capability table entry for a kind
func ChoiceFor(kind InstallerKind) (InstallerChoice, bool) {
	c, ok := installerChoices[kind]
	return c, ok
}

// ValidateInstallerKind checks if an installer kind is valid
func ValidateInstallerKind(kind InstallerKind) bool {
	_, ok := installerChoices[kind]
	return ok
}

// DeviceInfo holds the OS capabilities that drive installer selection
type DeviceInfo struct {
	SDK    int  `json:"sdk"`
	Rooted bool `json:"rooted"`
}

// InstallResult is the asynchronous outcome of an install request
type InstallResult struct {
	PackageName string
	Strategy    InstallerKind
	Err         error
}
