package installer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/yourusername/aurora-dl/internal/domain"
)

// DetectDevice resolves the SDK level and root availability.
// Config values win; anything left unset is asked of the device.
func DetectDevice(ctx context.Context, runner Runner, config *domain.InstallerConfig, logger *zap.Logger) domain.DeviceInfo {
	info := domain.DeviceInfo{SDK: config.SDK}

	if info.SDK <= 0 {
		sdk, err := readSDK(ctx, runner)
		if err != nil {
			logger.Warn("Could not read device SDK level, split installs will not be gated", zap.Error(err))
		}
		info.SDK = sdk
	}

	switch strings.ToLower(config.Root) {
	case "true", "yes":
		info.Rooted = true
	case "false", "no":
		info.Rooted = false
	default:
		info.Rooted = detectRoot(ctx, runner)
	}

	logger.Info("Device capabilities",
		zap.Int("sdk", info.SDK),
		zap.Bool("rooted", info.Rooted))
	return info
}

func readSDK(ctx context.Context, runner Runner) (int, error) {
	out, err := runner.Run(ctx, "getprop", "ro.build.version.sdk")
	if err != nil {
		return 0, err
	}
	sdk, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("unexpected sdk value %q: %w", out, err)
	}
	return sdk, nil
}

func detectRoot(ctx context.Context, runner Runner) bool {
	out, err := runner.Run(ctx, "su", "-c", "id")
	return err == nil && strings.Contains(out, "uid=0")
}
