//go:build !linux

package hal

import (
	"fmt"
	"runtime"

	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
)

func openLinux(config.HardwareConfig) (*Board, error) {
	return nil, fmt.Errorf("%w: linux peripherals on %s", ErrUnsupportedMode, runtime.GOOS)
}
