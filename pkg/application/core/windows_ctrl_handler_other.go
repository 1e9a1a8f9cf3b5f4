//go:build !windows

package core

import (
	"context"
	"time"
)

// InstallWindowsCtrlHandler is a no-op outside Windows.
func InstallWindowsCtrlHandler(cancel context.CancelFunc, timeout time.Duration) {}
