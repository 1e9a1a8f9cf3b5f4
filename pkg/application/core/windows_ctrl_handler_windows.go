//go:build windows

package core

import (
	"context"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

var ctrlOnce sync.Once

// InstallWindowsCtrlHandler turns console close, logoff and shutdown events into a single cancel.
func InstallWindowsCtrlHandler(cancel context.CancelFunc, timeout time.Duration) {
	handler := func(ctrlType uint32) uintptr {
		switch ctrlType {
		case 0, 1, 2, 5, 6: // CTRL_C, CTRL_BREAK, CLOSE, LOGOFF, SHUTDOWN
			ctrlOnce.Do(func() {
				zap.L().Info("console control event received", zap.Uint32("event", ctrlType), zap.Duration("grace", timeout))
				cancel()
			})
			return 1
		default:
			return 0
		}
	}
	proc := syscall.NewLazyDLL("kernel32.dll").NewProc("SetConsoleCtrlHandler")
	if ret, _, err := proc.Call(syscall.NewCallback(handler), 1); ret == 0 {
		zap.L().Warn("SetConsoleCtrlHandler failed", zap.Error(err))
	}
}
