//go:build !windows

package svchub

import (
	"os"
	"syscall"
)

// terminationSignals request an orderly stop. allSignals additionally
// includes the platform-specific reload signal (spec §4.4 "A 'reload'
// signal (platform-specific) sets reload_req").
var terminationSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
var allSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1}

func isReloadSignal(sig os.Signal) bool { return sig == syscall.SIGUSR1 }

// killSelf sends SIGKILL to the current process, the (N+1)-th grace
// signal escalation and the kill9() backstop both reach for.
func killSelf() {
	_ = syscall.Kill(os.Getpid(), syscall.SIGKILL)
}
