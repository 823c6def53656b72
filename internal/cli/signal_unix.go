//go:build !windows

package cli

import (
	"os"
	"os/signal"
	"syscall"
)

func notifyWake(ch chan<- os.Signal) {
	signal.Notify(ch, syscall.SIGUSR1)
}
