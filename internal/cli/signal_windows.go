package cli

import "os"

// Windows has no SIGUSR1; use `heartbeat wake` instead.
func notifyWake(ch chan<- os.Signal) {}
