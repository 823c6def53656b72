package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rcliao/agent-pulse/internal/clock"
	"github.com/rcliao/agent-pulse/internal/heartbeat"
)

func init() {
	heartbeatCmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run checks on a schedule until interrupted",
		Long: "Run checks every heartbeat.interval during active hours. SIGUSR1 requests an immediate wake; " +
			"SIGINT or SIGTERM stops the loop. The store is opened only for the duration of each check.",
		Args: cobra.NoArgs,
		Run:  runHeartbeatLoop,
	})
}

func runHeartbeatLoop(cmd *cobra.Command, args []string) {
	a := loadApp()

	open := func(ctx context.Context) (*heartbeat.Engine, func() error, error) {
		s, err := a.openStore()
		if err != nil {
			return nil, nil, err
		}
		e, err := a.engine(s)
		if err != nil {
			s.Close()
			return nil, nil, err
		}
		return e, s.Close, nil
	}
	r := heartbeat.NewRunner(open, a.cfg.Heartbeat.Interval, clock.Real(), a.log)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	wakes := make(chan os.Signal, 1)
	notifyWake(wakes)
	defer signal.Stop(wakes)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-wakes:
				r.Wake("signal")
			}
		}
	}()

	if err := r.Run(ctx); err != nil {
		exitErr("run", err)
	}
}
