package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"realtime_dashboard/core"
)

// serviceStopTimeout bounds how long Stop waits for the server to exit.
const serviceStopTimeout = 45 * time.Second

// program implements service.Interface around runServer.
type program struct {
	cfg    *core.Config
	logger *zap.Logger

	cancel context.CancelFunc
	exit   chan struct{}
	err    error
}

// Start is called by the service manager. It must not block.
func (p *program) Start(s service.Service) error {
	var ctx context.Context
	ctx, p.cancel = context.WithCancel(context.Background())
	p.exit = make(chan struct{})

	go func() {
		defer close(p.exit)
		p.err = runServer(ctx, p.cfg, p.logger)
		if p.err != nil {
			p.logger.Error("Dashboard exited with error", zap.Error(p.err))
		}
	}()
	return nil
}

// Stop asks the server to shut down gracefully and waits for it.
func (p *program) Stop(s service.Service) error {
	if p.cancel == nil {
		return nil
	}
	p.cancel()

	select {
	case <-p.exit:
		return nil
	case <-time.After(serviceStopTimeout):
		return fmt.Errorf("timeout waiting for service to stop")
	}
}

// serviceConfig describes the installed service. It runs `dashboard
// service run` so the service manager's lifecycle reaches the program.
func serviceConfig() *service.Config {
	return &service.Config{
		Name:        "realtime-dashboard",
		DisplayName: "Real-time Dashboard",
		Description: "Serves dashboard metrics and streams their changes to clients",
		Arguments:   []string{"service", "run"},
		Option: service.KeyValue{
			"StartType": "automatic",
			"Restart":   "on-failure",
		},
	}
}

// NewServiceCmd creates the `service` command and its subcommands.
func NewServiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Install and control the dashboard as a system service",
	}

	newService := func(cmd *cobra.Command) (service.Service, *program, error) {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return nil, nil, err
		}
		prg := &program{cfg: cfg, logger: logger}
		s, err := service.New(prg, serviceConfig())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create service: %w", err)
		}
		return s, prg, nil
	}

	control := func(action, done string) *cobra.Command {
		return &cobra.Command{
			Use:   action,
			Short: fmt.Sprintf("%s the service", action),
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				s, _, err := newService(cmd)
				if err != nil {
					return err
				}
				if err := service.Control(s, action); err != nil {
					return fmt.Errorf("failed to %s service: %w", action, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Service %s successfully\n", done)
				return nil
			},
		}
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Run under the service manager",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, prg, err := newService(cmd)
			if err != nil {
				return err
			}
			if err := s.Run(); err != nil {
				return fmt.Errorf("service run failed: %w", err)
			}
			return prg.err
		},
	}

	cmd.AddCommand(
		control("install", "installed"),
		control("uninstall", "uninstalled"),
		control("start", "started"),
		control("stop", "stopped"),
		control("restart", "restarted"),
		run,
	)
	return cmd
}
