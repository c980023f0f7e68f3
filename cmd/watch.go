package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"realtime_dashboard/dashboard"
	"realtime_dashboard/subscription"
)

// NewWatchCmd creates the `watch` command.
func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch <category>",
		Short: "Follow a category's live updates",
		Long: `Subscribe to a category on a running server and print every change.
The stream is retried with exponential backoff; after the retries are used
up the command falls back to polling the data endpoint.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			category, err := dashboard.ParseCategory(args[0])
			if err != nil {
				return err
			}
			cfg, logger, err := setup(cmd)
			if err != nil {
				return err
			}
			defer logger.Sync()

			baseURL, _ := cmd.Flags().GetString("url")
			if baseURL == "" {
				baseURL = "http://" + cfg.Addr()
			}

			subCfg := subscription.DefaultConfig(baseURL, category)
			subCfg.Logger = logger.Named("watch")
			if polling, _ := cmd.Flags().GetBool("polling"); polling {
				subCfg.Mode = subscription.ModePolling
			}
			if retries, _ := cmd.Flags().GetInt("max-retries"); retries > 0 {
				subCfg.MaxRetries = retries
			}
			if interval, _ := cmd.Flags().GetDuration("poll-interval"); interval > 0 {
				subCfg.PollInterval = interval
			}

			sub, err := subscription.New[json.RawMessage](subCfg, nil)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sub.Start(ctx)
			go func() {
				<-ctx.Done()
				sub.Close()
			}()

			printer := newStatePrinter(cmd.OutOrStdout(), category)
			for state := range sub.Updates() {
				printer.Print(state)
			}
			return nil
		},
	}
	cmd.Flags().String("url", "", "Server base URL (default: http://HOST:PORT from the configuration)")
	cmd.Flags().Bool("polling", false, "Poll the data endpoint instead of streaming")
	cmd.Flags().Int("max-retries", 0, "Stream reconnections before falling back to polling (default 5)")
	cmd.Flags().Duration("poll-interval", 0, "Interval between polling requests (default 10s)")
	return cmd
}

// statePrinter writes subscription states as they change, one line per
// status change and one per new snapshot.
type statePrinter struct {
	out         io.Writer
	category    dashboard.Category
	now         func() time.Time
	lastStatus  string
	lastData    []byte
	lastUpdated string
}

func newStatePrinter(out io.Writer, category dashboard.Category) *statePrinter {
	return &statePrinter{out: out, category: category, now: time.Now}
}

func (p *statePrinter) Print(state subscription.State[json.RawMessage]) {
	stamp := color.New(color.FgHiBlack).Sprint(p.now().Format("15:04:05"))

	status := state.Phase.String()
	if state.Error != "" {
		status += ": " + state.Error
	}
	if status != p.lastStatus {
		p.lastStatus = status
		fmt.Fprintf(p.out, "%s %s\n", stamp, phaseColor(state.Phase).Sprint(status))
	}

	if len(state.Data) > 0 && !bytes.Equal(state.Data, p.lastData) {
		p.lastData = append(p.lastData[:0], state.Data...)
		var compact bytes.Buffer
		if err := json.Compact(&compact, state.Data); err != nil {
			compact.Reset()
			compact.Write(state.Data)
		}
		fmt.Fprintf(p.out, "%s %s %s\n", stamp, color.New(color.FgCyan, color.Bold).Sprint(p.category), compact.String())
	}

	if state.LastUpdated != nil && *state.LastUpdated != p.lastUpdated {
		p.lastUpdated = *state.LastUpdated
		fmt.Fprintf(p.out, "%s last updated %s\n", stamp, p.lastUpdated)
	}
}

func phaseColor(phase subscription.Phase) *color.Color {
	switch phase {
	case subscription.PhaseConnected:
		return color.New(color.FgGreen)
	case subscription.PhaseReconnecting, subscription.PhasePolling:
		return color.New(color.FgYellow)
	case subscription.PhaseClosed:
		return color.New(color.FgHiBlack)
	default:
		return color.New(color.FgWhite)
	}
}
