package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nozo-moto/netbw/internal/collector"
	"github.com/nozo-moto/netbw/internal/config"
	"github.com/nozo-moto/netbw/internal/logging"
	"github.com/nozo-moto/netbw/internal/monitor"
	"github.com/nozo-moto/netbw/internal/ui"
)

var errNoTerminal = errors.New("failed to get stdout: if you are trying to pipe 'netbw' you should use the --raw flag")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

func newRootCmd() *cobra.Command {
	var opts config.Options

	cmd := &cobra.Command{
		Use:   "netbw",
		Short: "Display current network utilization by process, connection and remote address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.Validate(); err != nil {
				return err
			}
			return run(opts)
		},
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	opts.BindFlags(cmd.Flags())

	return cmd
}

func run(opts config.Options) error {
	logger, logCloser, err := logging.New(opts.LogFile, opts.Debug)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	if err := checkOutput(opts, os.Stdout); err != nil {
		return err
	}

	sniffers, err := openSniffers(opts, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, s := range sniffers {
			s.Close()
		}
	}()

	input := monitor.Input{
		Sockets: collector.NewProcessCollector(logger),
	}
	for _, s := range sniffers {
		input.Sources = append(input.Sources, s)
	}

	if opts.Resolve() {
		dnsClient, err := collector.NewDNSClient(logger)
		if err != nil {
			return err
		}
		defer dnsClient.Close()
		input.Resolver = dnsClient
	}

	var display *ui.UI
	if opts.Raw {
		raw := ui.NewRawOutput(os.Stdout)
		stopSignals := interruptOnSignal(raw)
		defer stopSignals()

		input.Keys = raw.Keys()
		input.Platform = raw
		display = ui.New(nil, opts.Render)
	} else {
		terminal, err := ui.OpenTerminal()
		if err != nil {
			return fmt.Errorf("%w: %v", errNoTerminal, err)
		}

		input.Keys = terminal.Keys()
		input.Platform = terminal
		display = ui.New(terminal, opts.Render)
	}

	logger.Info("monitoring started", "interfaces", len(sniffers), "raw", opts.Raw, "resolve", opts.Resolve())
	m := monitor.New(input, monitor.Options{Raw: opts.Raw, ShowDNS: opts.ShowDNS}, display, logger)
	if err := m.Run(); err != nil {
		return err
	}
	logger.Info("monitoring stopped")
	return nil
}

// checkOutput fails interactive sessions whose output is not a terminal,
// before anything else is opened.
func checkOutput(opts config.Options, out *os.File) error {
	if opts.Raw || term.IsTerminal(int(out.Fd())) {
		return nil
	}
	return errNoTerminal
}

// openSniffers starts a capture on every selected interface. Interfaces that
// cannot be opened are skipped unless the user named one explicitly.
func openSniffers(opts config.Options, logger *log.Logger) ([]*collector.Sniffer, error) {
	ifaces, err := collector.NewNetworkCollector().GetActiveInterfaces(opts.Interface)
	if err != nil {
		return nil, err
	}

	var (
		sniffers []*collector.Sniffer
		errs     []error
	)
	for _, iface := range ifaces {
		s, err := collector.OpenLive(iface, opts.ShowDNS)
		if err != nil {
			logger.Warn("skipping interface", "interface", iface.Name, "err", err)
			errs = append(errs, err)
			continue
		}
		sniffers = append(sniffers, s)
	}

	if len(sniffers) == 0 {
		return nil, fmt.Errorf("failed to listen on any network interface (try running with elevated privileges): %w", errors.Join(errs...))
	}
	return sniffers, nil
}

// interruptOnSignal turns SIGINT and SIGTERM into the quit key of a raw
// session, which has no keyboard of its own.
func interruptOnSignal(raw *ui.RawOutput) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			raw.Interrupt()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
