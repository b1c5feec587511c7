package cli

import (
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
	"github.com/nixxel-company-limited/escpos-receipt-server/config"
	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
	"github.com/nixxel-company-limited/escpos-receipt-server/job"
)

// deps are the hardware seams the commands run against
type deps struct {
	bus     adapter.Bus
	factory adapter.Factory
	logger  *log.Logger
}

func usbDeps() deps {
	return deps{
		bus:     adapter.NewUSBBus(),
		factory: adapter.USBFactory(nil),
	}
}

func Execute() {
	cmd := newRootCmd(usbDeps())
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(d deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "escpos-receipt-server",
		Short:        "Print JSON receipts on USB ESC/POS printers",
		SilenceUsage: true,
	}

	cmd.AddCommand(serveCmd(d))
	cmd.AddCommand(printersCmd(d))
	cmd.AddCommand(printCmd(d))
	return cmd
}

// newOrchestrator wires the printer settings of cfg into a job orchestrator
func newOrchestrator(cfg *config.Config, d deps, opts ...job.Option) (*job.Orchestrator, error) {
	encoder, err := escpos.NewEncoder(cfg.Printer.CodePage)
	if err != nil {
		return nil, err
	}

	base := []job.Option{
		job.WithEncoder(encoder),
		job.WithDeadline(cfg.Printer.JobTimeout),
		job.WithReleaseGrace(cfg.Printer.ReleaseGrace),
		job.WithLogger(d.logger),
	}
	return job.New(adapter.NewRegistry(d.bus), d.factory, append(base, opts...)...), nil
}
