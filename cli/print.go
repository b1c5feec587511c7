package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-receipt-server/config"
	"github.com/nixxel-company-limited/escpos-receipt-server/escpos"
)

func printCmd(d deps) *cobra.Command {
	var (
		file       string
		printer    int
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print a receipt JSON file once",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read receipt: %w", err)
			}

			var receipt escpos.Receipt
			if err := json.Unmarshal(data, &receipt); err != nil {
				return fmt.Errorf("failed to parse receipt: %w", err)
			}

			index := cfg.Printer.Index
			if cmd.Flags().Changed("printer") {
				index = printer
			}

			orchestrator, err := newOrchestrator(cfg, d)
			if err != nil {
				return err
			}
			defer orchestrator.Wait()

			printJob, err := orchestrator.Print(cmd.Context(), &receipt, &index)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Print job %s sent successfully to %s\n", printJob.ID, printJob.Device)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Receipt JSON file")
	cmd.Flags().IntVarP(&printer, "printer", "p", 0, "Printer ID from the printers command")
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the YAML config file (skipped if missing)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
