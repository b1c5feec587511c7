package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nixxel-company-limited/escpos-receipt-server/adapter"
)

func printersCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List attached USB printers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			devices, err := adapter.NewRegistry(d.bus).Enumerate()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(devices) == 0 {
				fmt.Fprintln(out, "No USB printers found")
				return nil
			}

			fmt.Fprintf(out, "%-4s %-8s %-8s %-4s %s\n", "ID", "VENDOR", "PRODUCT", "BUS", "ADDRESS")
			for _, dev := range devices {
				fmt.Fprintf(out, "%-4d 0x%04x   0x%04x   %-4d %d\n", dev.Index, dev.VendorID, dev.ProductID, dev.Bus, dev.Address)
			}
			return nil
		},
	}
}
