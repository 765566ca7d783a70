package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/GueYatma/koktek-front/internal/scanner"
	"github.com/GueYatma/koktek-front/internal/service"
)

func vendorCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vendor",
		Short: "Vendor desk: look up orders and confirm cash payments",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "lookup <order id, number or QR URL>",
		Short: "Show an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVendor(flags, func(v *service.Vendor) error {
				order, err := v.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printOrder(cmd.OutOrStdout(), order)
			})
		},
	})

	var outDir string
	confirm := &cobra.Command{
		Use:   "confirm <order id>",
		Short: "Mark an order paid in cash and write its receipt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVendor(flags, func(v *service.Vendor) error {
				return confirmCash(cmd.Context(), cmd.OutOrStdout(), v, args[0], outDir)
			})
		},
	}
	confirm.Flags().StringVarP(&outDir, "out", "o", ".", "Directory the receipt PDF is written to")
	cmd.AddCommand(confirm)

	var (
		confirmScanned bool
		scanOut        string
	)
	scan := &cobra.Command{
		Use:   "scan <image>...",
		Short: "Decode an order QR code from image files and show the order",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVendor(flags, func(v *service.Vendor) error {
				s := scanner.New(scanner.FileCamera{Paths: args})
				defer s.Close()
				order, err := v.LookupScanned(cmd.Context(), s)
				if err != nil {
					return err
				}
				if err := printOrder(cmd.OutOrStdout(), order); err != nil {
					return err
				}
				if !confirmScanned {
					return nil
				}
				return confirmCash(cmd.Context(), cmd.OutOrStdout(), v, order.ID, scanOut)
			})
		},
	}
	scan.Flags().BoolVar(&confirmScanned, "confirm", false, "Also confirm the cash payment")
	scan.Flags().StringVarP(&scanOut, "out", "o", ".", "Directory the receipt PDF is written to")
	cmd.AddCommand(scan)

	return cmd
}

func withVendor(flags *globalFlags, fn func(*service.Vendor) error) error {
	a, err := newApp(flags)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a.vendor())
}

func confirmCash(ctx context.Context, w io.Writer, v *service.Vendor, orderID, outDir string) error {
	paid, err := v.ConfirmCash(ctx, orderID)
	if errors.Is(err, service.ErrReceiptFailed) {
		fmt.Fprintf(w, "Order %s marked paid; receipt could not be generated.\n", orderID)
		return err
	}
	if err != nil {
		return err
	}
	path := filepath.Join(outDir, paid.Filename)
	if err := os.WriteFile(path, paid.PDF, 0o644); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	fmt.Fprintf(w, "Order %s marked paid. Receipt: %s\n", paid.Order.OrderNumber, path)
	return nil
}

func printOrder(w io.Writer, order *service.VendorOrder) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(order)
}
