package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/srg/blestream/internal/device"
	"github.com/srg/blestream/internal/scanner"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "List advertising BLE peripherals",
	Long: `Run a single discovery cycle and list every peripheral heard, in discovery
order. Peripherals whose name matches the configured device name are
highlighted; the first of them is the one "run" would connect to.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanName     string
)

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (defaults to device.scan_dwell)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "table", "Output format (table, json)")
	scanCmd.Flags().StringVarP(&scanName, "name", "n", "", "Name substring to highlight (defaults to device.name)")
}

func runScan(cmd *cobra.Command, _ []string) error {
	if scanFormat != "table" && scanFormat != "json" {
		return fmt.Errorf("invalid format '%s': must be one of [table json]", scanFormat)
	}

	cfg, err := readConfig(cmd, false)
	if err != nil {
		return err
	}
	logger, closer, err := configureLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	cmd.SilenceUsage = true

	dwell := cfg.Device.ScanDwell
	if scanDuration > 0 {
		dwell = scanDuration
	}
	name := cfg.Device.Name
	if scanName != "" {
		name = scanName
	}

	radio, err := radioFactory(logger, cfg.Device)
	if err != nil {
		return fmt.Errorf("failed to create BLE scanner: %w", err)
	}
	defer radio.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	s := scanner.NewScanner(radio, scanner.Options{Dwell: dwell, Backoff: cfg.Device.RetryBackoff}, logger)
	found, err := s.Discover(ctx)
	if err != nil {
		logger.WithError(err).Error("scan failed")
		return err
	}

	if scanFormat == "json" {
		return displayPeripheralsJSON(cmd.OutOrStdout(), found, name)
	}
	return displayPeripheralsTable(cmd.OutOrStdout(), found, name)
}

type peripheralView struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	RSSI    int    `json:"rssi"`
	Match   bool   `json:"match"`
}

func toViews(found []device.Peripheral, name string) []peripheralView {
	match := scanner.Match(found, name)
	views := make([]peripheralView, 0, len(found))
	for _, p := range found {
		views = append(views, peripheralView{
			Name:    p.Name(),
			Address: p.Address(),
			RSSI:    p.RSSI(),
			Match:   match != nil && p.Address() == match.Address(),
		})
	}
	return views
}

func displayPeripheralsTable(out io.Writer, found []device.Peripheral, name string) error {
	if len(found) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	highlight := color.New(color.FgGreen, color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tADDRESS\tRSSI\t")
	fmt.Fprintln(w, strings.Repeat("-", 60))

	for _, v := range toViews(found, name) {
		display := v.Name
		if display == "" {
			display = "(unnamed)"
		}
		display = truncateName(display, 24)
		marker := ""
		if v.Match {
			marker = highlight.Sprint("<- target")
		}
		fmt.Fprintf(w, "%s\t%s\t%d dBm\t%s\n", display, v.Address, v.RSSI, marker)
	}
	return w.Flush()
}

// truncateName shortens s to at most limit runes, marking the cut with "...".
func truncateName(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func displayPeripheralsJSON(out io.Writer, found []device.Peripheral, name string) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(toViews(found, name))
}
