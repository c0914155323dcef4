package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dennisblokland/btleplug-c/internal/central"
	"github.com/dennisblokland/btleplug-c/internal/hwaddr"
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan for BLE devices",
	Long: `Scan for and display Bluetooth Low Energy devices in the vicinity.

Each row shows the device identifier, its hardware address, the service
UUIDs it advertises, and when it was last seen. Filtering by service UUID
accepts short (16- and 32-bit) and full 128-bit forms.`,
	RunE: runScan,
}

var (
	scanDuration time.Duration
	scanFormat   string
	scanServices []string
)

// scanOut is swapped in tests to capture the rendered table.
var scanOut io.Writer = os.Stdout

func init() {
	scanCmd.Flags().DurationVarP(&scanDuration, "duration", "d", 0, "Scan duration (0 uses the configured default)")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "", "Output format (table, json)")
	scanCmd.Flags().StringSliceVarP(&scanServices, "services", "s", nil, "Filter by service UUIDs")
}

// deviceRow aggregates everything the scan has learned about one device.
type deviceRow struct {
	ID       string    `json:"id"`
	Address  string    `json:"address"`
	Services []string  `json:"services,omitempty"`
	LastSeen time.Time `json:"last_seen"`
}

func runScan(cmd *cobra.Command, args []string) error {
	logger, cfg, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	format := cfg.OutputFormat
	if scanFormat != "" {
		format = scanFormat
	}
	switch format {
	case "table", "json":
	default:
		return fmt.Errorf("invalid format '%s': must be one of [table json]", format)
	}

	duration := cfg.ScanTimeout.Std()
	if scanDuration > 0 {
		duration = scanDuration
	}

	filters, err := parseServiceFilters(append(cfg.ServiceFilters, scanServices...))
	if err != nil {
		return err
	}

	// All arguments validated - don't show usage on runtime errors
	cmd.SilenceUsage = true

	module, err := central.NewModule(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize BLE central: %w", err)
	}
	defer module.Close()

	devices := hashmap.New[uint64, *deviceRow]()
	err = module.SetEventCallbacks(func(p *central.Peripheral, advertised bool) bool {
		row, _ := devices.GetOrInsert(p.Address(), &deviceRow{
			ID:      p.ID(),
			Address: hwaddr.Expand(p.Address()),
		})
		row.LastSeen = time.Now()
		if advertised {
			row.Services = mergeServices(row.Services, p.AdvertisedServices())
		}
		// Handles are not retained beyond this callback.
		return false
	}, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(scanOut, "\nCtrl+C pressed, cancelling scan...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.WithFields(logrus.Fields{
		"duration": duration,
		"filters":  len(filters),
	}).Info("Starting BLE scan")

	if err := module.StartScan(filters); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	<-ctx.Done()
	if err := module.StopScan(); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}
	// Stop the dispatcher before reading the table it was feeding.
	module.Close()

	rows := collectRows(devices)
	if format == "json" {
		return displayDevicesJSON(scanOut, rows)
	}
	return displayDevicesTable(scanOut, rows)
}

func parseServiceFilters(raw []string) ([]uuid.UUID, error) {
	filters := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		u, err := central.ParseUUID(strings.TrimSpace(s))
		if err != nil {
			return nil, fmt.Errorf("invalid service UUID: %w", err)
		}
		filters = append(filters, u)
	}
	return filters, nil
}

// mergeServices folds newly advertised UUIDs into the known set, keeping
// first-seen order.
func mergeServices(known []string, advertised []uuid.UUID) []string {
	for _, u := range advertised {
		s := u.String()
		seen := false
		for _, k := range known {
			if k == s {
				seen = true
				break
			}
		}
		if !seen {
			known = append(known, s)
		}
	}
	return known
}

func collectRows(devices *hashmap.Map[uint64, *deviceRow]) []*deviceRow {
	rows := make([]*deviceRow, 0, devices.Len())
	devices.Range(func(_ uint64, row *deviceRow) bool {
		rows = append(rows, row)
		return true
	})
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Address < rows[j].Address
	})
	return rows
}

func displayDevicesJSON(out io.Writer, rows []*deviceRow) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}

func displayDevicesTable(out io.Writer, rows []*deviceRow) error {
	if len(rows) == 0 {
		fmt.Fprintln(out, "No devices discovered")
		return nil
	}

	header := color.New(color.Bold)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header.Sprint("ADDRESS\tSERVICES\tLAST SEEN"))
	fmt.Fprintln(w, strings.Repeat("-", 72))

	for _, row := range rows {
		services := strings.Join(row.Services, ",")
		if len(services) > 40 {
			services = services[:37] + "..."
		}
		fmt.Fprintf(w, "%s\t%s\t%s ago\n",
			row.Address, services, time.Since(row.LastSeen).Truncate(time.Second))
	}
	return w.Flush()
}
