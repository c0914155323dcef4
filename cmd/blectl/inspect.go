package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-ble/ble"
	"github.com/spf13/cobra"

	"github.com/dennisblokland/btleplug-c/internal/attrbuf"
	"github.com/dennisblokland/btleplug-c/internal/central"
	"github.com/dennisblokland/btleplug-c/internal/hwaddr"
	"github.com/dennisblokland/btleplug-c/internal/status"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <address>",
	Short: "Connect to a device and list its GATT database",
	Long: `Connect to a Bluetooth Low Energy device by hardware address, discover its
services, and print the full attribute tree: services, characteristics with
their property flags, and descriptors.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

var inspectTimeout time.Duration

// inspectOut is swapped in tests to capture the rendered tree.
var inspectOut io.Writer = os.Stdout

func init() {
	inspectCmd.Flags().DurationVarP(&inspectTimeout, "timeout", "t", 0, "Overall timeout (0 uses the configured connect timeout)")
}

func runInspect(cmd *cobra.Command, args []string) error {
	logger, cfg, err := configureLogger(cmd)
	if err != nil {
		return err
	}

	target, err := hwaddr.Compact(args[0])
	if err != nil {
		return fmt.Errorf("invalid device address %q: %w", args[0], err)
	}

	timeout := cfg.ConnectTimeout.Std()
	if inspectTimeout > 0 {
		timeout = inspectTimeout
	}

	cmd.SilenceUsage = true

	module, err := central.NewModule(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize BLE central: %w", err)
	}
	defer module.Close()

	matched := make(chan *central.Peripheral, 1)
	err = module.SetEventCallbacks(func(p *central.Peripheral, advertised bool) bool {
		if p.Address() != target {
			return false
		}
		select {
		case matched <- p:
			return true
		default:
			// Already holding a handle for this device.
			return false
		}
	}, nil)
	if err != nil {
		return err
	}

	if err := module.StartScan(nil); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	var p *central.Peripheral
	select {
	case p = <-matched:
	case <-time.After(timeout):
		_ = module.StopScan()
		return fmt.Errorf("device %s not found within %s", hwaddr.Expand(target), timeout)
	}
	defer p.Close()

	if err := module.StopScan(); err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if err := await(timeout, p.Connect); err != nil {
		return fmt.Errorf("failed to connect to %s: %w", hwaddr.Expand(target), err)
	}
	defer func() {
		_ = p.Disconnect(func(status.Code) {})
	}()

	if err := await(timeout, p.DiscoverServices); err != nil {
		return fmt.Errorf("service discovery failed: %w", err)
	}

	return displayServiceTree(inspectOut, hwaddr.Expand(target), p.Services())
}

// await runs one callback-completing operation synchronously.
func await(timeout time.Duration, accept func(central.CompletionFunc) error) error {
	done := make(chan status.Code, 1)
	if err := accept(func(code status.Code) { done <- code }); err != nil {
		return err
	}
	select {
	case code := <-done:
		if code != status.Success {
			return fmt.Errorf("operation failed: %s", code)
		}
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("timed out after %s", timeout)
	}
}

var propertyNames = []struct {
	bit  uint8
	name string
}{
	{uint8(ble.CharBroadcast), "broadcast"},
	{uint8(ble.CharRead), "read"},
	{uint8(ble.CharWriteNR), "write-without-response"},
	{uint8(ble.CharWrite), "write"},
	{uint8(ble.CharNotify), "notify"},
	{uint8(ble.CharIndicate), "indicate"},
	{uint8(ble.CharSignedWrite), "signed-write"},
	{uint8(ble.CharExtended), "extended"},
}

func propertyString(mask uint8) string {
	var names []string
	for _, p := range propertyNames {
		if mask&p.bit != 0 {
			names = append(names, p.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func displayServiceTree(out io.Writer, address string, services []attrbuf.Service) error {
	bold := color.New(color.Bold)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	fmt.Fprintf(out, "Device %s: %d services\n", bold.Sprint(address), len(services))
	for _, svc := range services {
		fmt.Fprintf(out, "%s %s\n", cyan.Sprint("service"), svc.UUID)
		for _, chr := range svc.Characteristics {
			fmt.Fprintf(out, "  %s %s [%s]\n",
				yellow.Sprint("characteristic"), chr.UUID, propertyString(chr.Properties))
			for _, d := range chr.Descriptors {
				fmt.Fprintf(out, "    descriptor %s\n", d.UUID)
			}
		}
	}
	return nil
}
