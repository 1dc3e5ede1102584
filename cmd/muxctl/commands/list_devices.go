package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/cliutil"
	"github.com/gomux/remotexpc/internal/muxclient"
)

var listDevicesCmd = &cobra.Command{
	Use:   "list-devices",
	Short: "List devices attached to the muxer",
	RunE:  runListDevices,
}

func runListDevices(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), resolvedCfg.Timeouts.MuxRequest)
	defer cancel()

	client, err := muxclient.Dial(ctx, resolvedCfg.Muxer.SocketAddress, 1<<20)
	if err != nil {
		return fmt.Errorf("dial muxer: %w", err)
	}
	defer client.Close()

	devices, err := client.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}

	if flagOutput == "json" {
		return printDevicesJSON(devices)
	}

	table := cliutil.NewTableData("DEVICE ID", "SERIAL", "CONNECTION", "PRODUCT ID", "LOCATION ID")
	for _, d := range devices {
		table.AddRow(
			strconv.FormatUint(uint64(d.DeviceID), 10),
			d.Properties.SerialNumber,
			d.Properties.ConnectionType,
			strconv.FormatInt(d.Properties.ProductID, 10),
			strconv.FormatInt(d.Properties.LocationID, 10),
		)
	}
	cliutil.PrintTable(os.Stdout, table)
	return nil
}

func printDevicesJSON(devices []muxclient.Device) error {
	enc := newJSONEncoder(os.Stdout)
	return enc.Encode(devices)
}
