package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/cliutil"
	"github.com/gomux/remotexpc/internal/muxclient"
	"github.com/gomux/remotexpc/internal/pairstore"
)

var pairRecordCmd = &cobra.Command{
	Use:   "pair-record <udid>",
	Short: "Fetch (and cache) a device's pair record",
	Args:  cobra.ExactArgs(1),
	RunE:  runPairRecord,
}

func runPairRecord(cmd *cobra.Command, args []string) error {
	udid := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), resolvedCfg.Timeouts.MuxRequest)
	defer cancel()

	client, err := muxclient.Dial(ctx, resolvedCfg.Muxer.SocketAddress, 1<<20)
	if err != nil {
		return fmt.Errorf("dial muxer: %w", err)
	}
	defer client.Close()

	record, err := client.ReadPairRecord(ctx, udid)
	if err != nil {
		return fmt.Errorf("read pair record: %w", err)
	}

	if err := cachePairRecord(ctx, udid, record); err != nil {
		PrintErr("warning: failed to cache pair record: %v", err)
	}

	if flagOutput == "json" {
		return newJSONEncoder(os.Stdout).Encode(record)
	}

	cliutil.KeyValueTable(os.Stdout, [][2]string{
		{"Host ID", record.HostID},
		{"System BUID", record.SystemBUID},
		{"Has TLS identity", fmt.Sprintf("%t", record.HasTLSIdentity())},
		{"WiFi MAC", record.WiFiMACAddress},
	})
	return nil
}

func cachePairRecord(ctx context.Context, udid string, record *muxclient.PairRecord) error {
	store, err := pairstore.Open(pairstore.Config{Dir: resolvedCfg.PairStore.Dir})
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Put(ctx, udid, record)
}
