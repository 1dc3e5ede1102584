package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/lockdown"
	"github.com/gomux/remotexpc/internal/muxclient"
)

const lockdownPort = 62078

var startServiceCmd = &cobra.Command{
	Use:   "start-service <udid> <service-name>",
	Short: "Start a lockdown service on a device and print its port",
	Args:  cobra.ExactArgs(2),
	RunE:  runStartService,
}

func runStartService(cmd *cobra.Command, args []string) error {
	udid, serviceName := args[0], args[1]

	ctx, cancel := context.WithTimeout(context.Background(), resolvedCfg.Timeouts.LockdownRequest)
	defer cancel()

	muxer, err := muxclient.Dial(ctx, resolvedCfg.Muxer.SocketAddress, 1<<20)
	if err != nil {
		return fmt.Errorf("dial muxer: %w", err)
	}
	defer muxer.Close()

	device, err := findDeviceByUDID(ctx, muxer, udid)
	if err != nil {
		return err
	}

	pairRecord, err := muxer.ReadPairRecord(ctx, udid)
	if err != nil {
		return fmt.Errorf("read pair record: %w", err)
	}

	conn, err := muxer.Connect(ctx, device.DeviceID, lockdownPort)
	if err != nil {
		return fmt.Errorf("connect to lockdown: %w", err)
	}
	defer conn.Close()

	client := lockdown.New(conn)

	sessionID, enableSessionSSL, err := client.StartSession(ctx, pairRecord.HostID, pairRecord.SystemBUID, resolvedCfg.Timeouts.LockdownRequest)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if enableSessionSSL {
		if err := client.TryUpgradeTLS(ctx, pairRecord); err != nil {
			return fmt.Errorf("upgrade TLS: %w", err)
		}
	}

	port, enableServiceSSL, err := client.StartService(ctx, serviceName, nil)
	if err != nil {
		return fmt.Errorf("start service %s: %w", serviceName, err)
	}

	if flagOutput == "json" {
		return newJSONEncoder(os.Stdout).Encode(struct {
			SessionID string `json:"session_id"`
			Service   string `json:"service"`
			Port      uint16 `json:"port"`
			TLS       bool   `json:"tls"`
		}{sessionID, serviceName, port, enableServiceSSL})
	}

	fmt.Printf("service:    %s\n", serviceName)
	fmt.Printf("port:       %d\n", port)
	fmt.Printf("tls:        %t\n", enableServiceSSL)
	fmt.Printf("session id: %s\n", sessionID)
	return nil
}

func findDeviceByUDID(ctx context.Context, client *muxclient.Client, udid string) (muxclient.Device, error) {
	devices, err := client.ListDevices(ctx)
	if err != nil {
		return muxclient.Device{}, fmt.Errorf("list devices: %w", err)
	}
	for _, d := range devices {
		if d.Properties.SerialNumber == udid {
			return d, nil
		}
	}
	return muxclient.Device{}, fmt.Errorf("no attached device with udid %q", udid)
}
