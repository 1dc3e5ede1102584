package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gomux/remotexpc/internal/lockdown"
	"github.com/gomux/remotexpc/internal/muxclient"
	"github.com/gomux/remotexpc/internal/xpchandshake"
)

const defaultProxyService = "com.apple.internal.devicecompute.CoreDeviceProxy"

var flagProxyService string

var tunnelHandshakeCmd = &cobra.Command{
	Use:   "tunnel-handshake <udid>",
	Short: "Start the CoreDeviceProxy service and perform the XPC tunnel handshake",
	Args:  cobra.ExactArgs(1),
	RunE:  runTunnelHandshake,
}

func init() {
	tunnelHandshakeCmd.Flags().StringVar(&flagProxyService, "service", defaultProxyService, "lockdown service name fronting the tunnel")
}

func runTunnelHandshake(cmd *cobra.Command, args []string) error {
	udid := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), resolvedCfg.Timeouts.HandshakeOverall)
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

	lockdownConn, err := muxer.Connect(ctx, device.DeviceID, lockdownPort)
	if err != nil {
		return fmt.Errorf("connect to lockdown: %w", err)
	}
	defer lockdownConn.Close()

	client := lockdown.New(lockdownConn)
	sessionID, enableSessionSSL, err := client.StartSession(ctx, pairRecord.HostID, pairRecord.SystemBUID, resolvedCfg.Timeouts.LockdownRequest)
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	if enableSessionSSL {
		if err := client.TryUpgradeTLS(ctx, pairRecord); err != nil {
			return fmt.Errorf("upgrade TLS: %w", err)
		}
	}

	port, _, err := client.StartService(ctx, flagProxyService, nil)
	if err != nil {
		return fmt.Errorf("start service %s: %w", flagProxyService, err)
	}

	proxyMuxer, err := muxclient.Dial(ctx, resolvedCfg.Muxer.SocketAddress, 1<<20)
	if err != nil {
		return fmt.Errorf("dial muxer: %w", err)
	}
	defer proxyMuxer.Close()

	proxyConn, err := proxyMuxer.Connect(ctx, device.DeviceID, port)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", flagProxyService, err)
	}
	defer proxyConn.Close()

	handshake := xpchandshake.New(proxyConn)
	if err := handshake.Perform(ctx); err != nil {
		return fmt.Errorf("perform handshake: %w", err)
	}

	services, err := handshake.WaitForServices(ctx)
	if err != nil {
		return fmt.Errorf("wait for services: %w", err)
	}

	if flagOutput == "json" {
		return newJSONEncoder(os.Stdout).Encode(services)
	}

	fmt.Printf("session id: %s\n", sessionID)
	fmt.Printf("services advertised by %s:\n", flagProxyService)
	for name, svc := range services {
		fmt.Printf("  %-40s port %d\n", name, svc.Port)
	}
	return nil
}
