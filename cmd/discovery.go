// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/xbeestat/pkg/link"
)

var (
	discoveryTimeout int
	discoveryNode    string
	discoveryNoSave  bool
	discoveryKnown   bool
)

var discoveryCmd = &cobra.Command{
	Use:   "discovery",
	Short: "Discover remote devices on the network",
	Long: `Run node discovery (ATND) and list the devices that answered.

Every node that answers within the timeout is added to the device registry.
Known devices are loaded from the device database before discovery and the
merged registry is saved afterwards, so addresses and node identifiers
survive between runs.

With --node only the device with that node identifier is looked up.
With --known the stored devices are printed without touching the radio.

Examples:
  # Discover everything on the network
  xbeestat discovery --port /dev/ttyUSB0

  # Find a single node
  xbeestat discovery --node Yoda --port /dev/ttyUSB0

Exit codes:
  0 - Discovery successful (at least one device found)
  1 - Discovery failed (no devices or timeout)
  2 - Connection error`,
	RunE: runDiscovery,
}

func init() {
	rootCmd.AddCommand(discoveryCmd)
	discoveryCmd.Flags().IntVar(&discoveryTimeout, "timeout", 0, "Timeout in seconds (0 asks the module for NT)")
	discoveryCmd.Flags().StringVar(&discoveryNode, "node", "", "Discover only the node with this identifier")
	discoveryCmd.Flags().BoolVar(&discoveryNoSave, "no-save", false, "Do not write discovered devices to the database")
	discoveryCmd.Flags().BoolVar(&discoveryKnown, "known", false, "List stored devices without running discovery")
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if discoveryKnown {
		return listKnownDevices(cmd)
	}

	conn, connInfo, err := openFramedLink(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	db, err := openStore(ctx, conn)
	if err != nil {
		logger.Warn("device store unavailable", "error", err)
	} else {
		defer db.Close()
	}

	timeout := time.Duration(discoveryTimeout) * time.Second

	fmt.Printf("xbeestat - Device Discovery\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Protocol: %s\n", conn.Protocol())
	if timeout > 0 {
		fmt.Printf("Timeout: %s\n\n", timeout)
	} else {
		fmt.Printf("Timeout: module NT\n\n")
	}

	var found []*link.RemoteDevice
	if discoveryNode != "" {
		dev, derr := conn.DiscoverNode(ctx, discoveryNode, timeout)
		if dev != nil {
			found = []*link.RemoteDevice{dev}
		}
		err = derr
	} else {
		found, err = conn.Discover(ctx, timeout)
	}

	if db != nil && !discoveryNoSave && len(found) > 0 {
		if serr := db.SaveRegistry(ctx, conn.Registry()); serr != nil {
			logger.Warn("saving devices failed", "error", serr)
		}
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
		conn.Close()
		os.Exit(1)
	}
	if len(found) == 0 {
		fmt.Fprintf(os.Stderr, "No devices found\n")
		conn.Close()
		os.Exit(1)
	}

	printDevices(found)
	fmt.Printf("\n%d device(s) found, %d known\n", len(found), conn.Registry().Len())
	return nil
}

// listKnownDevices prints the devices stored for the configured protocol.
func listKnownDevices(cmd *cobra.Command) error {
	ctx := cmd.Context()
	registry := link.NewRegistry(cfg.Device.ProtocolFamily())

	db, err := openStoreOnly(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.RestoreRegistry(ctx, registry); err != nil {
		return err
	}
	if registry.Len() == 0 {
		fmt.Printf("No stored devices in %s\n", db.Path())
		return nil
	}
	printDevices(registry.Devices())
	return nil
}

// printDevices prints a device table.
func printDevices(devices []*link.RemoteDevice) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDR64\tADDR16\tNODE ID\tTYPE\tLAST SEEN")
	for _, d := range devices {
		nodeID := d.NodeID()
		if nodeID == "" {
			nodeID = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			d.Addr64(), d.Addr16(), nodeID, d.DeviceType(),
			d.LastSeen().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}
