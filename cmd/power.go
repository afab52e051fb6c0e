// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/loconet"
)

var powerCmd = &cobra.Command{
	Use:   "power {on|off}",
	Short: "Switch track power on or off",
	Long: `Send a global power message to the command station.

"on" sends GPON and restores track power everywhere, "off" sends GPOFF and
cuts it. The command drains the message onto the wire before exiting.`,
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"on", "off"},
	RunE:      runPower,
}

func init() {
	rootCmd.AddCommand(powerCmd)
}

func runPower(cmd *cobra.Command, args []string) error {
	l, connInfo, err := openLink()
	if err != nil {
		return err
	}

	var msg loconet.Message = loconet.PowerOn{}
	if args[0] == "off" {
		msg = loconet.PowerOff{}
	}

	fmt.Printf("Connection: %s\n", connInfo)
	err = l.Send(msg)
	if err == nil {
		fmt.Printf("Sent %s\n", loconet.FormatMessage(msg))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if serr := l.Shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	return err
}
