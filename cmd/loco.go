// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/loconet"
	"github.com/spoorlab/lnmon/pkg/script"
)

var (
	locoSpeed     int
	locoDirection string
	locoFn        int
	locoOn        bool
	locoOff       bool
)

var locoCmd = &cobra.Command{
	Use:   "loco <address>",
	Short: "Drive a locomotive by its address",
	Long: `Send speed, direction or function commands to one locomotive.

The address is the locomotive's decoder address. A locomotive the command
station has not assigned a slot yet is looked up on the bus first, so the
command also works right after power-up. Direction is applied before speed
when both are given.`,
	Args: cobra.ExactArgs(1),
	RunE: runLoco,
}

func init() {
	rootCmd.AddCommand(locoCmd)
	locoCmd.Flags().IntVar(&locoSpeed, "speed", 0, "Raw speed 0..127 (0 stop, 1 emergency stop)")
	locoCmd.Flags().StringVar(&locoDirection, "direction", "", "Running direction: forward or reverse")
	locoCmd.Flags().IntVar(&locoFn, "fn", 0, "Function number 0..28, combined with --on or --off")
	locoCmd.Flags().BoolVar(&locoOn, "on", false, "Turn the selected function on")
	locoCmd.Flags().BoolVar(&locoOff, "off", false, "Turn the selected function off")
	locoCmd.MarkFlagsMutuallyExclusive("on", "off")
}

func runLoco(cmd *cobra.Command, args []string) error {
	addr64, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid locomotive address %q", args[0])
	}
	addr := uint16(addr64)

	flags := cmd.Flags()
	if !flags.Changed("speed") && !flags.Changed("direction") && !flags.Changed("fn") {
		return fmt.Errorf("nothing to do: give --speed, --direction or --fn")
	}
	if flags.Changed("fn") && !locoOn && !locoOff {
		return fmt.Errorf("--fn needs --on or --off")
	}
	if flags.Changed("fn") && (locoFn < 0 || locoFn > 28) {
		return fmt.Errorf("function %d out of range 0..28", locoFn)
	}
	if flags.Changed("speed") && (locoSpeed < 0 || locoSpeed > 127) {
		return fmt.Errorf("speed %d out of range 0..127", locoSpeed)
	}

	l, connInfo, err := openLink()
	if err != nil {
		return err
	}
	sk := attachKeeper(l)
	sc := script.New(sk, logger.Named("script"))

	fmt.Printf("Connection: %s\n", connInfo)

	if err == nil && flags.Changed("direction") {
		var dir loconet.Direction
		if dir, err = parseDirection(locoDirection); err == nil {
			if err = sc.SetDirection(addr, dir); err == nil {
				fmt.Printf("Locomotive %d: direction %s\n", addr, dir)
			}
		}
	}
	if err == nil && flags.Changed("speed") {
		if err = sc.SetSpeed(addr, uint8(locoSpeed)); err == nil {
			fmt.Printf("Locomotive %d: speed %d\n", addr, locoSpeed)
		}
	}
	if err == nil && flags.Changed("fn") {
		if err = sc.SetFunction(addr, uint8(locoFn), locoOn); err == nil {
			state := "off"
			if locoOn {
				state = "on"
			}
			fmt.Printf("Locomotive %d: F%d %s\n", addr, locoFn, state)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if serr := l.Shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	return err
}

func parseDirection(s string) (loconet.Direction, error) {
	switch strings.ToLower(s) {
	case "forward", "fwd", "f":
		return loconet.Forward, nil
	case "reverse", "rev", "r":
		return loconet.Reverse, nil
	default:
		return loconet.Forward, fmt.Errorf("unknown direction %q (use forward or reverse)", s)
	}
}
