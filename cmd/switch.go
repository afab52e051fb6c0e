// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/script"
)

var (
	switchThrow bool
	switchClose bool
)

var switchCmd = &cobra.Command{
	Use:   "switch <address>",
	Short: "Move a switch to the thrown or closed position",
	Long: `Command one switch to a position.

The address is the 1-based number the monitor and the reports display.
"closed" selects the straight route, "thrown" the diverging one. A switch
the bus has not mentioned yet is queried first, so the command also works
right after power-up.`,
	Args: cobra.ExactArgs(1),
	RunE: runSwitch,
}

func init() {
	rootCmd.AddCommand(switchCmd)
	switchCmd.Flags().BoolVar(&switchThrow, "throw", false, "Select the diverging route")
	switchCmd.Flags().BoolVar(&switchClose, "close", false, "Select the straight route")
	switchCmd.MarkFlagsMutuallyExclusive("throw", "close")
	switchCmd.MarkFlagsOneRequired("throw", "close")
}

func runSwitch(cmd *cobra.Command, args []string) error {
	display, err := strconv.ParseUint(args[0], 10, 16)
	if err != nil || display < 1 || display > 2048 {
		return fmt.Errorf("invalid switch address %q (1..2048)", args[0])
	}
	addr := uint16(display - 1)

	l, connInfo, err := openLink()
	if err != nil {
		return err
	}
	sk := attachKeeper(l)
	sc := script.New(sk, logger.Named("script"))

	fmt.Printf("Connection: %s\n", connInfo)

	if switchThrow {
		err = sc.ThrowSwitch(addr)
	} else {
		err = sc.CloseSwitch(addr)
	}
	if err == nil {
		pos := "CLOSED"
		if switchThrow {
			pos = "THROWN"
		}
		fmt.Printf("Switch %d: %s\n", display, pos)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if serr := l.Shutdown(ctx); serr != nil && err == nil {
		err = serr
	}
	return err
}
