// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/config"
	"github.com/spoorlab/lnmon/pkg/loconet"
)

var monitorSlotTrace bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print every decoded bus message as it arrives",
	Long: `Continuously decode and display LocoNet messages as they arrive.

Each message is printed on one line with a wall-clock prefix. With a report
interval set, a summary of all known slots, switches and sensors follows
every interval; --slottrace additionally prints the updated slot line
whenever a message touches a slot.

The command exits on Ctrl+C, or by itself when a replayed capture runs out.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().DurationP("report-interval", "i", config.DefaultReportInterval,
		"Time between layout reports (0 disables them)")
	monitorCmd.Flags().BoolVarP(&monitorSlotTrace, "slottrace", "s", false,
		"Print the slot state after every slot update")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	l, connInfo, err := openLink()
	if err != nil {
		return err
	}
	sk := attachKeeper(l)

	fmt.Printf("lnmon - LocoNet Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	l.Subscribe(func(m loconet.Message) {
		fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), loconet.FormatMessage(m))
		if monitorSlotTrace {
			if num, ok := slotTouched(m); ok {
				if sl, known := sk.GetSlot(num); known {
					fmt.Printf("%s %s\n", time.Now().Format("15:04:05.000"), sl)
				}
			}
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var report <-chan time.Time
	if cfg.ReportInterval > 0 {
		ticker := time.NewTicker(cfg.ReportInterval)
		defer ticker.Stop()
		report = ticker.C
	}

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-l.Done():
			// Replay ran out or the transport failed.
			break loop
		case <-report:
			fmt.Print("\n" + sk.String() + "\n")
		}
	}

	fmt.Print("\n" + sk.String() + "\n")
	fmt.Print(l.Stats().String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return l.Shutdown(shutdownCtx)
}

// slotTouched reports which slot a message updates, if any.
func slotTouched(m loconet.Message) (uint8, bool) {
	switch v := m.(type) {
	case loconet.LocoSpeed:
		return v.Slot, true
	case loconet.LocoDirFunc:
		return v.Slot, true
	case loconet.LocoSound:
		return v.Slot, true
	case loconet.LocoFunc2:
		return v.Slot, true
	case loconet.LocoFunc3:
		return v.Slot, true
	case loconet.SlotData:
		return v.Slot, true
	default:
		return 0, false
	}
}
