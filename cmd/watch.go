// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/spoorlab/lnmon/pkg/layout"
)

var (
	watchURL      string
	watchUsername string
	watchNoVerify bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the snapshot stream of a remote lnmon web server",
	Long: `Connect to the /ws endpoint of an lnmon web server and print every
snapshot it pushes.

The password for HTTP Basic auth is read from the LNMON_PASSWORD environment
variable, or prompted interactively if not set. The --password flag is
intentionally not provided to avoid leaking credentials in shell history.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVarP(&watchURL, "url", "u", "", "WebSocket URL of the remote /ws endpoint (ws:// or wss://)")
	watchCmd.Flags().StringVar(&watchUsername, "username", "", "Username for HTTP Basic auth")
	watchCmd.Flags().BoolVar(&watchNoVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")
	_ = watchCmd.MarkFlagRequired("url")
}

func runWatch(cmd *cobra.Command, args []string) error {
	u, err := url.Parse(watchURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}
	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	password := ""
	if watchUsername != "" {
		if password, err = watchPassword(); err != nil {
			return err
		}
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: watchNoVerify,
		}
	}

	headers := http.Header{}
	if watchUsername != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(watchUsername + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	dialCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	conn, resp, err := dialer.DialContext(dialCtx, watchURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return fmt.Errorf("WebSocket connection failed: %v", err)
	}
	defer conn.Close()

	fmt.Printf("lnmon - Remote Watch\n")
	fmt.Printf("Connection: %s\n", watchURL)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		// Closing the connection unblocks the read loop.
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var snap layout.Snapshot
		if err := conn.ReadJSON(&snap); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("snapshot stream ended: %v", err)
		}
		fmt.Println(renderSnapshot(snap))
	}
}

// watchPassword retrieves the password from the environment or prompts for it
func watchPassword() (string, error) {
	if pw := os.Getenv("LNMON_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr) // newline after password
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr) // newline after password
	return string(passwordBytes), nil
}

// renderSnapshot formats a pushed snapshot the way the local report looks,
// addresses displayed 1-based.
func renderSnapshot(snap layout.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Snapshot %s, track power %s\n",
		snap.Time.Format("15:04:05"), snap.Power)
	for _, sl := range snap.Slots {
		fmt.Fprintf(&b, "Slot(%2d): loc=%d, %s, dir=%s, speed=%d/%d, fns=%s\n",
			sl.Slot, sl.Address, sl.Status, sl.Direction, sl.Speed, sl.Steps,
			onFunctions(sl.Functions))
	}
	for _, sw := range snap.Switches {
		fmt.Fprintf(&b, "Switch(%2d): %s, engaged=%v\n", sw.Address+1, sw.Position, sw.Engaged)
	}
	for _, sn := range snap.Sensors {
		fmt.Fprintf(&b, "Sensor(%2d): %s\n", sn.Address+1, sn.State)
	}
	return b.String()
}
