package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Station-Manager/serialshare"
	"github.com/spf13/cobra"
)

// addLineFlags registers the serial line overrides shared by share and monitor.
func addLineFlags(cmd *cobra.Command) {
	cmd.Flags().IntP("baud", "b", 0, "baud rate (default from config)")
	cmd.Flags().Int("data-bits", 0, "data bits 5-8")
	cmd.Flags().String("parity", "", "parity: none, odd, even, mark, space")
	cmd.Flags().Float64("stop-bits", 0, "stop bits: 1, 1.5 or 2")
	cmd.Flags().String("flow", "", "flow control: none, hardware")
}

// sessionConfig applies the line flags that were set over the configured
// serial settings.
func sessionConfig(cmd *cobra.Command, port string) (serialshare.SessionConfig, error) {
	sc := appCfg.Serial
	if cmd.Flags().Changed("baud") {
		sc.Baud, _ = cmd.Flags().GetInt("baud")
	}
	if cmd.Flags().Changed("data-bits") {
		sc.DataBits, _ = cmd.Flags().GetInt("data-bits")
	}
	if cmd.Flags().Changed("parity") {
		sc.Parity, _ = cmd.Flags().GetString("parity")
	}
	if cmd.Flags().Changed("stop-bits") {
		sc.StopBits, _ = cmd.Flags().GetFloat64("stop-bits")
	}
	if cmd.Flags().Changed("flow") {
		sc.FlowControl, _ = cmd.Flags().GetString("flow")
	}
	return sc.SessionConfig(port)
}

// printIncoming copies received chunks to w until the channel is closed.
func printIncoming(w io.Writer, sub <-chan []byte, asHex bool) {
	for chunk := range sub {
		if asHex {
			fmt.Fprintln(w, hex.EncodeToString(chunk))
			continue
		}
		_, _ = w.Write(chunk)
	}
}

// sendLines writes each non-empty stdin line to the session followed by
// eol until stdin is exhausted.
func sendLines(r io.Reader, s *serialshare.Session, eol string) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := s.Write([]byte(line + eol)); err != nil {
			fmt.Fprintf(os.Stderr, "write error: %v\n", err)
		}
	}
	return scanner.Err()
}

// unescape turns the \r \n \t escapes accepted by --eol into bytes.
func unescape(s string) string {
	return strings.NewReplacer(`\r`, "\r", `\n`, "\n", `\t`, "\t").Replace(s)
}
