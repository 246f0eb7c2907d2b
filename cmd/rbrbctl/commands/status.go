package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

const (
	formatJSON  = "json"
	formatTable = "table"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// statusView mirrors the JSON body rbrb-counter-demo's /status endpoint
// serves.
type statusView struct {
	LocalPlayer      uint16 `json:"local_player"`
	HostFrame        uint32 `json:"host_frame"`
	UnconfirmedFrame uint32 `json:"unconfirmed_frame"`
	Value            int    `json:"value"`
}

func statusCmd() *cobra.Command {
	var watch bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report a demo instance's confirmation horizon and counter value",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !watch {
				return printStatus()
			}
			for {
				if err := printStatus(); err != nil {
					return err
				}
				time.Sleep(interval)
			}
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "poll repeatedly instead of printing once")
	cmd.Flags().DurationVar(&interval, "interval", time.Second, "poll interval when --watch is set")

	return cmd
}

func printStatus() error {
	view, err := fetchStatus()
	if err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}

	out, err := formatStatus(view, outputFormat)
	if err != nil {
		return fmt.Errorf("format status: %w", err)
	}

	fmt.Println(out)
	return nil
}

func fetchStatus() (*statusView, error) {
	resp, err := client.Get("http://" + serverAddr + "/status")
	if err != nil {
		return nil, fmt.Errorf("GET %s/status: %w", serverAddr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s/status: unexpected status %s", serverAddr, resp.Status)
	}

	var view statusView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode status response: %w", err)
	}
	return &view, nil
}

func formatStatus(v *statusView, format string) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal status to JSON: %w", err)
		}
		return string(data), nil
	case formatTable:
		var buf strings.Builder
		w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Local Player:\t%d\n", v.LocalPlayer)
		fmt.Fprintf(w, "Host Frame:\t%d\n", v.HostFrame)
		fmt.Fprintf(w, "Unconfirmed Frame:\t%d\n", v.UnconfirmedFrame)
		fmt.Fprintf(w, "Confirmation Lag:\t%d\n", v.HostFrame-v.UnconfirmedFrame)
		fmt.Fprintf(w, "Value:\t%d\n", v.Value)
		if err := w.Flush(); err != nil {
			return "", fmt.Errorf("flush tabwriter: %w", err)
		}
		return buf.String(), nil
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}
