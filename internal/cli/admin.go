package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	v1 "engram/api/v1"
)

// NewResyncCmd creates the resync command.
func NewResyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Rebuild the local index from the cloud store",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.ResyncResponse
			if err := newAPIClient().post("/api/v1/resync", struct{}{}, &resp); err != nil {
				return err
			}
			fmt.Printf("resync complete, %d items indexed\n", resp.Indexed)
			return nil
		},
	}
}

// NewStatsCmd creates the stats command.
func NewStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show index health",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp v1.StatsResponse
			if err := newAPIClient().get("/api/v1/stats", &resp); err != nil {
				return err
			}
			fmt.Printf("indexed:      %d / %d\n", resp.Indexed, resp.MaxItems)
			fmt.Printf("needs resync: %v\n", resp.NeedsResync)
			if resp.LastResync.IsZero() {
				fmt.Println("last resync:  never")
			} else {
				fmt.Printf("last resync:  %s\n", resp.LastResync.Local().Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}
