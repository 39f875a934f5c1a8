package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	v1 "engram/api/v1"
)

// NewSearchCmd creates the search command.
func NewSearchCmd() *cobra.Command {
	var (
		collection string
		mode       string
		limit      int
		forceCloud bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed messages and facts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			var resp v1.SearchResponse
			err := newAPIClient().post("/api/v1/search", v1.SearchRequest{
				Query:      query,
				Collection: collection,
				Mode:       mode,
				Limit:      limit,
				ForceCloud: forceCloud,
			}, &resp)
			if err != nil {
				return err
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(resp, "", "  ")
				fmt.Println(string(data))
				return nil
			}

			if len(resp.Results) == 0 {
				fmt.Println("no results")
				return nil
			}
			for i, r := range resp.Results {
				fmt.Printf("%2d. [%.3f] (%s) %s\n", i+1, r.Score, r.Source, r.Content)
			}
			fmt.Printf("\n%d results in %s (local %d, cloud %d)\n",
				len(resp.Results), resp.Stats.Duration, resp.Stats.LocalCount, resp.Stats.CloudCount)
			return nil
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "", "restrict to messages or facts")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "search mode: keyword, semantic or hybrid")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max results")
	cmd.Flags().BoolVar(&forceCloud, "cloud", false, "always consult the cloud store")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output JSON")

	return cmd
}
