package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of stored postings per location",
	Run: func(cmd *cobra.Command, _ []string) {
		stats(cmd)
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

type locationCount struct {
	Location string
	Count    int
}

func stats(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	d, err := loadDeps(ctx, config, logger, false)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	storeCtx, cancel := context.WithTimeout(ctx, config.Timeouts.Store)
	counts, err := d.postings.CountByLocation(storeCtx)
	cancel()
	if err != nil {
		requestFailed(logger, err)
	}

	printCounts(cmd.OutOrStdout(), sortCounts(counts))
}

// sortCounts orders locations by count desc, then name asc.
func sortCounts(counts map[string]int) []locationCount {
	out := make([]locationCount, 0, len(counts))
	for location, n := range counts {
		out = append(out, locationCount{Location: location, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Location < out[j].Location
	})
	return out
}

func printCounts(w io.Writer, counts []locationCount) {
	if len(counts) == 0 {
		fmt.Fprintln(w, "no postings stored yet")
		return
	}

	total := 0
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOCATION\tPOSTINGS")
	for _, c := range counts {
		location := c.Location
		if location == "" {
			location = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\n", location, c.Count)
		total += c.Count
	}
	fmt.Fprintf(tw, "total\t%d\n", total)
	tw.Flush()
}
