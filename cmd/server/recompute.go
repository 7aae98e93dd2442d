package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iliyamo/store-rating/internal/database"
	"github.com/iliyamo/store-rating/internal/service"
)

var (
	recomputeStore uint64
	recomputeAll   bool
)

// recomputeCmd rebuilds stored aggregates from the ratings table.
var recomputeCmd = &cobra.Command{
	Use:   "recompute",
	Short: "Recompute store rating averages",
	RunE: func(cmd *cobra.Command, args []string) error {
		if recomputeAll == (recomputeStore != 0) {
			return errors.New("exactly one of --store or --all is required")
		}
		ctx := cmd.Context()
		_, log, settings, err := bootstrap()
		if err != nil {
			return err
		}
		db, err := database.Open(ctx, *settings)
		if err != nil {
			return err
		}
		defer db.Close()

		svc := service.NewRatingService(db, service.WithLogger(log))
		if recomputeAll {
			n, err := svc.RecomputeAll(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "recomputed %d stores\n", n)
			return nil
		}
		avg, total, err := svc.RecomputeAverage(ctx, recomputeStore)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "store %d: average=%.2f total=%d\n", recomputeStore, avg, total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(recomputeCmd)
	recomputeCmd.Flags().Uint64Var(&recomputeStore, "store", 0, "store id to recompute")
	recomputeCmd.Flags().BoolVar(&recomputeAll, "all", false, "recompute every store")
}
