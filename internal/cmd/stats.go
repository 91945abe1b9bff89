package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/MeKo-Tech/fogtrail/internal/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report summary statistics about the snapshot database",
	Long:  `Stats reports the number of populated tiles and blocks currently stored in --snapshot.`,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	store, err := snapshot.Open(viper.GetString("snapshot"))
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer store.Close()

	m, err := store.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	tileCount := m.TileCount()
	var blockCount int
	m.Tiles(func(x, y int64, t *fogmap.Tile) bool {
		blockCount += t.BlockCount()
		return true
	})

	fmt.Printf("tiles:  %d\n", tileCount)
	fmt.Printf("blocks: %d\n", blockCount)
	logger.Info("stats", "tiles", tileCount, "blocks", blockCount)
	return nil
}
