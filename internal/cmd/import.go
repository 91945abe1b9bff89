package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MeKo-Tech/fogtrail/internal/importer"
	"github.com/MeKo-Tech/fogtrail/internal/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var importCmd = &cobra.Command{
	Use:   "import <path>",
	Short: "Import a legacy fog-of-world snapshot into the snapshot database",
	Long: `Import reads a single .fow file, a .zip bundle of .fow files, or a
directory of mixed files and writes every decoded block into --snapshot.
An imported block replaces any block already stored at the same position;
its bits are not merged with the old ones.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("zip", false, "Treat the path as a zip bundle of .fow files")
	importCmd.Flags().Bool("dir", false, "Treat the path as a directory of mixed files")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"import.zip", "zip"},
		{"import.dir", "dir"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, importCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runImport(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	path := args[0]
	asZip := viper.GetBool("import.zip")
	asDir := viper.GetBool("import.dir")
	snapshotPath := viper.GetString("snapshot")

	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("input path: %w", err)
	}

	store, err := snapshot.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer store.Close()

	m, err := store.Load()
	if err != nil {
		return fmt.Errorf("load existing snapshot: %w", err)
	}

	logger.Info("importing", "path", path, "zip", asZip, "dir", asDir, "snapshot", snapshotPath, "tiles_before", m.TileCount())

	switch {
	case asZip:
		err = importer.AddZipFile(m, path)
	case asDir:
		err = importer.AddDir(m, path, logger)
	default:
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("read file: %w", readErr)
		}
		err = importer.AddFowFile(m, filepath.Base(path), data)
	}
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}

	if err := store.Save(m); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	logger.Info("import complete", "tiles_after", m.TileCount())
	return nil
}
