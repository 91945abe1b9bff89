package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/fogtrail/internal/server"
	"github.com/MeKo-Tech/fogtrail/internal/snapshot"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve viewport tiles, line ingestion, and import over HTTP",
	Long: `Serve loads --snapshot into memory and exposes it over HTTP: GET
/tiles/{zoom}/{x}/{y}.png renders viewport tiles on demand, POST /lines
appends a track segment, POST /import imports a legacy snapshot file
(replacing any blocks it contains), and
GET /stats reports tile counts. The in-memory map is flushed back to
--snapshot on a clean shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "127.0.0.1:8080", "Listen address (host:port)")
	serveCmd.Flags().Int("tile-size-power", 8, "Served tile size as a power of two (8 = 256px)")
	serveCmd.Flags().String("bg-color", "ffffff00", "Background color, RRGGBBAA hex")
	serveCmd.Flags().String("fg-color", "3388ffff", "Foreground (visited) color, RRGGBBAA hex")
	serveCmd.Flags().String("cache-control", "no-store", "Cache-Control header for served tiles")

	mustBind := func(key string, name string) {
		if err := viper.BindPFlag(key, serveCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}

	mustBind("serve.addr", "addr")
	mustBind("serve.tile_size_power", "tile-size-power")
	mustBind("serve.bg_color", "bg-color")
	mustBind("serve.fg_color", "fg-color")
	mustBind("serve.cache_control", "cache-control")
}

func runServe(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	addr := viper.GetString("serve.addr")
	sizePower := viper.GetInt("serve.tile_size_power")
	cacheControl := viper.GetString("serve.cache_control")
	snapshotPath := viper.GetString("snapshot")

	bg, err := parseHexColor(viper.GetString("serve.bg_color"))
	if err != nil {
		return fmt.Errorf("bg-color: %w", err)
	}
	fg, err := parseHexColor(viper.GetString("serve.fg_color"))
	if err != nil {
		return fmt.Errorf("fg-color: %w", err)
	}

	store, err := snapshot.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("open snapshot: %w", err)
	}
	defer store.Close()

	m, err := store.Load()
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	logger.Info("loaded snapshot", "path", snapshotPath, "tiles", m.TileCount())

	h := server.New(server.Config{
		BufferSizePower: sizePower,
		BGColor:         bg,
		FGColor:         fg,
		CacheControl:    cacheControl,
	}, logger)
	h.SetFogMap(m)

	srv := &http.Server{Addr: addr, Handler: h.Mux(), ReadHeaderTimeout: 5 * time.Second}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	serveErrCh := make(chan error, 1)
	go func() {
		logger.Info("fogtrail server listening", "addr", addr, "snapshot", snapshotPath)
		fmt.Printf("\n  -> http://%s/tiles/9/0/0.png\n\n", addr)
		serveErrCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErrCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-sigCh:
		logger.Info("received interrupt signal, shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("server shutdown", "error", err)
		}
	}

	logger.Info("saving snapshot on shutdown", "path", snapshotPath)
	if err := store.Save(h.FogMap()); err != nil {
		return fmt.Errorf("save snapshot on shutdown: %w", err)
	}
	return nil
}
