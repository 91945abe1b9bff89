package cmd

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/MeKo-Tech/fogtrail/internal/coords"
	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/MeKo-Tech/fogtrail/internal/mosaic"
	"github.com/MeKo-Tech/fogtrail/internal/shader"
	"github.com/MeKo-Tech/fogtrail/internal/snapshot"
	"github.com/MeKo-Tech/fogtrail/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Render viewport tiles from the snapshot database",
	Long: `Render writes one or more PNG viewport tiles from --snapshot, either a
single (--zoom, --x, --y) tile or every tile covering --bbox across
--zoom-min..--zoom-max. Batch renders fan out across --workers parallel
renders, since independent renders of one immutable snapshot never
conflict.`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().IntP("zoom", "z", 9, "Zoom level (for single tile mode)")
	renderCmd.Flags().IntP("x", "x", 0, "View X coordinate (for single tile mode)")
	renderCmd.Flags().IntP("y", "y", 0, "View Y coordinate (for single tile mode)")

	renderCmd.Flags().String("bbox", "", "Bounding box: minLon,minLat,maxLon,maxLat (batch mode)")
	renderCmd.Flags().Int("zoom-min", 0, "Minimum zoom level for batch rendering")
	renderCmd.Flags().Int("zoom-max", 0, "Maximum zoom level for batch rendering")
	renderCmd.Flags().IntP("workers", "w", 0, "Number of parallel workers (default: number of CPUs)")
	renderCmd.Flags().Bool("progress", true, "Log progress during batch rendering")
	renderCmd.Flags().Bool("allow-failures", false, "Continue rendering even if some tiles fail")

	renderCmd.Flags().Int("tile-size-power", 8, "Output tile size as a power of two (8 = 256px)")
	renderCmd.Flags().String("bg-color", "ffffff00", "Background color, RRGGBBAA hex")
	renderCmd.Flags().String("fg-color", "3388ffff", "Foreground (visited) color, RRGGBBAA hex")
	renderCmd.Flags().Bool("contact-sheet", false, "Compose a contact sheet of the batch instead of individual files")
	renderCmd.Flags().Int("contact-sheet-cols", 8, "Columns in the contact sheet grid")
	renderCmd.Flags().Int("contact-sheet-thumb", 128, "Thumbnail size (pixels) per contact sheet cell")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"render.zoom", "zoom"},
		{"render.x", "x"},
		{"render.y", "y"},
		{"render.bbox", "bbox"},
		{"render.zoom_min", "zoom-min"},
		{"render.zoom_max", "zoom-max"},
		{"render.workers", "workers"},
		{"render.progress", "progress"},
		{"render.allow_failures", "allow-failures"},
		{"render.tile_size_power", "tile-size-power"},
		{"render.bg_color", "bg-color"},
		{"render.fg_color", "fg-color"},
		{"render.contact_sheet", "contact-sheet"},
		{"render.contact_sheet_cols", "contact-sheet-cols"},
		{"render.contact_sheet_thumb", "contact-sheet-thumb"},
	}
	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, renderCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runRender(cmd *cobra.Command, args []string) error {
	if logger == nil {
		initLogging()
	}

	zoom := viper.GetInt("render.zoom")
	x := viper.GetInt("render.x")
	y := viper.GetInt("render.y")
	bbox := viper.GetString("render.bbox")
	zoomMin := viper.GetInt("render.zoom_min")
	zoomMax := viper.GetInt("render.zoom_max")
	workers := viper.GetInt("render.workers")
	showProgress := viper.GetBool("render.progress")
	allowFailures := viper.GetBool("render.allow_failures")
	outputDir := viper.GetString("output-dir")
	sizePower := viper.GetInt("render.tile_size_power")

	bg, err := parseHexColor(viper.GetString("render.bg_color"))
	if err != nil {
		return fmt.Errorf("bg-color: %w", err)
	}
	fg, err := parseHexColor(viper.GetString("render.fg_color"))
	if err != nil {
		return fmt.Errorf("fg-color: %w", err)
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

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("output-dir: %w", err)
	}

	if bbox == "" {
		return runSingleRender(m, int64(x), int64(y), zoom, sizePower, outputDir, bg, fg)
	}
	return runBatchRender(m, bbox, zoomMin, zoomMax, workers, showProgress, allowFailures, outputDir, sizePower, bg, fg)
}

func runSingleRender(m *fogmap.FogMap, x, y int64, zoom, sizePower int, outputDir string, bg, fg shader.Color) error {
	data, err := renderOne(m, x, y, zoom, sizePower, bg, fg)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}

	outPath := filepath.Join(outputDir, fmt.Sprintf("z%d_x%d_y%d.png", zoom, x, y))
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("write tile: %w", err)
	}

	logger.Info("tile rendered", "zoom", zoom, "x", x, "y", y, "path", outPath)
	return nil
}

func runBatchRender(m *fogmap.FogMap, bboxStr string, zoomMin, zoomMax, workers int, showProgress, allowFailures bool, outputDir string, sizePower int, bg, fg shader.Color) error {
	bbox, err := parseBBox(bboxStr)
	if err != nil {
		return fmt.Errorf("invalid bbox: %w", err)
	}
	if zoomMin <= 0 || zoomMax <= 0 {
		return fmt.Errorf("--zoom-min and --zoom-max are required for batch rendering")
	}
	if zoomMin > zoomMax {
		return fmt.Errorf("--zoom-min (%d) must be <= --zoom-max (%d)", zoomMin, zoomMax)
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	viewTiles := coords.TilesInBBox(bbox, zoomMin, zoomMax)
	logger.Info("starting batch render", "bbox", bboxStr, "zoom_range", fmt.Sprintf("%d-%d", zoomMin, zoomMax), "tiles", len(viewTiles), "workers", workers)

	jobs := make([]worker.Job, 0, len(viewTiles))
	for _, t := range viewTiles {
		jobs = append(jobs, worker.Job{ViewX: t.X, ViewY: t.Y, Zoom: t.Zoom})
	}

	wantSheet := viper.GetBool("render.contact_sheet")

	start := time.Now()
	var lastLog time.Time
	onProgress := func(completed, total, failed int) {
		if !showProgress {
			return
		}
		now := time.Now()
		if completed < total && now.Sub(lastLog) < 2*time.Second {
			return
		}
		lastLog = now
		elapsed := now.Sub(start)
		var rate float64
		if elapsed > 0 {
			rate = float64(completed) / elapsed.Seconds()
		}
		logger.Info("render progress",
			"completed", completed,
			"total", total,
			"failed", failed,
			"renders_per_sec", fmt.Sprintf("%.1f", rate),
			"elapsed", elapsed.Round(time.Second))
	}

	renderer := worker.RendererFunc(func(ctx context.Context, job worker.Job) ([]byte, error) {
		return renderOne(m, job.ViewX, job.ViewY, job.Zoom, sizePower, bg, fg)
	})
	pool := worker.New(worker.Config{Workers: workers, Renderer: renderer, OnProgress: onProgress})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received interrupt signal, cancelling...")
		cancel()
	}()

	results := pool.Run(ctx, jobs)

	var failed int
	var sheetTiles []mosaic.Tile
	for _, r := range results {
		if r.Err != nil {
			failed++
			logger.Error("render failed", "x", r.Job.ViewX, "y", r.Job.ViewY, "zoom", r.Job.Zoom, "error", r.Err)
			continue
		}
		if wantSheet {
			img, err := png.Decode(bytes.NewReader(r.Data))
			if err != nil {
				logger.Error("decode rendered tile for contact sheet", "error", err)
				failed++
				continue
			}
			sheetTiles = append(sheetTiles, mosaic.Tile{Zoom: r.Job.Zoom, Image: img})
			continue
		}
		outPath := filepath.Join(outputDir, fmt.Sprintf("z%d_x%d_y%d.png", r.Job.Zoom, r.Job.ViewX, r.Job.ViewY))
		if err := os.WriteFile(outPath, r.Data, 0o644); err != nil {
			logger.Error("write tile", "path", outPath, "error", err)
			failed++
		}
	}

	elapsed := time.Since(start)
	var overallRate float64
	if elapsed > 0 {
		overallRate = float64(len(results)) / elapsed.Seconds()
	}
	logger.Info("batch render complete",
		"successful", len(results)-failed,
		"total", len(results),
		"failed", failed,
		"elapsed", elapsed.Round(time.Second),
		"renders_per_sec", fmt.Sprintf("%.1f", overallRate))

	if wantSheet && len(sheetTiles) > 0 {
		sheet, err := mosaic.BuildContactSheet(sheetTiles, viper.GetInt("render.contact_sheet_cols"), viper.GetInt("render.contact_sheet_thumb"), color.White)
		if err != nil {
			return fmt.Errorf("build contact sheet: %w", err)
		}
		sheetPath := filepath.Join(outputDir, "contact_sheet.png")
		f, err := os.Create(sheetPath)
		if err != nil {
			return fmt.Errorf("create contact sheet: %w", err)
		}
		defer f.Close()
		if err := png.Encode(f, sheet); err != nil {
			return fmt.Errorf("encode contact sheet: %w", err)
		}
		logger.Info("contact sheet written", "path", sheetPath, "tiles", len(sheetTiles))
	}

	if failed > 0 {
		if allowFailures {
			logger.Warn("some tiles failed to render, continuing due to --allow-failures", "failed_count", failed)
		} else {
			return fmt.Errorf("%d tiles failed to render", failed)
		}
	}
	return nil
}

func renderOne(m *fogmap.FogMap, x, y int64, zoom, sizePower int, bg, fg shader.Color) ([]byte, error) {
	width := 1 << uint(sizePower)
	buf := make([]byte, width*width*4)
	if err := shader.Render(m, x, y, zoom, sizePower, bg, fg, buf); err != nil {
		return nil, err
	}

	img := &image.RGBA{Pix: buf, Stride: width * 4, Rect: image.Rect(0, 0, width, width)}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return out.Bytes(), nil
}

// parseBBox parses "minLon,minLat,maxLon,maxLat" into [4]float64.
func parseBBox(s string) ([4]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return [4]float64{}, fmt.Errorf("expected 4 comma-separated values, got %d", len(parts))
	}
	var bbox [4]float64
	for i, part := range parts {
		val, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return [4]float64{}, fmt.Errorf("invalid number at position %d: %w", i, err)
		}
		bbox[i] = val
	}
	if bbox[0] >= bbox[2] {
		return [4]float64{}, fmt.Errorf("minLon (%.4f) must be < maxLon (%.4f)", bbox[0], bbox[2])
	}
	if bbox[1] >= bbox[3] {
		return [4]float64{}, fmt.Errorf("minLat (%.4f) must be < maxLat (%.4f)", bbox[1], bbox[3])
	}
	return bbox, nil
}

// parseHexColor parses an 8-hex-digit RRGGBBAA string.
func parseHexColor(s string) (shader.Color, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 8 {
		return shader.Color{}, fmt.Errorf("expected 8 hex digits (RRGGBBAA), got %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return shader.Color{}, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return shader.Color{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}
