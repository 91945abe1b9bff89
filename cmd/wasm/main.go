//go:build js && wasm
// +build js,wasm

// fogtrail's WASM build exposes the core FogMap entirely client-side: a
// page can feed it GPS line segments and ask for rendered viewport tiles
// without any backend round-trip, unlike the server command which needs a
// persisted snapshot. Functions are registered on js.Global via js.FuncOf
// and return plain map[string]any values so the JS side needs no wrapper
// glue to read them.
package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"syscall/js"

	"github.com/MeKo-Tech/fogtrail/internal/fogmap"
	"github.com/MeKo-Tech/fogtrail/internal/shader"
)

// fogMap is the single in-memory map the page builds up across calls;
// js.FuncOf callbacks are invoked synchronously from the JS event loop so
// no locking is needed here, unlike internal/server.Handler's use of
// sync.RWMutex across concurrent HTTP requests.
var fogMap = fogmap.New()

type addLineRequest struct {
	StartLng float64 `json:"startLng"`
	StartLat float64 `json:"startLat"`
	EndLng   float64 `json:"endLng"`
	EndLat   float64 `json:"endLat"`
}

type renderTileRequest struct {
	Zoom            int    `json:"zoom"`
	X               int    `json:"x"`
	Y               int    `json:"y"`
	BufferSizePower int    `json:"bufferSizePower"`
	BGColor         string `json:"bgColor"`
	FGColor         string `json:"fgColor"`
}

// fogtrailAddLine appends a GPS line segment to the in-memory map.
// Args: requestJSON (addLineRequest)
func fogtrailAddLine(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]any{"error": "missing arguments"}
	}

	var req addLineRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return map[string]any{"error": fmt.Sprintf("failed to parse request: %v", err)}
	}

	if err := fogMap.AddLine(req.StartLng, req.StartLat, req.EndLng, req.EndLat); err != nil {
		return map[string]any{"error": err.Error()}
	}
	return map[string]any{"tiles": fogMap.TileCount()}
}

// fogtrailRenderTile renders a viewport tile to a base64 PNG.
// Args: requestJSON (renderTileRequest)
func fogtrailRenderTile(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return map[string]any{"error": "missing arguments"}
	}

	var req renderTileRequest
	if err := json.Unmarshal([]byte(args[0].String()), &req); err != nil {
		return map[string]any{"error": fmt.Sprintf("failed to parse request: %v", err)}
	}
	if req.BufferSizePower <= 0 {
		req.BufferSizePower = 8
	}

	bg, err := parseHexColorJS(req.BGColor, shader.Color{A: 0})
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("bad bgColor: %v", err)}
	}
	fg, err := parseHexColorJS(req.FGColor, shader.Color{R: 0x33, G: 0x88, B: 0xff, A: 0xff})
	if err != nil {
		return map[string]any{"error": fmt.Sprintf("bad fgColor: %v", err)}
	}

	width := 1 << uint(req.BufferSizePower)
	buf := make([]byte, width*width*4)
	if err := shader.Render(fogMap, int64(req.X), int64(req.Y), req.Zoom, req.BufferSizePower, bg, fg, buf); err != nil {
		return map[string]any{"error": err.Error()}
	}

	img := &image.RGBA{Pix: buf, Stride: width * 4, Rect: image.Rect(0, 0, width, width)}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return map[string]any{"error": fmt.Sprintf("failed to encode PNG: %v", err)}
	}

	return map[string]any{
		"pngBase64": base64.StdEncoding.EncodeToString(out.Bytes()),
		"mime":      "image/png",
	}
}

// fogtrailStats reports the number of populated tiles in the in-memory map.
func fogtrailStats(this js.Value, args []js.Value) interface{} {
	return map[string]any{"tiles": fogMap.TileCount()}
}

func parseHexColorJS(s string, fallback shader.Color) (shader.Color, error) {
	if s == "" {
		return fallback, nil
	}
	var v uint32
	if _, err := fmt.Sscanf(s, "%08x", &v); err != nil {
		return shader.Color{}, err
	}
	return shader.Color{
		R: uint8(v >> 24),
		G: uint8(v >> 16),
		B: uint8(v >> 8),
		A: uint8(v),
	}, nil
}

func fogtrailInit(this js.Value, args []js.Value) interface{} {
	fmt.Println("fogtrail WASM module initialized")
	return map[string]any{"status": "ready"}
}

func main() {
	c := make(chan struct{})

	js.Global().Set("fogtrailAddLine", js.FuncOf(fogtrailAddLine))
	js.Global().Set("fogtrailRenderTile", js.FuncOf(fogtrailRenderTile))
	js.Global().Set("fogtrailStats", js.FuncOf(fogtrailStats))
	js.Global().Set("fogtrailInit", js.FuncOf(fogtrailInit))

	fmt.Println("fogtrail WASM module loaded")
	<-c
}
