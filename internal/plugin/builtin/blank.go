package builtin

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"time"

	"inkframe/internal/display"
	"inkframe/internal/plugin"
)

// Blank renders a solid frame. Useful for resting a panel overnight or as
// a neutral slot filler.
//
// Settings:
//
//	shade: 0..255 (default 255, white)
type Blank struct {
	plugin.Base
}

func (Blank) ValidateSettings(settings plugin.Settings) error {
	_, err := shadeFrom(settings)
	return err
}

func (Blank) GenerateImage(ctx context.Context, settings plugin.Settings, dev display.DeviceConfig) (display.Frame, error) {
	shade, err := shadeFrom(settings)
	if err != nil {
		return display.Frame{}, err
	}
	img := image.NewGray(image.Rect(0, 0, dev.Width, dev.Height))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	return encodeFrame(img)
}

// CacheTTL is long: a solid frame never goes stale.
func (Blank) CacheTTL(plugin.Settings) time.Duration { return 24 * time.Hour }

func shadeFrom(settings plugin.Settings) (uint8, error) {
	raw, present := settings["shade"]
	if !present {
		return 255, nil
	}
	// JSON numbers decode as float64.
	f, isNum := raw.(float64)
	if !isNum || f < 0 || f > 255 {
		return 0, fmt.Errorf("shade must be a number in 0..255, got %v", raw)
	}
	return uint8(f), nil
}

func encodeFrame(img image.Image) (display.Frame, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return display.Frame{}, fmt.Errorf("encode png: %w", err)
	}
	return display.Frame{Image: buf.Bytes(), Format: "image/png"}, nil
}
