package builtin

import (
	"context"
	"fmt"
	"image"

	"inkframe/internal/clock"
	"inkframe/internal/condition"
	"inkframe/internal/display"
	"inkframe/internal/plugin"
)

// TestPattern renders a checkerboard for panel inspection: dead pixels and
// ghosting show up immediately against it.
//
// Settings:
//
//	cell_px:     checker cell size in pixels (default 16)
//	invert_when: optional condition object; while it holds, the pattern is
//	             inverted so long-running burn-in tests exercise both pixel
//	             polarities
type TestPattern struct {
	plugin.Base
	clk  *clock.Service
	cond *condition.Evaluator
}

func (p *TestPattern) ValidateSettings(settings plugin.Settings) error {
	if _, err := cellFrom(settings); err != nil {
		return err
	}
	if raw, present := settings["invert_when"]; present {
		if _, isObj := raw.(map[string]any); !isObj {
			return fmt.Errorf("invert_when must be a condition object, got %T", raw)
		}
	}
	return nil
}

func (p *TestPattern) GenerateImage(ctx context.Context, settings plugin.Settings, dev display.DeviceConfig) (display.Frame, error) {
	cell, err := cellFrom(settings)
	if err != nil {
		return display.Frame{}, err
	}

	invert := false
	if raw, present := settings["invert_when"]; present {
		obj, isObj := raw.(map[string]any)
		if !isObj {
			return display.Frame{}, fmt.Errorf("invert_when must be a condition object, got %T", raw)
		}
		now := p.clk.Now()
		day, hour := p.clk.DayHour(now)
		invert = p.cond.Evaluate(condition.Condition(obj), condition.Context{
			Now:  now,
			Day:  day,
			Hour: hour,
		})
	}

	img := image.NewGray(image.Rect(0, 0, dev.Width, dev.Height))
	for y := 0; y < dev.Height; y++ {
		for x := 0; x < dev.Width; x++ {
			on := (x/cell+y/cell)%2 == 0
			if invert {
				on = !on
			}
			if on {
				img.Pix[y*img.Stride+x] = 0
			} else {
				img.Pix[y*img.Stride+x] = 255
			}
		}
	}
	return encodeFrame(img)
}

func cellFrom(settings plugin.Settings) (int, error) {
	raw, present := settings["cell_px"]
	if !present {
		return 16, nil
	}
	f, isNum := raw.(float64)
	if !isNum || f < 1 || f > 512 {
		return 0, fmt.Errorf("cell_px must be a number in 1..512, got %v", raw)
	}
	return int(f), nil
}
