// Package builtin holds the plugins compiled into the daemon.
//
// They need no manifest: the registry synthesizes metadata for every
// factory it knows. Their settings are deliberately small, since the point
// of a built-in is a working panel before any external plugin is installed.
package builtin

import (
	"log/slog"

	"inkframe/internal/clock"
	"inkframe/internal/condition"
	"inkframe/internal/plugin"
)

// Factories returns the built-in plugin factory table. The clock is shared
// with the rest of the daemon so built-ins see the same (possibly fake)
// time.
func Factories(clk *clock.Service) map[string]plugin.Factory {
	return map[string]plugin.Factory{
		"blank": func(logger *slog.Logger) (plugin.Plugin, error) {
			return &Blank{}, nil
		},
		"testpattern": func(logger *slog.Logger) (plugin.Plugin, error) {
			return &TestPattern{
				clk:  clk,
				cond: condition.NewEvaluator(logger),
			}, nil
		},
	}
}
