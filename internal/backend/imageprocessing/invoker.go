package imageprocessing

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker runs a fixed chain of commands, feeding each output into
// the next command.
type CommandInvoker struct {
	commands []Command
}

func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	start := time.Now()

	if len(i.commands) == 0 {
		slog.Debug("no commands to execute, returning original image")
		return imageData, nil
	}

	currentData := imageData
	for idx, command := range i.commands {
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Error("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Info("upload normalised",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"input_size_bytes", len(imageData),
		"final_size_bytes", len(currentData))

	return currentData, nil
}

// NewUploadNormalizer builds the chain applied to every reference upload:
// convert to PNG, then shrink so neither edge exceeds maxDimension.
func NewUploadNormalizer(maxDimension, svgFallbackSize int) (*CommandInvoker, error) {
	commands, err := DefaultRegistry.Build([]CommandConfig{
		{Name: PngConverterCommandName, Params: map[string]any{"svgFallbackSize": svgFallbackSize}},
		{Name: DownscaleCommandName, Params: map[string]any{"maxDimension": maxDimension}},
	})
	if err != nil {
		return nil, err
	}
	return NewCommandInvoker(commands), nil
}
