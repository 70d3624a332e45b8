package main

import (
	"log/slog"

	"github.com/instructify/liveclass/cli/cmd"
	"github.com/instructify/liveclass/internal/logging"
)

func main() {
	// Errors only by default; anything louder would tear through the board.
	logging.Init(slog.LevelError)
	cmd.Execute()
}
