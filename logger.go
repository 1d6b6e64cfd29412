package memolock

import "github.com/demipixel/memolock/internal/logger"

// Logger is the logging interface used throughout memolock. *slog.Logger
// satisfies it directly.
type Logger = logger.Logger
