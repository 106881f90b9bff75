package hostfunc

import (
	"context"
	"strings"
	"time"

	"github.com/caffeineduck/creek/internal/logger"
)

// Log forwards a script log record into the host logger.
// Args: message, level (debug|info|warn|error), module.
func Log(ctx context.Context, args map[string]any) (any, error) {
	msg, err := stringArg(args, "message")
	if err != nil {
		return nil, err
	}
	fields := []any{}
	if module, ok := args["module"].(string); ok && module != "" {
		fields = append(fields, logger.KeyModule, module)
	}

	switch strings.ToLower(optionalString(args, "level", "info")) {
	case "debug":
		logger.DebugCtx(ctx, msg, fields...)
	case "warn", "warning":
		logger.WarnCtx(ctx, msg, fields...)
	case "error":
		logger.ErrorCtx(ctx, msg, fields...)
	default:
		logger.InfoCtx(ctx, msg, fields...)
	}
	return nil, nil
}

// TimeNow returns the host wall clock as fractional Unix seconds. WASI builds
// of Python have no reliable clock of their own.
func TimeNow(ctx context.Context, args map[string]any) (any, error) {
	return float64(time.Now().UnixNano()) / 1e9, nil
}
