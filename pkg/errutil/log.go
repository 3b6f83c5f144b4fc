// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Waypost Contributors

// Package errutil provides helpers for logging and asserting on structured
// oops errors.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs an error with structured context. For oops errors the code
// and attached context are flattened into individual log attributes; plain
// errors are logged as-is. Client-visible responses never carry this detail,
// so this is the only place it surfaces.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != "" {
		attrs = append(attrs, "code", code)
	}
	for k, v := range oopsErr.Context() {
		attrs = append(attrs, k, v)
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
