package http

import (
	"time"

	xutil "ExoScan/pkg/util"
)

// ParseIntDefault parses s or returns def when empty or invalid.
func ParseIntDefault(s string, def int) int { return xutil.ParseIntDefault(s, def) }

// ParseTimeDefault parses RFC3339 or unix seconds, or returns def.
func ParseTimeDefault(s string, def time.Time) time.Time { return xutil.ParseTimeDefault(s, def) }
