package http

import (
	"time"

	xutil "AirView/pkg/util"
)

// ParseTime accepts RFC3339, a plain date or unix seconds and returns UTC.
func ParseTime(s string) (time.Time, bool) { return xutil.ParseTime(s) }
