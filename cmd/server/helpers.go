package main

import (
	"strings"

	"github.com/m4n5ter/lindows-go/internal/capture"
	"github.com/m4n5ter/lindows-go/internal/encode"
)

func windowForConfig(windows []capture.Window, appID string) (capture.Window, bool) {
	return capture.FindByAppID(windows, appID)
}

func qualityFromString(s string) encode.Quality {
	switch strings.ToLower(s) {
	case "realtime":
		return encode.QualityRealtime
	case "best":
		return encode.QualityBest
	default:
		return encode.QualityBalanced
	}
}
