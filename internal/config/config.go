// Package config parses the process-wide settings for the signaling
// and capture server from flags and environment variables.
package config

import (
	"flag"
	"os"
)

// Config holds the values every component needs at startup.
type Config struct {
	ListenAddr string
	StunServer string

	CaptureAppID string
	CaptureFPS   int

	EncodeBitrate int
	EncodeQuality string

	Environment string
}

// Parse reads flags from args (pass os.Args[1:] in production, a fixed
// slice in tests) and reads Environment from the ENVIRONMENT variable.
// No flag value is overridden by an environment variable.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("lindows-go", flag.ContinueOnError)

	listenAddr := fs.String("listen", "0.0.0.0:11111", "signaling listen address")
	stunServer := fs.String("stun", "stun:stun.syncthing.net:3478", "STUN server URL")
	captureAppID := fs.String("app-id", "", "substring to match against a window's application identifier")
	captureFPS := fs.Int("fps", 30, "capture rate in frames per second")
	encodeBitrate := fs.Int("bitrate", 1_000_000, "VP8 target bitrate in bits per second")
	encodeQuality := fs.String("quality", "balanced", "encoder quality preset: realtime, balanced, or best; sets the bitrate only when -bitrate is 0")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:    *listenAddr,
		StunServer:    *stunServer,
		CaptureAppID:  *captureAppID,
		CaptureFPS:    *captureFPS,
		EncodeBitrate: *encodeBitrate,
		EncodeQuality: *encodeQuality,
		Environment:   os.Getenv("ENVIRONMENT"),
	}

	return cfg, nil
}
