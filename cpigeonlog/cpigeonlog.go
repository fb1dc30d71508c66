// Package cpigeonlog wraps zap with the banner/section helpers the teacher's
// pkg/logger used to print around its own ANSI logger, adapted to structured
// logging so per-connection fields (CId, status, AckNum) survive as
// queryable fields instead of interpolated strings.
package cpigeonlog

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a development-style zap.Logger: human-readable console
// output, colored level names, millisecond timestamps. Production
// deployments should build their own zap.Config instead.
func New(debug bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.EncoderConfig.TimeKey = "t"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	if !debug {
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

// Section prints a section header, matching the teacher's box-drawn
// banners, for CLI tools that want to visually separate startup phases.
func Section(title string) {
	border := strings.Repeat("═", 61)
	fmt.Printf("\n╔%s╗\n", border)
	fmt.Printf("║ %-57s ║\n", title)
	fmt.Printf("╚%s╝\n\n", border)
}

// Banner prints the application banner.
func Banner(title, version string) {
	fmt.Printf(`
╔═══════════════════════════════════════════════════════════╗
║                                                           ║
║   ██████╗ ██╗ ██████╗ ███████╗ ██████╗ ███╗   ██╗        ║
║   ██╔══██╗██║██╔════╝ ██╔════╝██╔═══██╗████╗  ██║        ║
║   ██████╔╝██║██║  ███╗█████╗  ██║   ██║██╔██╗ ██║        ║
║   ██╔═══╝ ██║██║   ██║██╔══╝  ██║   ██║██║╚██╗██║        ║
║   ██║     ██║╚██████╔╝███████╗╚██████╔╝██║ ╚████║        ║
║   ╚═╝     ╚═╝ ╚═════╝ ╚══════╝ ╚═════╝ ╚═╝  ╚═══╝        ║
║                                                           ║
║              %-37s║
║                    Version %-7s                      ║
║                                                           ║
╚═══════════════════════════════════════════════════════════╝
`, title, version)
}
