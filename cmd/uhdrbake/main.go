// Command uhdrbake bakes UltraHDR JPEG containers and Motion Photos.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vearutop/uhdrbake"
	"github.com/vearutop/uhdrbake/bridge"
	"github.com/vearutop/uhdrbake/internal/config"
)

// fallbackPeakNits is assumed for PQ/HLG inputs when no target peak is
// configured.
const fallbackPeakNits = 1600

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() error {
	fmt.Fprintln(os.Stderr, `usage:
  uhdrbake bake [-config file] [-q N] [-gq N] [-scale N] [-mc] [-target-peak NITS] <in0.jpg> <in1.jpg> <out.jpg>
  uhdrbake motion [-timestamp-us N] <photo.jpg> <video.mp4> <out.jpg>
  uhdrbake probe <image.jpg>`)
	return fmt.Errorf("invalid arguments")
}

func run(args []string) error {
	if len(args) == 0 {
		return usage()
	}
	switch args[0] {
	case "bake":
		return cmdBake(args[1:])
	case "motion":
		return cmdMotion(args[1:])
	case "probe":
		return cmdProbe(args[1:])
	default:
		return usage()
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	return cfg.Build()
}

func newBridge(log *zap.Logger) *bridge.Bridge {
	return bridge.New(bridge.InProcess, log, func(ev bridge.Event) {
		switch ev.Kind {
		case bridge.EventStatus:
			log.Debug("stage", zap.String("stage", string(ev.Stage)))
		case bridge.EventStdout:
			fmt.Println(ev.Line)
		case bridge.EventStderr:
			fmt.Fprintln(os.Stderr, ev.Line)
		}
	})
}

func cmdBake(args []string) error {
	fl := flag.NewFlagSet("bake", flag.ExitOnError)
	cfgPath := fl.String("config", "", "YAML config file")
	q := fl.Int("q", 0, "base image quality (1-100)")
	gq := fl.Int("gq", 0, "gain map quality (1-100)")
	scale := fl.Int("scale", 0, "gain map downsample factor")
	mc := fl.Bool("mc", false, "multichannel gain map")
	targetPeak := fl.Float64("target-peak", 0, "target peak brightness, nits")

	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 3 {
		return usage()
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	if *q == 0 {
		*q = cfg.BaseQuality
	}
	if *gq == 0 {
		*gq = cfg.GainmapQuality
	}
	if *scale == 0 {
		*scale = cfg.GainmapScale
	}
	if *targetPeak == 0 {
		*targetPeak = cfg.TargetPeakNits
	}
	multichannel := *mc || cfg.Multichannel

	in0, err := os.ReadFile(fl.Arg(0))
	if err != nil {
		return err
	}
	in1, err := os.ReadFile(fl.Arg(1))
	if err != nil {
		return err
	}

	// PQ/HLG inputs without a configured target render brighter than the
	// metadata would otherwise claim; assume a common display peak.
	if *targetPeak == 0 {
		for _, in := range [][]byte{in0, in1} {
			p, err := uhdrbake.Probe(in)
			if err != nil {
				continue
			}
			if p.Transfer == uhdrbake.TransferPQ || p.Transfer == uhdrbake.TransferHLG {
				*targetPeak = fallbackPeakNits
				log.Info("assuming display peak for PQ/HLG input", zap.Float64("nits", *targetPeak))
				break
			}
		}
	}

	extra := []string{
		"-q", strconv.Itoa(*q),
		"-gq", strconv.Itoa(*gq),
		"-scale", strconv.Itoa(*scale),
		"-target-peak", strconv.FormatFloat(*targetPeak, 'f', -1, 64),
		"-peak-margin", strconv.FormatFloat(cfg.PeakMargin, 'f', -1, 64),
	}
	if multichannel {
		extra = append(extra, "-mc")
	}

	out, err := newBridge(log).RunBake(in0, in1, extra)
	if err != nil {
		return err
	}
	return os.WriteFile(fl.Arg(2), out, 0o600)
}

func cmdMotion(args []string) error {
	fl := flag.NewFlagSet("motion", flag.ExitOnError)
	cfgPath := fl.String("config", "", "YAML config file")
	timestamp := fl.Int64("timestamp-us", 0, "still presentation timestamp, microseconds")

	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 3 {
		return usage()
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	photo, err := os.ReadFile(fl.Arg(0))
	if err != nil {
		return err
	}
	video, err := os.ReadFile(fl.Arg(1))
	if err != nil {
		return err
	}

	extra := []string{"-timestamp-us", strconv.FormatInt(*timestamp, 10)}
	out, err := newBridge(log).RunMotion(photo, video, extra)
	if err != nil {
		return err
	}
	return os.WriteFile(fl.Arg(2), out, 0o600)
}

func cmdProbe(args []string) error {
	fl := flag.NewFlagSet("probe", flag.ExitOnError)
	if err := fl.Parse(args); err != nil {
		return err
	}
	if fl.NArg() != 1 {
		return usage()
	}

	data, err := os.ReadFile(fl.Arg(0))
	if err != nil {
		return err
	}
	res, err := uhdrbake.Probe(data)
	if err != nil {
		return err
	}

	gamuts := map[uhdrbake.ColorGamut]string{
		uhdrbake.GamutUnspecified: "unspecified",
		uhdrbake.GamutSRGB:        "sRGB",
		uhdrbake.GamutDisplayP3:   "Display P3",
		uhdrbake.GamutBT2100:      "BT.2100",
	}
	transfers := map[uhdrbake.ColorTransfer]string{
		uhdrbake.TransferUnspecified: "unspecified",
		uhdrbake.TransferSRGB:        "sRGB",
		uhdrbake.TransferPQ:          "PQ",
		uhdrbake.TransferHLG:         "HLG",
	}

	fmt.Printf("embedded gain map:  %v\n", res.HasEmbeddedGainMap)
	fmt.Printf("extended range tag: %v\n", res.HasExtendedDynamicRangeTag)
	fmt.Printf("average luma:       %.4f\n", res.AverageLuma)
	fmt.Printf("peak luma estimate: %.4f\n", res.PeakLumaEstimate)
	fmt.Printf("color gamut:        %s\n", gamuts[res.ColorGamut])
	fmt.Printf("transfer:           %s\n", transfers[res.Transfer])
	return nil
}
