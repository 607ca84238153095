package bridge

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/vearutop/uhdrbake"
)

// Runner executes one job against the virtual filesystem. Implementations
// read inputs and write outputs through fs only, and report progress on the
// stdout/stderr writers.
type Runner interface {
	Run(args []string, fs *VFS, stdout, stderr io.Writer) error
}

// RunnerFetcher materializes a Runner. The bridge calls it once and caches
// the result for all subsequent runs.
type RunnerFetcher func() (Runner, error)

// InProcessRunner executes bake and motion jobs with the library itself.
type InProcessRunner struct{}

// InProcess is a fetcher for the built-in runner.
func InProcess() (Runner, error) {
	return InProcessRunner{}, nil
}

func (InProcessRunner) Run(args []string, fs *VFS, stdout, stderr io.Writer) error {
	if len(args) == 0 {
		return errors.New("missing command")
	}
	switch args[0] {
	case "bake":
		return runBake(args[1:], fs, stdout, stderr)
	case "motion":
		return runMotion(args[1:], fs, stdout, stderr)
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

func runBake(args []string, fs *VFS, stdout, stderr io.Writer) error {
	fl := flag.NewFlagSet("bake", flag.ContinueOnError)
	fl.SetOutput(stderr)
	in0 := fl.String("in0", "input_0.jpg", "first input image")
	in1 := fl.String("in1", "input_1.jpg", "second input image")
	out := fl.String("out", "out.jpg", "output container")
	q := fl.Int("q", 95, "base image quality")
	gq := fl.Int("gq", 95, "gain map quality")
	scale := fl.Int("scale", 1, "gain map downsample factor")
	mc := fl.Bool("mc", false, "multichannel gain map")
	targetPeak := fl.Float64("target-peak", 0, "target peak brightness, nits")
	margin := fl.Float64("peak-margin", 0, "auto-detect peak luma margin")

	if err := fl.Parse(args); err != nil {
		return err
	}

	a, err := fs.ReadFile(*in0)
	if err != nil {
		return err
	}
	b, err := fs.ReadFile(*in1)
	if err != nil {
		return err
	}

	pair, err := uhdrbake.Classify(a, b, &uhdrbake.ClassifyOptions{PeakMargin: *margin})
	if err != nil {
		return err
	}
	container, meta, err := uhdrbake.Synthesize(pair, &uhdrbake.BakeOptions{
		BaseQuality:    *q,
		GainmapQuality: *gq,
		Scale:          *scale,
		Multichannel:   *mc,
		TargetPeakNits: *targetPeak,
	})
	if err != nil {
		return err
	}

	fs.WriteFile(*out, container)
	fmt.Fprintf(stdout, "baked %s: %d bytes, max boost %.3f\n", *out, len(container), meta.MaxContentBoost[0])
	return nil
}

func runMotion(args []string, fs *VFS, stdout, stderr io.Writer) error {
	fl := flag.NewFlagSet("motion", flag.ContinueOnError)
	fl.SetOutput(stderr)
	photo := fl.String("photo", "photo.jpg", "still image")
	video := fl.String("video", "video.mp4", "video clip")
	out := fl.String("out", "out.jpg", "output container")
	timestamp := fl.Int64("timestamp-us", 0, "still presentation timestamp, microseconds")

	if err := fl.Parse(args); err != nil {
		return err
	}

	p, err := fs.ReadFile(*photo)
	if err != nil {
		return err
	}
	v, err := fs.ReadFile(*video)
	if err != nil {
		return err
	}

	res, err := uhdrbake.AssembleMotion(p, v, &uhdrbake.MotionOptions{TimestampMicros: *timestamp})
	if err != nil {
		return err
	}

	fs.WriteFile(*out, res.Container)
	fmt.Fprintf(stdout, "assembled %s: %d bytes, video at %d\n", *out, len(res.Container), res.VideoOffset)
	return nil
}
