package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/vearutop/uhdrbake"
)

func testJPEG(t *testing.T, w, h int, v uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{R: v, G: v, B: v, A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return buf.Bytes()
}

func collectEvents(events *[]Event) func(Event) {
	return func(ev Event) {
		*events = append(*events, ev)
	}
}

func statusStages(events []Event) []Stage {
	var stages []Stage
	for _, ev := range events {
		if ev.Kind == EventStatus {
			stages = append(stages, ev.Stage)
		}
	}
	return stages
}

func TestBridge_bakeEventSequence(t *testing.T) {
	var events []Event
	b := New(InProcess, nil, collectEvents(&events))

	out, err := b.RunBake(testJPEG(t, 32, 24, 250), testJPEG(t, 32, 24, 110), nil)
	if err != nil {
		t.Fatalf("run bake: %v", err)
	}
	if len(out) == 0 {
		t.Fatal("empty output")
	}
	if _, err := uhdrbake.Split(out); err != nil {
		t.Errorf("output is not a valid container: %v", err)
	}

	stages := statusStages(events)
	want := []Stage{StagePreparing, StageFetching, StageRunning}
	if len(stages) != len(want) {
		t.Fatalf("status stages %v, want %v", stages, want)
	}
	for i := range want {
		if stages[i] != want[i] {
			t.Fatalf("status stages %v, want %v", stages, want)
		}
	}
	last := events[len(events)-1]
	if last.Kind != EventDone {
		t.Errorf("last event kind %v, want EventDone", last.Kind)
	}

	sawStdout := false
	for _, ev := range events {
		if ev.Kind == EventStdout && ev.Line != "" {
			sawStdout = true
		}
	}
	if !sawStdout {
		t.Error("no stdout line events observed")
	}
}

func TestBridge_failureThenSuccess(t *testing.T) {
	var events []Event
	b := New(InProcess, nil, collectEvents(&events))

	_, err := b.RunBake([]byte("junk"), []byte("also junk"), nil)
	if !errors.Is(err, uhdrbake.ErrMalformedImage) {
		t.Fatalf("got %v, want ErrMalformedImage", err)
	}
	last := events[len(events)-1]
	if last.Kind != EventError {
		t.Fatalf("last event kind %v, want EventError", last.Kind)
	}
	if !errors.Is(last.Err, uhdrbake.ErrMalformedImage) {
		t.Errorf("event error %v, want ErrMalformedImage", last.Err)
	}
	if b.vfs.Len() != 0 {
		t.Errorf("filesystem holds %d files after failed run, want 0", b.vfs.Len())
	}

	// A failed run must not poison the next one.
	if _, err := b.RunBake(testJPEG(t, 32, 24, 250), testJPEG(t, 32, 24, 110), nil); err != nil {
		t.Fatalf("run after failure: %v", err)
	}
	if b.vfs.Len() != 0 {
		t.Errorf("filesystem holds %d files after run, want 0", b.vfs.Len())
	}
}

func TestBridge_motion(t *testing.T) {
	b := New(InProcess, nil, nil)

	video := []byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'i', 's', 'o', 'm', 1, 2, 3, 4}
	out, err := b.RunMotion(testJPEG(t, 32, 24, 140), video, []string{"-timestamp-us", "99"})
	if err != nil {
		t.Fatalf("run motion: %v", err)
	}
	if !bytes.HasSuffix(out, video) {
		t.Error("video bytes not at the end of the container")
	}
	if !bytes.Contains(out, []byte(`GCamera:MotionPhotoPresentationTimestampUs="99"`)) {
		t.Error("timestamp argument not applied")
	}
}

type noOutputRunner struct{}

func (noOutputRunner) Run(args []string, fs *VFS, stdout, stderr io.Writer) error {
	fmt.Fprintln(stdout, "pretending to work")
	return nil
}

func TestBridge_outputMissing(t *testing.T) {
	var events []Event
	b := New(func() (Runner, error) { return noOutputRunner{}, nil }, nil, collectEvents(&events))

	_, err := b.RunBake(testJPEG(t, 32, 24, 250), testJPEG(t, 32, 24, 110), nil)
	if !errors.Is(err, ErrOutputMissing) {
		t.Fatalf("got %v, want ErrOutputMissing", err)
	}
	if events[len(events)-1].Kind != EventError {
		t.Error("missing output did not end with EventError")
	}
}

type countingFetcher struct {
	calls int
}

func (c *countingFetcher) fetch() (Runner, error) {
	c.calls++
	return InProcessRunner{}, nil
}

func TestBridge_fetcherCalledOnce(t *testing.T) {
	f := &countingFetcher{}
	b := New(f.fetch, nil, nil)

	in0 := testJPEG(t, 32, 24, 250)
	in1 := testJPEG(t, 32, 24, 110)
	for i := 0; i < 3; i++ {
		if _, err := b.RunBake(in0, in1, nil); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if f.calls != 1 {
		t.Errorf("fetcher called %d times, want 1", f.calls)
	}
}

type failingFetcher struct{}

func (failingFetcher) fetch() (Runner, error) {
	return nil, errors.New("registry unreachable")
}

func TestBridge_fetchFailure(t *testing.T) {
	var events []Event
	b := New(failingFetcher{}.fetch, nil, collectEvents(&events))

	_, err := b.RunBake(testJPEG(t, 32, 24, 250), testJPEG(t, 32, 24, 110), nil)
	if err == nil {
		t.Fatal("expected fetch error")
	}

	stages := statusStages(events)
	if len(stages) != 2 || stages[0] != StagePreparing || stages[1] != StageFetching {
		t.Errorf("status stages %v, want preparing then fetching only", stages)
	}
	if events[len(events)-1].Kind != EventError {
		t.Error("fetch failure did not end with EventError")
	}
}
