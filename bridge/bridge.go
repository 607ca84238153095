package bridge

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrOutputMissing reports a runner that finished without writing the
// expected output file.
var ErrOutputMissing = errors.New("runner produced no output")

const (
	fileInput0 = "input_0.jpg"
	fileInput1 = "input_1.jpg"
	filePhoto  = "photo.jpg"
	fileVideo  = "video.mp4"
	fileOutput = "out.jpg"
)

// Bridge executes jobs one at a time over a private in-memory filesystem.
// The filesystem is reset before every run and emptied again after it, so no
// state leaks between jobs. The runner is fetched lazily on first use and
// cached for the lifetime of the bridge.
type Bridge struct {
	mu sync.Mutex

	fetch     RunnerFetcher
	fetchOnce sync.Once
	runner    Runner
	fetchErr  error

	vfs     *VFS
	log     *zap.Logger
	onEvent func(Event)
}

// New returns a bridge over the given fetcher. log and onEvent may be nil.
func New(fetch RunnerFetcher, log *zap.Logger, onEvent func(Event)) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		fetch:   fetch,
		vfs:     NewVFS(),
		log:     log,
		onEvent: onEvent,
	}
}

// RunBake stages two unordered inputs and runs a bake job. Extra arguments
// are appended to the runner command line.
func (b *Bridge) RunBake(input0, input1 []byte, extraArgs []string) ([]byte, error) {
	args := append([]string{"bake", "-in0", fileInput0, "-in1", fileInput1, "-out", fileOutput}, extraArgs...)
	return b.run(func(fs *VFS) {
		fs.WriteFile(fileInput0, input0)
		fs.WriteFile(fileInput1, input1)
	}, args)
}

// RunMotion stages a still and a clip and runs a motion assembly job.
func (b *Bridge) RunMotion(photo, video []byte, extraArgs []string) ([]byte, error) {
	args := append([]string{"motion", "-photo", filePhoto, "-video", fileVideo, "-out", fileOutput}, extraArgs...)
	return b.run(func(fs *VFS) {
		fs.WriteFile(filePhoto, photo)
		fs.WriteFile(fileVideo, video)
	}, args)
}

func (b *Bridge) run(seed func(*VFS), args []string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.vfs.Reset()
	defer b.vfs.Reset()

	b.emit(Event{Kind: EventStatus, Stage: StagePreparing})
	b.log.Debug("preparing job", zap.Strings("args", args))
	seed(b.vfs)

	b.emit(Event{Kind: EventStatus, Stage: StageFetching})
	runner, err := b.fetchRunner()
	if err != nil {
		return nil, b.fail(fmt.Errorf("fetch runner: %w", err))
	}

	b.emit(Event{Kind: EventStatus, Stage: StageRunning})
	stdout := &lineWriter{emit: b.emitLine(EventStdout)}
	stderr := &lineWriter{emit: b.emitLine(EventStderr)}
	err = runner.Run(args, b.vfs, stdout, stderr)
	stdout.Flush()
	stderr.Flush()
	if err != nil {
		return nil, b.fail(err)
	}

	out, err := b.vfs.ReadFile(fileOutput)
	if err != nil {
		return nil, b.fail(ErrOutputMissing)
	}

	b.emit(Event{Kind: EventDone})
	b.log.Info("job done", zap.Int("outputBytes", len(out)))
	return out, nil
}

func (b *Bridge) fetchRunner() (Runner, error) {
	b.fetchOnce.Do(func() {
		if b.fetch == nil {
			b.fetchErr = errors.New("no runner fetcher configured")
			return
		}
		b.runner, b.fetchErr = b.fetch()
	})
	return b.runner, b.fetchErr
}

func (b *Bridge) fail(err error) error {
	b.emit(Event{Kind: EventError, Err: err})
	b.log.Error("job failed", zap.Error(err))
	return err
}

func (b *Bridge) emit(ev Event) {
	if b.onEvent != nil {
		b.onEvent(ev)
	}
}

func (b *Bridge) emitLine(kind EventKind) func(string) {
	return func(line string) {
		b.emit(Event{Kind: kind, Line: line})
	}
}

// lineWriter buffers writes and emits complete lines.
type lineWriter struct {
	emit func(string)
	buf  bytes.Buffer
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		idx := bytes.IndexByte(w.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf.Next(idx + 1))
		w.emit(line[:len(line)-1])
	}
	return len(p), nil
}

// Flush emits any trailing partial line.
func (w *lineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.emit(w.buf.String())
		w.buf.Reset()
	}
}
