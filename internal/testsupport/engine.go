package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ffexec/internal/engine"
)

// EngineCall records one operation against a FakeEngine.
type EngineCall struct {
	Op   string
	Name string
	Args []string
}

// FakeEngine is an in-memory engine.Engine. By default Exec copies the file
// named after -i to the last argument. Fields may be set before use to inject
// failures.
type FakeEngine struct {
	LoadErr   error
	WriteErr  error
	ExecErr   error
	ReadErr   error
	DeleteErr error
	// ReadText makes ReadFile return engine.Text instead of engine.Binary.
	ReadText bool
	// ExecDelay is slept inside Exec to widen race windows.
	ExecDelay time.Duration
	// ExecGate, when set, is received from inside Exec before any work, so a
	// test can hold a job mid-execution.
	ExecGate chan struct{}
	// ExecFunc replaces the default copy behaviour.
	ExecFunc func(args []string, files map[string][]byte) error

	mu      sync.Mutex
	files   map[string][]byte
	calls   []EngineCall
	loads   int
	closed  bool
	active  atomic.Int32
	overlap atomic.Bool
}

// NewFakeEngine returns an empty fake engine.
func NewFakeEngine() *FakeEngine {
	return &FakeEngine{files: make(map[string][]byte)}
}

func (f *FakeEngine) enter() func() {
	if f.active.Add(1) > 1 {
		f.overlap.Store(true)
	}
	return func() { f.active.Add(-1) }
}

func (f *FakeEngine) record(call EngineCall) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *FakeEngine) Load(context.Context) error {
	defer f.enter()()
	f.mu.Lock()
	f.loads++
	f.mu.Unlock()
	f.record(EngineCall{Op: "load"})
	return f.LoadErr
}

func (f *FakeEngine) WriteFile(_ context.Context, name string, data []byte) error {
	defer f.enter()()
	f.record(EngineCall{Op: "write", Name: name})
	if f.WriteErr != nil {
		return f.WriteErr
	}
	if err := engine.ValidateName(name); err != nil {
		return err
	}
	f.mu.Lock()
	f.files[name] = append([]byte(nil), data...)
	f.mu.Unlock()
	return nil
}

func (f *FakeEngine) Exec(_ context.Context, args []string) error {
	defer f.enter()()
	f.record(EngineCall{Op: "exec", Args: append([]string(nil), args...)})
	if f.ExecGate != nil {
		<-f.ExecGate
	}
	if f.ExecDelay > 0 {
		time.Sleep(f.ExecDelay)
	}
	if f.ExecErr != nil {
		return f.ExecErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ExecFunc != nil {
		return f.ExecFunc(args, f.files)
	}
	return copyInputToOutput(args, f.files)
}

func copyInputToOutput(args []string, files map[string][]byte) error {
	var in string
	for i := 0; i < len(args)-1; i++ {
		if args[i] == "-i" {
			in = args[i+1]
		}
	}
	if in == "" || len(args) == 0 {
		return &engine.ExecError{ExitCode: 1, Stderr: "no input specified"}
	}
	data, ok := files[in]
	if !ok {
		return &engine.ExecError{ExitCode: 1, Stderr: fmt.Sprintf("%s: No such file or directory", in)}
	}
	files[args[len(args)-1]] = append([]byte(nil), data...)
	return nil
}

func (f *FakeEngine) ReadFile(_ context.Context, name string) (engine.Contents, error) {
	defer f.enter()()
	f.record(EngineCall{Op: "read", Name: name})
	if f.ReadErr != nil {
		return nil, f.ReadErr
	}
	f.mu.Lock()
	data, ok := f.files[name]
	f.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, errors.New("no such file"))
	}
	if f.ReadText {
		return engine.Text(data), nil
	}
	return engine.Binary(append([]byte(nil), data...)), nil
}

func (f *FakeEngine) DeleteFile(_ context.Context, name string) error {
	defer f.enter()()
	f.record(EngineCall{Op: "delete", Name: name})
	f.mu.Lock()
	delete(f.files, name)
	f.mu.Unlock()
	return f.DeleteErr
}

func (f *FakeEngine) Close() error {
	defer f.enter()()
	f.record(EngineCall{Op: "close"})
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.files = make(map[string][]byte)
	return nil
}

// Calls returns a copy of the recorded operations.
func (f *FakeEngine) Calls() []EngineCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]EngineCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsFor returns the recorded operations matching op.
func (f *FakeEngine) CallsFor(op string) []EngineCall {
	var out []EngineCall
	for _, call := range f.Calls() {
		if call.Op == op {
			out = append(out, call)
		}
	}
	return out
}

// Files returns the names currently stored in the engine.
func (f *FakeEngine) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	return names
}

// Loads reports how many times Load ran.
func (f *FakeEngine) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Closed reports whether Close ran.
func (f *FakeEngine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Overlapped reports whether two operations ever ran at the same time.
func (f *FakeEngine) Overlapped() bool {
	return f.overlap.Load()
}
