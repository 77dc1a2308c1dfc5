package transcode_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"ffexec/internal/engine"
	"ffexec/internal/testsupport"
	"ffexec/internal/transcode"
)

type recordedEvent struct {
	op      string
	id      string
	job     transcode.Job
	outcome transcode.Outcome
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
	done   chan string
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{done: make(chan string, 64)}
}

func (r *fakeRecorder) Queued(_ context.Context, job transcode.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{op: "queued", id: job.ID, job: job})
	return nil
}

func (r *fakeRecorder) Started(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{op: "started", id: id})
	return nil
}

func (r *fakeRecorder) Finished(_ context.Context, id string, outcome transcode.Outcome) error {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{op: "finished", id: id, outcome: outcome})
	r.mu.Unlock()
	r.done <- id
	return nil
}

func (r *fakeRecorder) ops(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var ops []string
	for _, ev := range r.events {
		if ev.id == id {
			ops = append(ops, ev.op)
		}
	}
	return ops
}

type fakeMetrics struct {
	mu       sync.Mutex
	kinds    []string
	cleanups map[string]int
}

func (m *fakeMetrics) ObserveTranscode(kind string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kinds = append(m.kinds, kind)
}

func (m *fakeMetrics) CleanupFailed(role string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cleanups == nil {
		m.cleanups = map[string]int{}
	}
	m.cleanups[role]++
}

func newAdapter(t *testing.T, fake *testsupport.FakeEngine, opts ...transcode.Option) *transcode.Adapter {
	t.Helper()
	lazy := engine.NewLazy(func(context.Context) (engine.Engine, error) { return fake, nil })
	adapter := transcode.New(lazy, opts...)
	t.Cleanup(func() { _ = adapter.Close(context.Background()) })
	return adapter
}

var mp3Command = []string{"FFMPEG", "-i", "INPUT", "-f", "mp3", "OUTPUT"}

// assertCleanedUp checks that exactly one write happened and both artifacts
// were deleted exactly once.
func assertCleanedUp(t *testing.T, fake *testsupport.FakeEngine, ext string) {
	t.Helper()
	writes := fake.CallsFor("write")
	deletes := fake.CallsFor("delete")
	if len(writes) != 1 {
		t.Fatalf("expected one write, got %d", len(writes))
	}
	if len(deletes) != 2 {
		t.Fatalf("expected two deletes, got %+v", deletes)
	}
	if deletes[0].Name != writes[0].Name {
		t.Fatalf("first delete should remove input %q, got %q", writes[0].Name, deletes[0].Name)
	}
	if !strings.HasPrefix(deletes[1].Name, "out_") || !strings.HasSuffix(deletes[1].Name, ext) {
		t.Fatalf("second delete should remove output, got %q", deletes[1].Name)
	}
	if left := fake.Files(); len(left) != 0 {
		t.Fatalf("artifacts left behind: %v", left)
	}
}

func TestTranscodeSuccess(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	adapter := newAdapter(t, fake)

	res, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if !bytes.Equal(res.Output, []byte("audio")) {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if res.JobID == "" {
		t.Fatal("expected job id")
	}

	execs := fake.CallsFor("exec")
	if len(execs) != 1 {
		t.Fatalf("expected one exec, got %d", len(execs))
	}
	args := execs[0].Args
	if len(args) != len(mp3Command)-1 {
		t.Fatalf("engine placeholder should be dropped, got %v", args)
	}
	if args[0] != "-i" || !strings.HasPrefix(args[1], "in_") || args[2] != "-f" || args[3] != "mp3" {
		t.Fatalf("unexpected args %v", args)
	}
	if !strings.HasPrefix(args[4], "out_") || !strings.HasSuffix(args[4], ".mp3") {
		t.Fatalf("unexpected output name %q", args[4])
	}
	assertCleanedUp(t, fake, ".mp3")
}

func TestTranscodeWithoutExtension(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	adapter := newAdapter(t, fake)

	if _, err := adapter.Transcode(context.Background(), []string{"-i", "INPUT", "OUTPUT"}, []byte("x"), ""); err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	out := fake.CallsFor("exec")[0].Args[2]
	if strings.Contains(out, ".") {
		t.Fatalf("output name should have no suffix, got %q", out)
	}
}

func TestTranscodeExecFailureStillCleansUp(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ExecErr = &engine.ExecError{ExitCode: 1, Stderr: "Unknown encoder"}
	metrics := &fakeMetrics{}
	adapter := newAdapter(t, fake, transcode.WithMetrics(metrics))

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if !errors.Is(err, transcode.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	var execErr *engine.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected cause to remain reachable, got %v", err)
	}
	if transcode.Kind(err) != transcode.KindExecution {
		t.Fatalf("unexpected kind %q", transcode.Kind(err))
	}
	if len(fake.CallsFor("read")) != 0 {
		t.Fatal("output should not be read after a failed exec")
	}
	assertCleanedUp(t, fake, ".mp3")
	if len(metrics.kinds) != 1 || metrics.kinds[0] != transcode.KindExecution {
		t.Fatalf("unexpected metrics kinds %v", metrics.kinds)
	}
}

func TestTranscodeWriteFailureStillCleansUp(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.WriteErr = errors.New("out of memory")
	adapter := newAdapter(t, fake)

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if !errors.Is(err, transcode.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if len(fake.CallsFor("exec")) != 0 {
		t.Fatal("exec should not run after a failed write")
	}
	if len(fake.CallsFor("delete")) != 2 {
		t.Fatalf("expected both artifacts deleted, got %+v", fake.CallsFor("delete"))
	}
}

func TestTranscodeTextResultIsContractViolation(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ReadText = true
	adapter := newAdapter(t, fake)

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if !errors.Is(err, transcode.ErrContractViolation) {
		t.Fatalf("expected ErrContractViolation, got %v", err)
	}
	if transcode.Kind(err) != transcode.KindContractViolation {
		t.Fatalf("unexpected kind %q", transcode.Kind(err))
	}
	assertCleanedUp(t, fake, ".mp3")
}

func TestTranscodeCleanupFailureIsNotPropagated(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.DeleteErr = errors.New("busy")
	metrics := &fakeMetrics{}
	adapter := newAdapter(t, fake, transcode.WithMetrics(metrics))

	res, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if err != nil {
		t.Fatalf("cleanup failures must not surface, got %v", err)
	}
	if string(res.Output) != "audio" {
		t.Fatalf("unexpected output %q", res.Output)
	}
	if len(fake.CallsFor("delete")) != 2 {
		t.Fatal("both deletions should be attempted even when the first fails")
	}
	if metrics.cleanups["input"] != 1 || metrics.cleanups["output"] != 1 {
		t.Fatalf("unexpected cleanup counts %v", metrics.cleanups)
	}
}

func TestTranscodeCleanupFailureDoesNotMaskPrimaryError(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ExecErr = &engine.ExecError{ExitCode: 1}
	fake.DeleteErr = errors.New("busy")
	adapter := newAdapter(t, fake)

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if !errors.Is(err, transcode.ErrExecution) {
		t.Fatalf("expected execution error, got %v", err)
	}
	if errors.Is(err, transcode.ErrCleanup) {
		t.Fatal("cleanup error must not leak into the result")
	}
}

func TestTranscodeInvalidCommandNeverTouchesEngine(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	adapter := newAdapter(t, fake)

	_, err := adapter.Transcode(context.Background(), []string{"-i", "INPUT"}, []byte("x"), "mp3")
	if !errors.Is(err, transcode.ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	if fake.Loads() != 0 || len(fake.Calls()) != 0 {
		t.Fatalf("engine should be untouched, calls=%v", fake.Calls())
	}
}

func TestTranscodeInitializationFailureThenRetry(t *testing.T) {
	attempts := 0
	var mu sync.Mutex
	lazy := engine.NewLazy(func(context.Context) (engine.Engine, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("runtime download failed")
		}
		return testsupport.NewFakeEngine(), nil
	})
	adapter := transcode.New(lazy)
	defer adapter.Close(context.Background())

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("a"), "mp3")
	if !errors.Is(err, transcode.ErrInitialization) {
		t.Fatalf("expected ErrInitialization, got %v", err)
	}
	if transcode.Kind(err) != transcode.KindInitialization {
		t.Fatalf("unexpected kind %q", transcode.Kind(err))
	}
	if _, err := adapter.Transcode(context.Background(), mp3Command, []byte("a"), "mp3"); err != nil {
		t.Fatalf("second transcode should retry initialization, got %v", err)
	}
}

func TestTranscodeBackToBackResolveInSubmissionOrder(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var (
		orderMu sync.Mutex
		order   []string
	)
	fake.ExecFunc = func(args []string, files map[string][]byte) error {
		data := files[args[1]]
		if string(data) == "slow" {
			close(firstStarted)
			<-releaseFirst
		}
		orderMu.Lock()
		order = append(order, string(data))
		orderMu.Unlock()
		files[args[len(args)-1]] = data
		return nil
	}
	adapter := newAdapter(t, fake)

	type outcome struct {
		name string
		err  error
		at   time.Time
	}
	results := make(chan outcome, 2)
	go func() {
		_, err := adapter.Transcode(context.Background(), []string{"-i", "INPUT", "OUTPUT"}, []byte("slow"), "")
		results <- outcome{"slow", err, time.Now()}
	}()
	<-firstStarted
	go func() {
		_, err := adapter.Transcode(context.Background(), []string{"-i", "INPUT", "OUTPUT"}, []byte("fast"), "")
		results <- outcome{"fast", err, time.Now()}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for adapter.Pending() != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if adapter.Pending() != 1 {
		t.Fatalf("second transcode should be queued, pending=%d", adapter.Pending())
	}
	close(releaseFirst)

	first, second := <-results, <-results
	if first.err != nil || second.err != nil {
		t.Fatalf("unexpected errors: %v, %v", first.err, second.err)
	}
	if first.name != "slow" || second.name != "fast" {
		t.Fatalf("expected slow then fast, got %s then %s", first.name, second.name)
	}
	orderMu.Lock()
	defer orderMu.Unlock()
	if fmt.Sprint(order) != "[slow fast]" {
		t.Fatalf("engine ran %v", order)
	}
}

func TestConcurrentTranscodesNeverOverlapAndUseUniqueArtifacts(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ExecDelay = 200 * time.Microsecond
	adapter := newAdapter(t, fake)

	const n = 24
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(fmt.Sprintf("payload-%d", i))
			res, err := adapter.Transcode(context.Background(), mp3Command, payload, "mp3")
			if err != nil {
				errs <- err
				return
			}
			if !bytes.Equal(res.Output, payload) {
				errs <- fmt.Errorf("call %d got %q", i, res.Output)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	if fake.Overlapped() {
		t.Fatal("engine operations overlapped")
	}
	seen := map[string]bool{}
	for _, call := range fake.CallsFor("write") {
		if seen[call.Name] {
			t.Fatalf("input name %q reused", call.Name)
		}
		seen[call.Name] = true
	}
	for _, call := range fake.CallsFor("exec") {
		out := call.Args[len(call.Args)-1]
		if seen[out] {
			t.Fatalf("output name %q reused", out)
		}
		seen[out] = true
	}
	if len(seen) != 2*n {
		t.Fatalf("expected %d unique artifact names, got %d", 2*n, len(seen))
	}
	if len(fake.CallsFor("delete")) != 2*n {
		t.Fatalf("expected %d deletes, got %d", 2*n, len(fake.CallsFor("delete")))
	}
}

func TestTranscodeRecordsLifecycle(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	recorder := newFakeRecorder()
	adapter := newAdapter(t, fake, transcode.WithRecorder(recorder))

	res, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if got := strings.Join(recorder.ops(res.JobID), ","); got != "queued,started,finished" {
		t.Fatalf("unexpected lifecycle %q", got)
	}

	_, err = adapter.Transcode(context.Background(), []string{"OUTPUT", ""}, nil, "")
	if err == nil {
		t.Fatal("expected invalid command")
	}
}

func TestTranscodeNotifiesEveryRecorder(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	first, second := newFakeRecorder(), newFakeRecorder()
	adapter := newAdapter(t, fake, transcode.WithRecorder(first), transcode.WithRecorder(nil), transcode.WithRecorder(second))

	res, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	for i, r := range []*fakeRecorder{first, second} {
		if got := strings.Join(r.ops(res.JobID), ","); got != "queued,started,finished" {
			t.Fatalf("recorder %d: unexpected lifecycle %q", i, got)
		}
	}
}

func TestCallerCancellationStillRunsQueuedJob(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	started := make(chan struct{})
	release := make(chan struct{})
	fake.ExecFunc = func(args []string, files map[string][]byte) error {
		if string(files[args[1]]) == "block" {
			close(started)
			<-release
		}
		files[args[len(args)-1]] = files[args[1]]
		return nil
	}
	recorder := newFakeRecorder()
	adapter := newAdapter(t, fake, transcode.WithRecorder(recorder))

	go func() {
		_, _ = adapter.Transcode(context.Background(), []string{"-i", "INPUT", "OUTPUT"}, []byte("block"), "")
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := adapter.Transcode(ctx, []string{"-i", "INPUT", "OUTPUT"}, []byte("late"), "")
	if transcode.Kind(err) != transcode.KindCanceled {
		t.Fatalf("expected canceled kind, got %v", err)
	}
	close(release)

	timeout := time.After(2 * time.Second)
	for {
		select {
		case id := <-recorder.done:
			if id == res.JobID {
				ops := recorder.ops(res.JobID)
				if ops[len(ops)-1] != "finished" {
					t.Fatalf("unexpected lifecycle %v", ops)
				}
				if writes := fake.CallsFor("write"); len(writes) != 1 {
					t.Fatalf("abandoned job must not create artifacts, writes=%d", len(writes))
				}
				return
			}
		case <-timeout:
			t.Fatal("abandoned job was never finished")
		}
	}
}

func TestTranscodeReader(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	adapter := newAdapter(t, fake)

	res, err := adapter.TranscodeReader(context.Background(), mp3Command, strings.NewReader("streamed"), "mp3")
	if err != nil {
		t.Fatalf("TranscodeReader: %v", err)
	}
	if string(res.Output) != "streamed" {
		t.Fatalf("unexpected output %q", res.Output)
	}
}

func TestTranscodesSubmittedDuringEngineStartupRunInArrivalOrder(t *testing.T) {
	const n = 8
	fake := testsupport.NewFakeEngine()
	var (
		orderMu sync.Mutex
		order   []string
	)
	fake.ExecFunc = func(args []string, files map[string][]byte) error {
		data := files[args[1]]
		orderMu.Lock()
		order = append(order, string(data))
		orderMu.Unlock()
		files[args[len(args)-1]] = data
		return nil
	}
	releaseFactory := make(chan struct{})
	lazy := engine.NewLazy(func(context.Context) (engine.Engine, error) {
		<-releaseFactory
		return fake, nil
	})
	adapter := transcode.New(lazy)
	defer adapter.Close(context.Background())

	waitFor := func(what string, cond func() bool) {
		t.Helper()
		deadline := time.Now().Add(2 * time.Second)
		for !cond() {
			if time.Now().After(deadline) {
				t.Fatalf("timed out waiting for %s", what)
			}
			time.Sleep(time.Millisecond)
		}
	}

	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		input := []byte(fmt.Sprint(i))
		go func() {
			_, err := adapter.Transcode(context.Background(), []string{"-i", "INPUT", "OUTPUT"}, input, "")
			errs <- err
		}()
		if i == 0 {
			waitFor("engine startup", func() bool { return lazy.State() == engine.StateInitializing })
		} else {
			want := i
			waitFor(fmt.Sprintf("job %d to queue", i), func() bool { return adapter.Pending() == want })
		}
	}
	close(releaseFactory)

	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("Transcode: %v", err)
		}
	}
	orderMu.Lock()
	defer orderMu.Unlock()
	if got := fmt.Sprint(order); got != "[0 1 2 3 4 5 6 7]" {
		t.Fatalf("engine ran jobs out of arrival order: %s", got)
	}
	if fake.Loads() != 1 {
		t.Fatalf("expected one engine load, got %d", fake.Loads())
	}
}

func TestTranscodeReadFailureStillCleansUp(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	fake.ReadErr = errors.New("output vanished")
	adapter := newAdapter(t, fake)

	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
	if !errors.Is(err, transcode.ErrExecution) {
		t.Fatalf("expected ErrExecution, got %v", err)
	}
	if !strings.Contains(err.Error(), "output vanished") {
		t.Fatalf("expected cause in error, got %v", err)
	}
	if len(fake.CallsFor("read")) != 1 {
		t.Fatalf("expected one read, got %+v", fake.CallsFor("read"))
	}
	assertCleanedUp(t, fake, ".mp3")
}

func TestCloseTimeoutDefersEngineCloseUntilRunningJobFinishes(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	gate := make(chan struct{})
	fake.ExecGate = gate
	lazy := engine.NewLazy(func(context.Context) (engine.Engine, error) { return fake, nil })
	adapter := transcode.New(lazy)

	done := make(chan error, 1)
	go func() {
		_, err := adapter.Transcode(context.Background(), mp3Command, []byte("audio"), "mp3")
		done <- err
	}()
	deadline := time.Now().Add(2 * time.Second)
	for len(fake.CallsFor("exec")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job never reached exec")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := adapter.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected drain deadline, got %v", err)
	}
	if fake.Closed() {
		t.Fatal("engine closed while a job was executing")
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("running job should finish, got %v", err)
	}
	deadline = time.Now().Add(2 * time.Second)
	for !fake.Closed() {
		if time.Now().After(deadline) {
			t.Fatal("engine never closed after the queue drained")
		}
		time.Sleep(time.Millisecond)
	}

	if fake.Overlapped() {
		t.Fatal("engine close overlapped a running operation")
	}
	calls := fake.Calls()
	if last := calls[len(calls)-1].Op; last != "close" {
		t.Fatalf("close must be the final engine operation, got %+v", calls)
	}
	if len(fake.CallsFor("delete")) != 2 {
		t.Fatalf("expected both artifacts deleted before close, got %+v", fake.CallsFor("delete"))
	}
}

func TestClosedAdapterRejectsWork(t *testing.T) {
	fake := testsupport.NewFakeEngine()
	lazy := engine.NewLazy(func(context.Context) (engine.Engine, error) { return fake, nil })
	adapter := transcode.New(lazy)

	if _, err := adapter.Transcode(context.Background(), mp3Command, []byte("a"), "mp3"); err != nil {
		t.Fatalf("Transcode: %v", err)
	}
	if err := adapter.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !fake.Closed() {
		t.Fatal("engine should be closed")
	}
	_, err := adapter.Transcode(context.Background(), mp3Command, []byte("a"), "mp3")
	if transcode.Kind(err) != transcode.KindUnavailable {
		t.Fatalf("expected unavailable, got %v", err)
	}
}
