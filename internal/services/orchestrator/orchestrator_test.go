package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gatekeeper/internal/logger"
	"gatekeeper/internal/models"
)

// ---- fakes ----

type fakeSerial struct {
	mu      sync.Mutex
	lines   []string
	pollErr error // returned once the scripted lines run out
	sendErr error
	writes  []string
	closed  int
}

func (f *fakeSerial) Poll() (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.lines) == 0 {
		if f.pollErr != nil {
			return "", false, f.pollErr
		}
		return "", false, nil
	}
	line := f.lines[0]
	f.lines = f.lines[1:]
	return line, true, nil
}

func (f *fakeSerial) SendGrant() error { return f.send("OK\n") }
func (f *fakeSerial) SendDeny() error  { return f.send("NO\n") }

func (f *fakeSerial) send(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.writes = append(f.writes, token)
	return nil
}

func (f *fakeSerial) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeSerial) sentTokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.writes))
	copy(out, f.writes)
	return out
}

func (f *fakeSerial) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeCamera struct {
	mu       sync.Mutex
	startErr error
	started  int
	stopped  int
}

func (f *fakeCamera) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started++
	return nil
}

func (f *fakeCamera) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeCamera) Alive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started > f.stopped
}

func (f *fakeCamera) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

type fakeFrames struct {
	frame *models.Frame
}

func (f *fakeFrames) Snapshot() (*models.Frame, bool) {
	if f.frame == nil {
		return nil, false
	}
	return f.frame, true
}

type fakeRecognizer struct {
	mu    sync.Mutex
	plate string
	found bool
	err   error
	calls int
}

func (f *fakeRecognizer) Recognize(image []byte) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.plate, f.found, f.err
}

func (f *fakeRecognizer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type movement struct {
	plate  string
	action string
}

type fakeStore struct {
	mu        sync.Mutex
	plates    map[string]bool
	movements []movement
	lookups   int
	closed    int
}

func (f *fakeStore) IsAuthorized(plate string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.plates[plate], nil
}

func (f *fakeStore) LogMovement(plate, action string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.movements = append(f.movements, movement{plate: plate, action: action})
	return nil
}

func (f *fakeStore) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

func (f *fakeStore) loggedMovements() []movement {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]movement, len(f.movements))
	copy(out, f.movements)
	return out
}

type fakeNotifier struct {
	mu        sync.Mutex
	decisions []models.Decision
}

func (f *fakeNotifier) Publish(d models.Decision) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.decisions = append(f.decisions, d)
}

func (f *fakeNotifier) received() []models.Decision {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Decision, len(f.decisions))
	copy(out, f.decisions)
	return out
}

// ---- helpers ----

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.New(t.TempDir())
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func testConfig() Config {
	return Config{
		PollInterval:       time.Millisecond,
		SettleDelay:        5 * time.Millisecond,
		CameraWarmup:       time.Millisecond,
		IdleHeartbeatPolls: 100,
	}
}

func testFrame() *models.Frame {
	return &models.Frame{Data: []byte("jpeg"), Width: 4, Height: 1, Timestamp: time.Now()}
}

type fixture struct {
	serial     *fakeSerial
	camera     *fakeCamera
	frames     *fakeFrames
	recognizer *fakeRecognizer
	store      *fakeStore
	notifier   *fakeNotifier
	orch       *Orchestrator
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		serial:     &fakeSerial{},
		camera:     &fakeCamera{},
		frames:     &fakeFrames{},
		recognizer: &fakeRecognizer{},
		store:      &fakeStore{plates: make(map[string]bool)},
		notifier:   &fakeNotifier{},
	}
	orch, err := New(cfg, f.serial, f.camera, f.frames, f.recognizer, f.store, []Notifier{f.notifier}, testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.orch = orch
	return f
}

// run starts the orchestrator and returns a cancel func plus the result
// channel.
func (f *fixture) run() (context.CancelFunc, chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.orch.Run(ctx) }()
	return cancel, done
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}

// ---- tests ----

func TestRun_GrantScenario(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.lines = []string{"CAR_DETECTED"}
	f.frames.frame = testFrame()
	f.recognizer.plate = "29A12345"
	f.recognizer.found = true
	f.store.plates["29A12345"] = true

	cancel, done := f.run()

	if !waitFor(t, 3*time.Second, func() bool { return len(f.serial.sentTokens()) == 1 }) {
		t.Fatalf("no decision token sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tokens := f.serial.sentTokens(); len(tokens) != 1 || tokens[0] != "OK\n" {
		t.Fatalf("expected single OK token, got %q", tokens)
	}
	moves := f.store.loggedMovements()
	if len(moves) != 1 || moves[0].plate != "29A12345" || moves[0].action != models.ActionGranted {
		t.Fatalf("unexpected movement log: %+v", moves)
	}
	decisions := f.notifier.received()
	if len(decisions) != 1 || !decisions[0].Granted || decisions[0].Plate != "29A12345" {
		t.Fatalf("unexpected broadcast decisions: %+v", decisions)
	}
}

func TestRun_UnknownPlateDenied(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.lines = []string{"CAR_DETECTED"}
	f.frames.frame = testFrame()
	f.recognizer.plate = "99Z99999"
	f.recognizer.found = true

	cancel, done := f.run()

	if !waitFor(t, 3*time.Second, func() bool { return len(f.serial.sentTokens()) == 1 }) {
		t.Fatalf("no decision token sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tokens := f.serial.sentTokens(); tokens[0] != "NO\n" {
		t.Fatalf("expected NO token, got %q", tokens)
	}
	if f.store.lookupCount() != 1 {
		t.Fatalf("expected one store lookup, got %d", f.store.lookupCount())
	}
}

func TestRun_EmptyFrameBufferDeniesWithoutPipeline(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.lines = []string{"CAR_DETECTED"}
	// frames stays empty: the camera never produced a frame

	cancel, done := f.run()

	if !waitFor(t, 3*time.Second, func() bool { return len(f.serial.sentTokens()) == 1 }) {
		t.Fatalf("no decision token sent")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tokens := f.serial.sentTokens(); tokens[0] != "NO\n" {
		t.Fatalf("expected NO token, got %q", tokens)
	}
	if f.recognizer.callCount() != 0 {
		t.Fatalf("pipeline must not run without a frame")
	}
	if f.store.lookupCount() != 0 {
		t.Fatalf("store must not be queried without a candidate")
	}
	moves := f.store.loggedMovements()
	if len(moves) != 1 || moves[0].plate != models.PlateNone || moves[0].action != models.ActionDenied {
		t.Fatalf("unexpected movement log: %+v", moves)
	}
}

func TestRun_NonDetectionLinesDiscarded(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.lines = []string{"STATUS: idle", "PING", "car_detected"}

	cancel, done := f.run()

	// Give the loop time to drain all scripted lines.
	waitFor(t, time.Second, func() bool {
		f.serial.mu.Lock()
		defer f.serial.mu.Unlock()
		return len(f.serial.lines) == 0
	})
	time.Sleep(20 * time.Millisecond)
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tokens := f.serial.sentTokens(); len(tokens) != 0 {
		t.Fatalf("expected no tokens, got %q", tokens)
	}
	if f.orch.Stats().EventsProcessed != 0 {
		t.Fatalf("expected no events processed")
	}
}

func TestRun_IdleHeartbeatExactlyOnce(t *testing.T) {
	f := newFixture(t, testConfig())

	cancel, done := f.run()

	if !waitFor(t, 3*time.Second, func() bool { return f.orch.Stats().Heartbeats == 1 }) {
		t.Fatalf("heartbeat never emitted")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if hb := f.orch.Stats().Heartbeats; hb != 1 {
		t.Fatalf("expected exactly one heartbeat, got %d", hb)
	}
	if tokens := f.serial.sentTokens(); len(tokens) != 0 {
		t.Fatalf("idle polling must not write to serial, got %q", tokens)
	}
}

func TestRun_SerialFaultIsFatalButCleanedUp(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.pollErr = errors.New("device gone")

	_, done := f.run()

	err := <-done
	if err == nil {
		t.Fatalf("expected run to fail on serial fault")
	}

	if f.camera.stopCount() != 1 {
		t.Fatalf("camera stopped %d times, expected once", f.camera.stopCount())
	}
	if f.serial.closeCount() != 1 {
		t.Fatalf("serial closed %d times, expected once", f.serial.closeCount())
	}
	if f.store.closed != 1 {
		t.Fatalf("store closed %d times, expected once", f.store.closed)
	}
}

func TestRun_ShutdownMidSettleReleasesEverythingOnce(t *testing.T) {
	cfg := testConfig()
	cfg.SettleDelay = 200 * time.Millisecond
	f := newFixture(t, cfg)
	f.serial.lines = []string{"CAR_DETECTED"}
	f.frames.frame = testFrame()

	cancel, done := f.run()

	// Wait until the event is mid-settle, then interrupt.
	if !waitFor(t, time.Second, func() bool { return f.orch.State() == Settling }) {
		t.Fatalf("orchestrator never reached Settling")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if f.orch.State() != ShuttingDown {
		t.Fatalf("expected ShuttingDown, got %v", f.orch.State())
	}
	if tokens := f.serial.sentTokens(); len(tokens) != 0 {
		t.Fatalf("interrupted event must not send a token, got %q", tokens)
	}
	if f.camera.stopCount() != 1 {
		t.Fatalf("camera stopped %d times, expected once", f.camera.stopCount())
	}
	if f.serial.closeCount() != 1 {
		t.Fatalf("serial closed %d times, expected once", f.serial.closeCount())
	}
}

func TestRun_CameraStartFailureAbortsStartup(t *testing.T) {
	f := newFixture(t, testConfig())
	f.camera.startErr = errors.New("no such device")

	_, done := f.run()

	err := <-done
	if err == nil {
		t.Fatalf("expected startup failure")
	}
	// Cleanup still closes the sessions opened before the camera step.
	if f.serial.closeCount() != 1 || f.store.closed != 1 {
		t.Fatalf("startup failure must still close serial (%d) and store (%d)", f.serial.closeCount(), f.store.closed)
	}
}

func TestRun_SendFailureIsFatal(t *testing.T) {
	f := newFixture(t, testConfig())
	f.serial.lines = []string{"CAR_DETECTED"}
	f.serial.sendErr = errors.New("write: device gone")

	_, done := f.run()

	err := <-done
	if err == nil {
		t.Fatalf("expected run to fail when the token cannot be sent")
	}
	// The decision itself was still recorded before the run ended.
	if len(f.store.loggedMovements()) != 1 {
		t.Fatalf("expected the movement row despite the send failure")
	}
}
