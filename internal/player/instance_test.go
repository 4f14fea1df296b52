package player

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"PlayCore/internal/config"
	"PlayCore/internal/container"
	"PlayCore/internal/env"
	xerrors "PlayCore/internal/errors"
	"PlayCore/internal/events"
	"PlayCore/internal/media"
	"PlayCore/pkg/module"
)

// trace records calls across fakes in order.
type trace struct {
	mu    sync.Mutex
	calls []string
}

func (t *trace) add(call string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls = append(t.calls, call)
}

func (t *trace) count(call string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, c := range t.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (t *trace) last(call string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.calls) - 1; i >= 0; i-- {
		if t.calls[i] == call {
			return i
		}
	}
	return -1
}

func (t *trace) index(call string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, c := range t.calls {
		if c == call {
			return i
		}
	}
	return -1
}

type fakeModule struct {
	name  string
	trace *trace
}

func (m *fakeModule) Name() string { return m.name }

func (m *fakeModule) Boot(context.Context) error {
	m.trace.add(m.name + ".boot")
	return nil
}

func (m *fakeModule) Load(context.Context) error {
	m.trace.add(m.name + ".load")
	return nil
}

func (m *fakeModule) Unload() { m.trace.add(m.name + ".unload") }

type fakeController struct {
	fakeModule
	loadErr error
	bootErr error
	// onLoad runs inside Load; Load then reports the state of ctx.
	onLoad  func()
}

func (c *fakeController) Boot(ctx context.Context) error {
	c.trace.add(c.name + ".boot")
	return c.bootErr
}

func (c *fakeController) Load(ctx context.Context) error {
	c.trace.add(c.name + ".load")
	if c.onLoad != nil {
		c.onLoad()
		return ctx.Err()
	}
	return c.loadErr
}

func (c *fakeController) Play(context.Context) error {
	c.trace.add(c.name + ".play")
	return nil
}

func (c *fakeController) Pause(context.Context) error {
	c.trace.add(c.name + ".pause")
	return nil
}

func (c *fakeController) SeekTo(context.Context, time.Duration) error {
	c.trace.add(c.name + ".seek")
	return nil
}

func (c *fakeController) SetVolume(context.Context, float64) error {
	c.trace.add(c.name + ".volume")
	return nil
}

type fakeBackend struct {
	format string
	src    media.Source
	trace  *trace
}

func (b *fakeBackend) Name() string         { return b.format }
func (b *fakeBackend) Source() media.Source { return b.src }
func (b *fakeBackend) Unload()              { b.trace.add("media.unload") }

type fixture struct {
	t           *testing.T
	trace       *trace
	cfg         *config.Config
	controller  *fakeController
	canAutoplay bool
	noPlayer    bool
	noCtrl      bool
	matchURL    string
	extErr      error
	onProbe     func()
	host        *container.MemoryHost
}

func newFixture(t *testing.T) *fixture {
	tr := &trace{}
	return &fixture{
		t:          t,
		trace:      tr,
		cfg:        &config.Config{Sources: []config.SourceConfig{{URL: "a.bin"}, {URL: "b.bin"}}},
		controller: &fakeController{fakeModule: fakeModule{name: "ctl", trace: tr}},
		matchURL:   "b.bin",
		host:       &container.MemoryHost{},
	}
}

func (f *fixture) registry() *module.Registry {
	tr := f.trace
	ctl := f.controller
	classes := []module.Class{
		{
			Info:      module.Info{Name: "ctl", Role: module.RoleController},
			Supported: func(env.Snapshot, *config.Config) bool { return !f.noCtrl },
			New: func(_ context.Context, mc *module.Context) (module.Module, error) {
				tr.add("ctl.new")
				return ctl, nil
			},
		},
		{
			Info: module.Info{Name: "ext", Role: module.RoleExtension},
			New: func(_ context.Context, mc *module.Context) (module.Module, error) {
				if c := mc.Owner.Controller(); c == nil || tr.index("ctl.boot") < 0 {
					return nil, errors.New("extension constructed before controller boot")
				}
				if f.extErr != nil {
					return nil, f.extErr
				}
				tr.add("ext.new")
				return &fakeModule{name: "ext", trace: tr}, nil
			},
		},
		{
			Info:      module.Info{Name: "out", Role: module.RolePlayer},
			Supported: func(env.Snapshot, *config.Config) bool { return !f.noPlayer },
			New: func(_ context.Context, mc *module.Context) (module.Module, error) {
				tr.add("out.new")
				return &fakeModule{name: "out", trace: tr}, nil
			},
		},
	}
	reg, err := module.NewRegistry(classes...)
	if err != nil {
		f.t.Fatalf("registry: %v", err)
	}
	return reg
}

func (f *fixture) media() *media.Registry {
	tr := f.trace
	return media.NewRegistry().MustRegister("bin", media.Class{
		CanPlay: func(_ context.Context, src media.Source) (bool, error) {
			tr.add("probe:" + src.URL)
			if f.onProbe != nil {
				f.onProbe()
			}
			return src.URL == f.matchURL, nil
		},
		New: func(_ context.Context, src media.Source) (media.Backend, error) {
			return &fakeBackend{format: "bin", src: src, trace: tr}, nil
		},
	})
}

func (f *fixture) instance() *Instance {
	f.t.Helper()
	tr := f.trace
	i, err := New(f.cfg, Options{
		Modules: f.registry(),
		Media:   f.media(),
		Detector: env.DetectorFunc(func(context.Context, *config.Config) (env.Snapshot, error) {
			tr.add("detect")
			return env.NewSnapshot(f.canAutoplay, "test", nil), nil
		}),
		Polyfill: env.PolyfillFunc(func(context.Context) error {
			tr.add("polyfill")
			return nil
		}),
		Host:   f.host,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		f.t.Fatalf("new instance: %v", err)
	}
	return i
}

type eventLog struct {
	mu     sync.Mutex
	counts map[string]int
	errs   []error
}

func watch(i *Instance) *eventLog {
	l := &eventLog{counts: map[string]int{}}
	for _, name := range []string{events.Ready, events.Error, events.Destroy} {
		ev := name
		i.On(ev, func(payload any) {
			l.mu.Lock()
			defer l.mu.Unlock()
			l.counts[ev]++
			if err, ok := payload.(error); ok {
				l.errs = append(l.errs, err)
			}
		})
	}
	return l
}

func (l *eventLog) n(ev string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[ev]
}

func TestInitReachesReadyInStageOrder(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	log := watch(i)

	if len(f.host.Roots()) != 1 || f.host.Roots()[0] != i.Container() {
		t.Fatalf("container must be attached at construction")
	}
	if i.Container().Child(container.Playback) == nil {
		t.Fatalf("playback sub-container missing")
	}

	out, err := i.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if out.State != StateReady || i.State() != StateReady {
		t.Fatalf("expected ready, got %v", out.State)
	}
	if log.n(events.Ready) != 1 || log.n(events.Error) != 0 {
		t.Fatalf("unexpected events: %+v", log.counts)
	}

	order := []string{"polyfill", "detect", "ctl.new", "ctl.boot", "ext.new", "out.new", "probe:a.bin", "probe:b.bin", "ctl.load"}
	last := -1
	for _, call := range order {
		idx := f.trace.index(call)
		if idx <= last {
			t.Fatalf("%s out of order in %v", call, f.trace.calls)
		}
		last = idx
	}

	format, backend := i.Media()
	if format != "bin" || backend.Source().URL != "b.bin" {
		t.Fatalf("unexpected media: %s %v", format, backend)
	}
	stats := i.Stats()
	if stats["controller"].Name != "ctl" || stats["player"].Name != "out" || stats["media"].Name != "bin" || stats["extension:ext"].Name != "ext" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if i.Module("ext") == nil || i.Module("ctl") != i.Controller() || i.Module("bin") != backend || i.Module("nope") != nil {
		t.Fatalf("module lookup mismatch")
	}
}

func TestIgnorePolyfillsSkipsPolyfill(t *testing.T) {
	f := newFixture(t)
	f.cfg.IgnorePolyfills = true
	if _, err := f.instance().Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	if f.trace.count("polyfill") != 0 {
		t.Fatalf("polyfill must be skipped")
	}
}

func TestNoSupportedFormatEntersErrorState(t *testing.T) {
	f := newFixture(t)
	f.matchURL = "none"
	i := f.instance()
	log := watch(i)

	out, err := i.Init(context.Background())
	if err != nil {
		t.Fatalf("format failures are not fatal: %v", err)
	}
	if out.State != StateError || out.Stage != StageSelect || i.State() != StateError {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !errors.Is(out.Err, xerrors.ErrNoSupportedFormat) {
		t.Fatalf("expected NO_SUPPORTED_FORMAT, got %v", out.Err)
	}
	if log.n(events.Error) != 1 || log.n(events.Ready) != 0 {
		t.Fatalf("unexpected events: %+v", log.counts)
	}
	if !errors.Is(log.errs[0], xerrors.ErrNoSupportedFormat) {
		t.Fatalf("error event payload mismatch: %v", log.errs[0])
	}
	if f.trace.count("ctl.load") != 0 {
		t.Fatalf("load must not be attempted without media")
	}
	if f.trace.count("ctl.unload") != 1 {
		t.Fatalf("controller must be unloaded once, got %d", f.trace.count("ctl.unload"))
	}
	if err := i.Play(context.Background()); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("play in error state must be misuse, got %v", err)
	}
}

func TestControllerLoadFailureWrapsCause(t *testing.T) {
	f := newFixture(t)
	cause := errors.New("device busy")
	f.controller.loadErr = cause
	i := f.instance()
	log := watch(i)

	out, err := i.Init(context.Background())
	if err != nil {
		t.Fatalf("load failures are not fatal: %v", err)
	}
	if out.State != StateError || out.Stage != StageLoad {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if !errors.Is(out.Err, xerrors.ErrControllerLoadFailed) || !errors.Is(out.Err, cause) {
		t.Fatalf("expected wrapped load failure, got %v", out.Err)
	}
	if log.n(events.Error) != 1 || log.n(events.Ready) != 0 {
		t.Fatalf("unexpected events: %+v", log.counts)
	}

	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy from error: %v", err)
	}
	if f.trace.count("ctl.unload") != 1 {
		t.Fatalf("controller must be unloaded exactly once, got %d", f.trace.count("ctl.unload"))
	}
}

func TestMissingControllerIsFatal(t *testing.T) {
	f := newFixture(t)
	f.noCtrl = true
	i := f.instance()
	log := watch(i)

	out, err := i.Init(context.Background())
	if !errors.Is(err, xerrors.ErrNoSupportedModule) {
		t.Fatalf("expected NO_SUPPORTED_MODULE, got %v", err)
	}
	if e, _ := xerrors.From(err); e.Metadata()["role"] != "controller" {
		t.Fatalf("role metadata missing: %v", err)
	}
	if out.State != StateInitializing || out.Stage != StageController || i.State() != StateInitializing {
		t.Fatalf("fatal failures must not transition to error: %+v", out)
	}
	if log.n(events.Error) != 0 || log.n(events.Ready) != 0 {
		t.Fatalf("fatal failures emit nothing: %+v", log.counts)
	}
	if f.trace.count("ext.new") != 0 {
		t.Fatalf("no later stage may run")
	}
	if err := i.Destroy(); err != nil || i.State() != StateDestroyed {
		t.Fatalf("destroy after fatal failure: %v", err)
	}
}

func TestMissingPlayerIsFatalAndDestroyReleasesResolvedModules(t *testing.T) {
	f := newFixture(t)
	f.noPlayer = true
	i := f.instance()

	if _, err := i.Init(context.Background()); !errors.Is(err, xerrors.ErrNoSupportedModule) {
		t.Fatalf("expected NO_SUPPORTED_MODULE, got %v", err)
	}
	if f.trace.count("probe:a.bin") != 0 {
		t.Fatalf("media selection must not run")
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if f.trace.count("ctl.unload") != 1 || f.trace.count("ext.unload") != 1 {
		t.Fatalf("resolved modules must be unloaded: %v", f.trace.calls)
	}
}

func TestControllerBootFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.controller.bootErr = errors.New("bad settings")
	i := f.instance()
	_, err := i.Init(context.Background())
	if xerrors.CodeOf(err) != xerrors.CodeModuleConstruction || !errors.Is(err, f.controller.bootErr) {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.trace.count("ext.new") != 0 {
		t.Fatalf("extensions must not resolve after failed boot")
	}
}

func TestDestroyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	log := watch(i)
	if _, err := i.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}

	var sawController bool
	i.On(events.Destroy, func(any) { sawController = i.Controller() != nil })

	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("second destroy: %v", err)
	}

	if !sawController {
		t.Fatalf("destroy listeners must observe live state")
	}
	if log.n(events.Destroy) != 1 {
		t.Fatalf("destroy emitted %d times", log.n(events.Destroy))
	}
	for _, call := range []string{"ctl.unload", "ext.unload", "out.unload", "media.unload"} {
		if f.trace.count(call) != 1 {
			t.Fatalf("%s called %d times", call, f.trace.count(call))
		}
	}
	for _, name := range []string{"ctl", "ext", "out", "bin"} {
		if i.Module(name) != nil {
			t.Fatalf("module %s still reachable after destroy", name)
		}
	}
	if len(i.Stats()) != 0 || i.State() != StateDestroyed {
		t.Fatalf("references must be released")
	}
	if len(f.host.Roots()) != 0 || len(i.Container().Children()) != 0 {
		t.Fatalf("container must be detached and cleared")
	}
	if i.Emit(events.Ready, nil) != 0 {
		t.Fatalf("listeners must be removed")
	}
	if err := i.Play(context.Background()); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("play after destroy must be misuse, got %v", err)
	}
	if err := i.SetError(errors.New("late")); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("set error after destroy must be misuse, got %v", err)
	}
}

func TestAutoplayRequiresConfigAndEnvironment(t *testing.T) {
	for _, tc := range []struct {
		autoplay, allowed bool
	}{
		{false, false}, {true, false}, {false, true}, {true, true},
	} {
		f := newFixture(t)
		f.cfg.Autoplay = tc.autoplay
		f.canAutoplay = tc.allowed
		if _, err := f.instance().Init(context.Background()); err != nil {
			t.Fatalf("init: %v", err)
		}
		want := 0
		if tc.autoplay && tc.allowed {
			want = 1
		}
		if got := f.trace.count("ctl.play"); got != want {
			t.Fatalf("autoplay=%v allowed=%v: play called %d times", tc.autoplay, tc.allowed, got)
		}
		if want == 1 && f.trace.index("ctl.play") < f.trace.index("ctl.load") {
			t.Fatalf("autoplay must follow load")
		}
	}
}

func TestPlaybackOperationsRequireReady(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	ctx := context.Background()

	checks := []func() error{
		func() error { return i.Play(ctx) },
		func() error { return i.Pause(ctx) },
		func() error { return i.SeekTo(ctx, time.Second) },
		func() error { return i.SetVolume(ctx, 0.5) },
	}
	for _, op := range checks {
		if err := op(); !errors.Is(err, xerrors.ErrInvalidState) {
			t.Fatalf("operation before init must be misuse, got %v", err)
		}
	}
	if _, err := i.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, op := range checks {
		if err := op(); err != nil {
			t.Fatalf("operation when ready: %v", err)
		}
	}
	for _, call := range []string{"ctl.play", "ctl.pause", "ctl.seek", "ctl.volume"} {
		if f.trace.count(call) != 1 {
			t.Fatalf("%s not delegated", call)
		}
	}
	if _, err := i.Init(ctx); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("second init must be misuse, got %v", err)
	}
}

func TestSetErrorFromReady(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	if err := i.SetError(errors.New("early")); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("set error without controller must be misuse, got %v", err)
	}
	if _, err := i.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	log := watch(i)
	cause := errors.New("stream stalled")
	if err := i.SetError(cause); err != nil {
		t.Fatalf("set error: %v", err)
	}
	if err := i.SetError(cause); err != nil {
		t.Fatalf("second set error: %v", err)
	}
	if i.State() != StateError || log.n(events.Error) != 2 || log.errs[0] != cause {
		t.Fatalf("unexpected state %v / events %+v", i.State(), log.counts)
	}
	if f.trace.count("ctl.unload") != 1 {
		t.Fatalf("controller unload must be idempotent")
	}
	if i.Container().Child(container.Playback) == nil {
		t.Fatalf("set error must not touch the container")
	}
}

func TestStartRunsInitInBackground(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	task := i.Start(context.Background())
	select {
	case <-task.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("init did not finish")
	}
	out, err := task.Result()
	if err != nil || out.State != StateReady {
		t.Fatalf("unexpected result: %+v %v", out, err)
	}
	if out, err := task.Wait(context.Background()); err != nil || out.State != StateReady {
		t.Fatalf("wait: %+v %v", out, err)
	}
}

func TestDestroyDuringInitIsRejected(t *testing.T) {
	f := newFixture(t)
	release := make(chan struct{})
	entered := make(chan struct{})
	f.controller.loadErr = nil
	i, err := New(f.cfg, Options{
		Modules: f.registry(),
		Media:   f.media(),
		Detector: env.DetectorFunc(func(context.Context, *config.Config) (env.Snapshot, error) {
			close(entered)
			<-release
			return env.NewSnapshot(false, "test", nil), nil
		}),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	task := i.Start(context.Background())
	<-entered
	if err := i.Destroy(); !errors.Is(err, xerrors.ErrInvalidState) {
		t.Fatalf("destroy during init must be misuse, got %v", err)
	}
	close(release)
	if out, _ := task.Result(); out.State != StateReady {
		t.Fatalf("init must complete: %+v", out)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy after init: %v", err)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, Options{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("nil config must be rejected, got %v", err)
	}
	if _, err := New(&config.Config{}, Options{}); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("missing registries must be rejected, got %v", err)
	}
	if StateReady.String() != "ready" || State(42).String() != "unknown" {
		t.Fatalf("unexpected state names")
	}
}

func TestSetErrorDuringInitStopsBootstrap(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	log := watch(i)
	cause := errors.New("host revoked output")
	var (
		fired  bool
		setErr error
	)
	f.onProbe = func() {
		if !fired {
			fired = true
			setErr = i.SetError(cause)
		}
	}

	out, err := i.Init(context.Background())
	if err != nil || setErr != nil {
		t.Fatalf("init: %v / set error: %v", err, setErr)
	}
	if out.State != StateError || out.Stage != StageSelect || out.Err != cause || i.State() != StateError {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if log.n(events.Error) != 1 || log.n(events.Ready) != 0 {
		t.Fatalf("unexpected events: %+v", log.counts)
	}
	if f.trace.count("ctl.load") != 0 {
		t.Fatalf("controller must not load after set error: %v", f.trace.calls)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	for _, call := range []string{"ctl.unload", "ext.unload", "out.unload", "media.unload"} {
		if f.trace.count(call) != 1 {
			t.Fatalf("%s called %d times: %v", call, f.trace.count(call), f.trace.calls)
		}
	}
}

func TestSetErrorDuringLoadUnloadsLoadedController(t *testing.T) {
	f := newFixture(t)
	i := f.instance()
	log := watch(i)
	cause := errors.New("device lost")
	f.controller.onLoad = func() { _ = i.SetError(cause) }

	out, err := i.Init(context.Background())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if out.State != StateError || out.Stage != StageLoad || i.State() != StateError {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if log.n(events.Error) != 1 || log.n(events.Ready) != 0 {
		t.Fatalf("unexpected events: %+v", log.counts)
	}
	if f.trace.last("ctl.unload") < f.trace.index("ctl.load") {
		t.Fatalf("controller must be unloaded after load: %v", f.trace.calls)
	}
	unloads := f.trace.count("ctl.unload")
	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if f.trace.count("ctl.unload") != unloads {
		t.Fatalf("destroy must not unload the controller again: %v", f.trace.calls)
	}
}

func TestCancelDuringLoadIsFatal(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.controller.onLoad = cancel
	i := f.instance()
	log := watch(i)

	out, err := i.Init(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if out.State != StateInitializing || out.Stage != StageLoad || xerrors.CodeOf(out.Err) == xerrors.CodeControllerLoadFailed {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if log.n(events.Error) != 0 || log.n(events.Ready) != 0 {
		t.Fatalf("fatal failures emit nothing: %+v", log.counts)
	}
	if err := i.Destroy(); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if f.trace.count("ctl.unload") != 1 {
		t.Fatalf("loaded controller must be released by destroy: %v", f.trace.calls)
	}
}

func TestFailedExtensionIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.extErr = errors.New("sink unreachable")
	i := f.instance()

	out, err := i.Init(context.Background())
	if err != nil || out.State != StateReady {
		t.Fatalf("extension failures must not stop bootstrap: %+v %v", out, err)
	}
	if len(i.Extensions()) != 0 || i.Module("ext") != nil {
		t.Fatalf("failed extension must be dropped")
	}
	if _, ok := i.Stats()["extension:ext"]; ok {
		t.Fatalf("failed extension must not appear in stats")
	}
}
