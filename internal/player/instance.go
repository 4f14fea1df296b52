package player

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"PlayCore/internal/config"
	"PlayCore/internal/container"
	"PlayCore/internal/env"
	xerrors "PlayCore/internal/errors"
	"PlayCore/internal/events"
	"PlayCore/internal/media"
	"PlayCore/internal/observability/alerting"
	"PlayCore/internal/observability/metrics"
	"PlayCore/pkg/logger"
	"PlayCore/pkg/module"
)

// Options 汇总实例的外部协作者。
type Options struct {
	// Modules 是按角色排序的模块注册表，实例只读使用。
	Modules *module.Registry
	// Media 是按注册顺序排列的格式/后端注册表。
	Media *media.Registry
	// Detector 为空时使用 env.RuntimeDetector。
	Detector env.Detector
	// Polyfill 为空时使用 env.MimePolyfill。
	Polyfill env.Polyfiller
	// Host 接收实例的容器根节点，可为空。
	Host container.Host
	// Alerts 接收需要告警的错误，可为空。
	Alerts alerting.Dispatcher
	Logger *slog.Logger
}

// Instance 是一个播放实例，独占其模块、媒体后端与容器子树。
type Instance struct {
	id      string
	cfg     *config.Config
	opts    Options
	log     *slog.Logger
	emitter *events.Emitter
	root    *container.Node

	mu                 sync.RWMutex
	state              State
	running            bool
	destroying         bool
	snapshot           env.Snapshot
	controller         module.Controller
	controllerUnloaded bool
	// interrupted 是 Init 运行期间经 SetError 传入的错误，Init 在下一个阶段边界停止。
	interrupted        error
	player             module.Player
	extensions         []module.Extension
	pair               *media.Pair
}

var _ module.Owner = (*Instance)(nil)

// New 创建实例并分配容器层级，状态为 Constructing。
func New(cfg *config.Config, opts Options) (*Instance, error) {
	if cfg == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "config is required")
	}
	if opts.Modules == nil || opts.Media == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "module and media registries are required")
	}
	if opts.Detector == nil {
		opts.Detector = env.RuntimeDetector{}
	}
	if opts.Polyfill == nil {
		opts.Polyfill = env.MimePolyfill()
	}
	log := opts.Logger
	if log == nil {
		log = logger.Named("instance")
	}

	id := uuid.NewString()
	i := &Instance{
		id:      id,
		cfg:     cfg,
		opts:    opts,
		log:     log.With(slog.String("instance_id", id)),
		emitter: events.NewEmitter(),
		root:    container.NewTree("playcore-" + id),
		state:   StateConstructing,
	}
	i.root.Set("instance", id)
	if opts.Host != nil {
		if err := opts.Host.Attach(i.root); err != nil {
			return nil, fmt.Errorf("attach container: %w", err)
		}
	}
	metrics.InstanceCreated()
	return i, nil
}

// ID implements module.Owner.
func (i *Instance) ID() string { return i.id }

// Config 返回实例配置，调用方不得修改。
func (i *Instance) Config() *config.Config { return i.cfg }

// Container implements module.Owner.
func (i *Instance) Container() *container.Node { return i.root }

// State 返回当前状态。
func (i *Instance) State() State {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.state
}

// Snapshot 返回 Init 期间计算的环境快照。
func (i *Instance) Snapshot() env.Snapshot {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.snapshot
}

// Controller implements module.Owner.
func (i *Instance) Controller() module.Controller {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.controller
}

// Player implements module.Owner.
func (i *Instance) Player() module.Player {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.player
}

// Media implements module.Owner.
func (i *Instance) Media() (string, media.Backend) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.pair == nil {
		return "", nil
	}
	return i.pair.Format, i.pair.Backend
}

// Extensions 返回已解析扩展的副本。
func (i *Instance) Extensions() []module.Extension {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]module.Extension(nil), i.extensions...)
}

// On implements module.Owner.
func (i *Instance) On(event string, fn events.Listener) events.ListenerID {
	return i.emitter.On(event, fn)
}

// Once implements module.Owner.
func (i *Instance) Once(event string, fn events.Listener) events.ListenerID {
	return i.emitter.Once(event, fn)
}

// RemoveListener implements module.Owner.
func (i *Instance) RemoveListener(event string, id events.ListenerID) bool {
	return i.emitter.RemoveListener(event, id)
}

// Emit 同步通知 event 的监听者，返回被调用的监听者数量。
func (i *Instance) Emit(event string, payload any) int {
	return i.emitter.Emit(event, payload)
}

// Init 按顺序执行启动流程。返回的 error 非空表示致命失败：实例停留在
// Initializing，已解析的模块由后续的 Destroy 释放。媒体选择或控制器加载失败
// 不返回 error，而是进入 Error 状态并在 Outcome.Err 中给出原因。
func (i *Instance) Init(ctx context.Context) (Outcome, error) {
	i.mu.Lock()
	if i.state != StateConstructing {
		state := i.state
		i.mu.Unlock()
		err := xerrors.Misuse("init", state.String())
		return Outcome{State: state, Err: err}, err
	}
	i.running = true
	i.mu.Unlock()
	i.transition(StateInitializing)

	defer func() {
		i.mu.Lock()
		i.running = false
		i.mu.Unlock()
	}()

	if !i.cfg.IgnorePolyfills {
		if err := i.run(ctx, StagePolyfill, i.opts.Polyfill.Apply); err != nil {
			return i.fatal(StagePolyfill, xerrors.Wrap(xerrors.CodeEnvironmentFailure, err, "apply polyfills"))
		}
	}

	var snapshot env.Snapshot
	if err := i.run(ctx, StageDetect, func(ctx context.Context) error {
		var err error
		snapshot, err = i.opts.Detector.Detect(ctx, i.cfg)
		return err
	}); err != nil {
		return i.fatal(StageDetect, xerrors.Wrap(xerrors.CodeEnvironmentFailure, err, "detect environment"))
	}
	i.mu.Lock()
	i.snapshot = snapshot
	i.mu.Unlock()

	scope := module.Scope{Owner: i, Config: i.cfg, Env: snapshot, Logger: i.log}

	var controller module.Controller
	if err := i.run(ctx, StageController, func(ctx context.Context) error {
		var err error
		controller, err = module.ResolveFirst[module.Controller](ctx, i.opts.Modules, module.RoleController, scope)
		return err
	}); err != nil {
		return i.fatal(StageController, err)
	}
	i.mu.Lock()
	i.controller = controller
	i.mu.Unlock()

	if err := i.run(ctx, StageBoot, controller.Boot); err != nil {
		return i.fatal(StageBoot, xerrors.Wrap(xerrors.CodeModuleConstruction, err,
			"boot controller "+controller.Name(), xerrors.WithMetadata("module", controller.Name())))
	}
	if out, stop := i.interruptedAt(StageBoot); stop {
		return out, nil
	}

	var extensions []module.Extension
	if err := i.run(ctx, StageExtensions, func(ctx context.Context) error {
		var err error
		extensions, err = module.ResolveAll[module.Extension](ctx, i.opts.Modules, module.RoleExtension, scope)
		return err
	}); err != nil {
		return i.fatal(StageExtensions, err)
	}
	i.mu.Lock()
	i.extensions = extensions
	i.mu.Unlock()
	if out, stop := i.interruptedAt(StageExtensions); stop {
		return out, nil
	}

	var player module.Player
	if err := i.run(ctx, StagePlayer, func(ctx context.Context) error {
		var err error
		player, err = module.ResolveFirst[module.Player](ctx, i.opts.Modules, module.RolePlayer, scope)
		return err
	}); err != nil {
		return i.fatal(StagePlayer, err)
	}
	i.mu.Lock()
	i.player = player
	i.mu.Unlock()
	if out, stop := i.interruptedAt(StagePlayer); stop {
		return out, nil
	}

	sources := media.SourcesFrom(i.cfg.Sources)
	var pair *media.Pair
	selectErr := i.run(ctx, StageSelect, func(ctx context.Context) error {
		var err error
		pair, err = media.Select(ctx, sources, i.opts.Media)
		return err
	})
	if pair != nil {
		i.mu.Lock()
		i.pair = pair
		i.mu.Unlock()
	}
	if out, stop := i.interruptedAt(StageSelect); stop {
		return out, nil
	}
	if selectErr != nil {
		if cancelled(ctx, selectErr) {
			return i.fatal(StageSelect, selectErr)
		}
		return i.fail(StageSelect, xerrors.Wrap(xerrors.CodeNoSupportedFormat, selectErr, ""))
	}
	if pair == nil {
		return i.fail(StageSelect, xerrors.New(xerrors.CodeNoSupportedFormat, "",
			xerrors.WithMetadata("sources", strconv.Itoa(len(sources)))))
	}
	i.log.Info("media bound", slog.String("format", pair.Format), slog.String("source", pair.Source.URL))

	loadErr := i.run(ctx, StageLoad, controller.Load)
	// Load 之后控制器重新持有资源，即使 SetError 在 Load 期间已卸载过一次。
	i.mu.Lock()
	i.controllerUnloaded = false
	i.mu.Unlock()
	if out, stop := i.interruptedAt(StageLoad); stop {
		i.unloadController()
		return out, nil
	}
	if loadErr != nil {
		if cancelled(ctx, loadErr) {
			return i.fatal(StageLoad, loadErr)
		}
		return i.fail(StageLoad, xerrors.ControllerLoadFailed(controller.Name(), loadErr))
	}

	if !i.advance(StateInitializing, StateReady) {
		out, _ := i.interruptedAt(StageReady)
		return out, nil
	}
	i.emitter.Emit(events.Ready, nil)

	if i.cfg.Autoplay && snapshot.CanAutoplay() {
		if err := i.Play(ctx); err != nil {
			i.log.Warn("autoplay failed", slog.Any("error", err))
		}
	}
	return Outcome{State: StateReady, Stage: StageReady}, nil
}

// cancelled 判断 err 是否由 ctx 的取消或超时引起。
func cancelled(ctx context.Context, err error) bool {
	ctxErr := ctx.Err()
	return ctxErr != nil && stdErrors.Is(err, ctxErr)
}

// interruptedAt 报告 SetError 是否已在 Init 期间把实例转入 Error。
// 控制器与 error 事件已由 SetError 处理，这里只生成 Outcome。
func (i *Instance) interruptedAt(stage Stage) (Outcome, bool) {
	i.mu.RLock()
	err := i.interrupted
	i.mu.RUnlock()
	if err == nil {
		return Outcome{}, false
	}
	i.log.Warn("bootstrap interrupted",
		slog.String("stage", string(stage)),
		slog.Any("error", err))
	return Outcome{State: StateError, Stage: stage, Err: err}, true
}

// run 执行单个阶段并记录耗时。
func (i *Instance) run(ctx context.Context, stage Stage, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveStage(string(stage), outcome, elapsed)
	i.log.Debug("stage finished",
		slog.String("stage", string(stage)),
		slog.String("outcome", outcome),
		slog.Duration("elapsed", elapsed))
	return err
}

func (i *Instance) fatal(stage Stage, err error) (Outcome, error) {
	i.log.Error("bootstrap failed",
		slog.String("stage", string(stage)),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err))
	i.alert(stage, err)
	return Outcome{State: i.State(), Stage: stage, Err: err}, err
}

func (i *Instance) fail(stage Stage, err error) (Outcome, error) {
	i.log.Warn("bootstrap entered error state",
		slog.String("stage", string(stage)),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err))
	i.alert(stage, err)
	i.transition(StateError)
	i.unloadController()
	i.emitter.Emit(events.Error, err)
	return Outcome{State: StateError, Stage: stage, Err: err}, nil
}

func (i *Instance) alert(stage Stage, err error) {
	if i.opts.Alerts == nil {
		return
	}
	ev, ok := alerting.FromError(i.id, string(stage), err)
	if !ok {
		return
	}
	if nerr := i.opts.Alerts.Notify(context.Background(), ev); nerr != nil {
		i.log.Warn("alert dispatch failed", slog.Any("error", nerr))
	}
}

// SetError 卸载控制器并发出携带 err 的 error 事件，实例转入 Error。
// 在 Init 运行期间调用时，Init 会在当前阶段结束后停止，不再加载控制器或进入 Ready。
func (i *Instance) SetError(err error) error {
	if err == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "error is required")
	}
	i.mu.Lock()
	state := i.state
	if state == StateDestroyed || i.destroying || i.controller == nil {
		i.mu.Unlock()
		return xerrors.Misuse("setError", state.String())
	}
	if i.running && i.interrupted == nil {
		i.interrupted = err
	}
	i.state = StateError
	i.mu.Unlock()
	if state != StateError {
		i.record(state, StateError)
	}
	i.unloadController()
	i.emitter.Emit(events.Error, err)
	return nil
}

func (i *Instance) unloadController() {
	i.mu.Lock()
	controller := i.controller
	if controller == nil || i.controllerUnloaded {
		i.mu.Unlock()
		return
	}
	i.controllerUnloaded = true
	i.mu.Unlock()
	controller.Unload()
}

func (i *Instance) transition(to State) {
	i.mu.Lock()
	from := i.state
	i.state = to
	i.mu.Unlock()
	i.record(from, to)
}

// advance 仅当当前状态为 from 时切换到 to。
func (i *Instance) advance(from, to State) bool {
	i.mu.Lock()
	if i.state != from {
		i.mu.Unlock()
		return false
	}
	i.state = to
	i.mu.Unlock()
	i.record(from, to)
	return true
}

func (i *Instance) record(from, to State) {
	metrics.ObserveTransition(from.String(), to.String())
	logger.Journal().Info("state transition",
		slog.String("instance_id", i.id),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

// Destroy 先发出 destroy 事件，再移除所有监听者、卸载全部模块、释放引用并
// 从宿主上卸下容器。重复调用直接返回 nil；Init 运行期间调用返回 INVALID_STATE。
func (i *Instance) Destroy() error {
	i.mu.Lock()
	if i.destroying || i.state == StateDestroyed {
		i.mu.Unlock()
		return nil
	}
	if i.running {
		i.mu.Unlock()
		return xerrors.Misuse("destroy", "initializing")
	}
	i.destroying = true
	i.mu.Unlock()

	i.emitter.Emit(events.Destroy, nil)
	i.emitter.RemoveAll()
	i.unloadController()

	i.mu.Lock()
	extensions := i.extensions
	player := i.player
	pair := i.pair
	i.controller = nil
	i.player = nil
	i.extensions = nil
	i.pair = nil
	i.mu.Unlock()

	for idx := len(extensions) - 1; idx >= 0; idx-- {
		extensions[idx].Unload()
	}
	if player != nil {
		player.Unload()
	}
	if pair != nil && pair.Backend != nil {
		pair.Backend.Unload()
	}

	if i.opts.Host != nil {
		i.opts.Host.Detach(i.root)
	}
	i.root.Clear()

	i.transition(StateDestroyed)
	metrics.InstanceDestroyed()
	i.log.Info("instance destroyed")
	return nil
}

// Play 委托给控制器，仅在 Ready 状态可用。
func (i *Instance) Play(ctx context.Context) error {
	c, err := i.readyController("play")
	if err != nil {
		return err
	}
	return c.Play(ctx)
}

// Pause 委托给控制器，仅在 Ready 状态可用。
func (i *Instance) Pause(ctx context.Context) error {
	c, err := i.readyController("pause")
	if err != nil {
		return err
	}
	return c.Pause(ctx)
}

// SeekTo 委托给控制器，仅在 Ready 状态可用。
func (i *Instance) SeekTo(ctx context.Context, position time.Duration) error {
	c, err := i.readyController("seekTo")
	if err != nil {
		return err
	}
	return c.SeekTo(ctx, position)
}

// SetVolume 委托给控制器，仅在 Ready 状态可用。
func (i *Instance) SetVolume(ctx context.Context, volume float64) error {
	c, err := i.readyController("setVolume")
	if err != nil {
		return err
	}
	return c.SetVolume(ctx, volume)
}

func (i *Instance) readyController(op string) (module.Controller, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.state != StateReady || i.destroying || i.controller == nil {
		state := i.state
		if i.destroying {
			state = StateDestroyed
		}
		return nil, xerrors.Misuse(op, state.String())
	}
	return i.controller, nil
}

// Stats 返回当前已解析模块的快照。键为 controller、media、player 以及
// extension:<name>。
func (i *Instance) Stats() map[string]Stat {
	i.mu.RLock()
	defer i.mu.RUnlock()
	stats := make(map[string]Stat, 3+len(i.extensions))
	if i.controller != nil {
		stats["controller"] = Stat{Name: i.controller.Name(), Module: i.controller}
	}
	if i.pair != nil {
		stats["media"] = Stat{Name: i.pair.Format, Module: i.pair.Backend}
	}
	if i.player != nil {
		stats["player"] = Stat{Name: i.player.Name(), Module: i.player}
	}
	for _, ext := range i.extensions {
		stats["extension:"+ext.Name()] = Stat{Name: ext.Name(), Module: ext}
	}
	return stats
}

// Module 按扩展、控制器、媒体、播放器的顺序查找名为 name 的模块。
// 媒体同时匹配格式名与后端名。
func (i *Instance) Module(name string) any {
	i.mu.RLock()
	defer i.mu.RUnlock()
	for _, ext := range i.extensions {
		if ext.Name() == name {
			return ext
		}
	}
	if i.controller != nil && i.controller.Name() == name {
		return i.controller
	}
	if i.pair != nil && i.pair.Backend != nil && (i.pair.Format == name || i.pair.Backend.Name() == name) {
		return i.pair.Backend
	}
	if i.player != nil && i.player.Name() == name {
		return i.player
	}
	return nil
}
