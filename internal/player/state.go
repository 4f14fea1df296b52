package player

// State 是实例生命周期状态。
type State int32

const (
	StateConstructing State = iota
	StateInitializing
	StateReady
	StateError
	StateDestroyed
)

var stateNames = [...]string{"constructing", "initializing", "ready", "error", "destroyed"}

func (s State) String() string {
	if int(s) < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Stage 标识 Init 的各个步骤，用于日志、指标与 Outcome。
type Stage string

const (
	StagePolyfill   Stage = "polyfill"
	StageDetect     Stage = "detect"
	StageController Stage = "controller"
	StageBoot       Stage = "boot"
	StageExtensions Stage = "extensions"
	StagePlayer     Stage = "player"
	StageSelect     Stage = "select"
	StageLoad       Stage = "load"
	StageReady      Stage = "ready"
)

// Outcome 描述一次 Init 的结果。Err 在 Error 状态下携带 NO_SUPPORTED_FORMAT 或
// CONTROLLER_LOAD_FAILED；致命失败时与 Init 返回的 error 相同。
type Outcome struct {
	State State
	Stage Stage
	Err   error
}

// Stat 是 Stats 中的一项。
type Stat struct {
	Name   string
	Module any
}
