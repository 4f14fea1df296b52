package player

import "context"

// Task 是后台运行的 Init。
type Task struct {
	done    chan struct{}
	outcome Outcome
	err     error
}

// Start 在新的 goroutine 中运行 Init 并立即返回。
func (i *Instance) Start(ctx context.Context) *Task {
	t := &Task{done: make(chan struct{})}
	go func() {
		defer close(t.done)
		t.outcome, t.err = i.Init(ctx)
	}()
	return t
}

// Done 在 Init 结束后关闭。
func (t *Task) Done() <-chan struct{} { return t.done }

// Result 阻塞到 Init 结束，返回其结果。
func (t *Task) Result() (Outcome, error) {
	<-t.done
	return t.outcome, t.err
}

// Wait 与 Result 相同，但可以被 ctx 打断。打断不会取消正在进行的 Init。
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
