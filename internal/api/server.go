package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"time"

	xerrors "PlayCore/internal/errors"
	"PlayCore/internal/player"
)

// Target 是控制接口驱动的实例，*player.Instance 满足该接口。
type Target interface {
	ID() string
	State() player.State
	Stats() map[string]player.Stat
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	SeekTo(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, volume float64) error
}

// Server 负责暴露实例控制接口。
type Server struct {
	addr   string
	target Target
}

// NewServer 构造控制服务。
func NewServer(addr string, target Target) *Server {
	return &Server{addr: addr, target: target}
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/instance", s.handleInstance)
	mux.HandleFunc("/api/v1/instance/play", s.handlePlay)
	mux.HandleFunc("/api/v1/instance/pause", s.handlePause)
	mux.HandleFunc("/api/v1/instance/seek", s.handleSeek)
	mux.HandleFunc("/api/v1/instance/volume", s.handleVolume)
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// InstanceView 是 GET /api/v1/instance 的响应体。
type InstanceView struct {
	ID      string            `json:"id"`
	State   string            `json:"state"`
	Modules map[string]string `json:"modules"`
	Roles   []string          `json:"roles"`
}

func (s *Server) handleInstance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	stats := s.target.Stats()
	view := InstanceView{
		ID:      s.target.ID(),
		State:   s.target.State().String(),
		Modules: make(map[string]string, len(stats)),
		Roles:   make([]string, 0, len(stats)),
	}
	for role, stat := range stats {
		view.Modules[role] = stat.Name
		view.Roles = append(view.Roles, role)
	}
	sort.Strings(view.Roles)
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handlePlay(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context) error { return s.target.Play(ctx) })
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context) error { return s.target.Pause(ctx) })
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	position, err := time.ParseDuration(r.URL.Query().Get("position"))
	if err != nil {
		http.Error(w, "position 参数无效", http.StatusBadRequest)
		return
	}
	s.command(w, r, func(ctx context.Context) error { return s.target.SeekTo(ctx, position) })
}

func (s *Server) handleVolume(w http.ResponseWriter, r *http.Request) {
	volume, err := strconv.ParseFloat(r.URL.Query().Get("value"), 64)
	if err != nil {
		http.Error(w, "value 参数无效", http.StatusBadRequest)
		return
	}
	s.command(w, r, func(ctx context.Context) error { return s.target.SetVolume(ctx, volume) })
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, fn func(context.Context) error) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	if err := fn(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"state": s.target.State().String()})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidState:
		status = http.StatusConflict
	case xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	}
	writeJSON(w, status, errorBody{Code: string(xerrors.CodeOf(err)), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
