package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

type stageKey struct {
	stage   string
	outcome string
}

type transitionKey struct {
	from string
	to   string
}

type histogram struct {
	buckets []float64
	counts  []uint64
	sum     float64
	count   uint64
}

type collector struct {
	mu          sync.Mutex
	stages      map[stageKey]uint64
	transitions map[transitionKey]uint64
	latency     map[string]*histogram
	live        int64
}

var lifecycle = newCollector()

func newCollector() *collector {
	return &collector{
		stages:      make(map[stageKey]uint64),
		transitions: make(map[transitionKey]uint64),
		latency:     make(map[string]*histogram),
	}
}

// ObserveStage records one bootstrap stage and how it ended ("ok" or "error").
func ObserveStage(stage, outcome string, duration time.Duration) {
	lifecycle.observeStage(stage, outcome, duration)
}

// ObserveTransition counts a lifecycle state change.
func ObserveTransition(from, to string) {
	lifecycle.observeTransition(from, to)
}

// InstanceCreated and InstanceDestroyed maintain the live instance gauge.
func InstanceCreated() { lifecycle.addLive(1) }

// InstanceDestroyed decrements the live instance gauge.
func InstanceDestroyed() { lifecycle.addLive(-1) }

func (c *collector) observeStage(stage, outcome string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stages[stageKey{stage: stage, outcome: outcome}]++
	hist := c.latency[stage]
	if hist == nil {
		hist = newHistogram()
		c.latency[stage] = hist
	}
	hist.observe(duration.Seconds())
}

func (c *collector) observeTransition(from, to string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.transitions[transitionKey{from: from, to: to}]++
}

func (c *collector) addLive(delta int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.live += delta
}

func newHistogram() *histogram {
	buckets := []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
	return &histogram{
		buckets: buckets,
		counts:  make([]uint64, len(buckets)),
	}
}

func (h *histogram) observe(value float64) {
	h.count++
	h.sum += value
	// 超出最后一个桶的值只计入 +Inf，即 h.count。
	for idx, bound := range h.buckets {
		if value <= bound {
			for i := idx; i < len(h.counts); i++ {
				h.counts[i]++
			}
			break
		}
	}
}

// Handler exposes the metrics in Prometheus text exposition format.
func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		_, _ = fmt.Fprint(w, lifecycle.render())
	})
}

func (c *collector) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	type stageMetric struct {
		stageKey
		value uint64
	}
	type transitionMetric struct {
		transitionKey
		value uint64
	}
	type latencyMetric struct {
		stage   string
		buckets []float64
		counts  []uint64
		sum     float64
		count   uint64
	}

	stages := make([]stageMetric, 0, len(c.stages))
	for key, value := range c.stages {
		stages = append(stages, stageMetric{stageKey: key, value: value})
	}
	transitions := make([]transitionMetric, 0, len(c.transitions))
	for key, value := range c.transitions {
		transitions = append(transitions, transitionMetric{transitionKey: key, value: value})
	}
	lats := make([]latencyMetric, 0, len(c.latency))
	for stage, hist := range c.latency {
		lats = append(lats, latencyMetric{
			stage:   stage,
			buckets: append([]float64(nil), hist.buckets...),
			counts:  append([]uint64(nil), hist.counts...),
			sum:     hist.sum,
			count:   hist.count,
		})
	}

	sort.Slice(stages, func(i, j int) bool {
		if stages[i].stage == stages[j].stage {
			return stages[i].outcome < stages[j].outcome
		}
		return stages[i].stage < stages[j].stage
	})
	sort.Slice(transitions, func(i, j int) bool {
		if transitions[i].from == transitions[j].from {
			return transitions[i].to < transitions[j].to
		}
		return transitions[i].from < transitions[j].from
	})
	sort.Slice(lats, func(i, j int) bool { return lats[i].stage < lats[j].stage })

	var builder strings.Builder
	builder.Grow(1024)

	builder.WriteString("# HELP playcore_live_instances Number of instances that have not been destroyed.\n")
	builder.WriteString("# TYPE playcore_live_instances gauge\n")
	builder.WriteString(fmt.Sprintf("playcore_live_instances %d\n", c.live))

	builder.WriteString("# HELP playcore_bootstrap_stages_total Bootstrap stages completed, by outcome.\n")
	builder.WriteString("# TYPE playcore_bootstrap_stages_total counter\n")
	for _, metric := range stages {
		builder.WriteString(fmt.Sprintf("playcore_bootstrap_stages_total{stage=\"%s\",outcome=\"%s\"} %d\n",
			escape(metric.stage), escape(metric.outcome), metric.value))
	}

	builder.WriteString("# HELP playcore_state_transitions_total Lifecycle state transitions.\n")
	builder.WriteString("# TYPE playcore_state_transitions_total counter\n")
	for _, metric := range transitions {
		builder.WriteString(fmt.Sprintf("playcore_state_transitions_total{from=\"%s\",to=\"%s\"} %d\n",
			escape(metric.from), escape(metric.to), metric.value))
	}

	builder.WriteString("# HELP playcore_bootstrap_stage_duration_seconds Bootstrap stage duration in seconds.\n")
	builder.WriteString("# TYPE playcore_bootstrap_stage_duration_seconds histogram\n")
	for _, metric := range lats {
		for idx, bound := range metric.buckets {
			builder.WriteString(fmt.Sprintf("playcore_bootstrap_stage_duration_seconds_bucket{stage=\"%s\",le=\"%s\"} %d\n",
				escape(metric.stage), formatFloat(bound), metric.counts[idx]))
		}
		builder.WriteString(fmt.Sprintf("playcore_bootstrap_stage_duration_seconds_bucket{stage=\"%s\",le=\"+Inf\"} %d\n",
			escape(metric.stage), metric.count))
		builder.WriteString(fmt.Sprintf("playcore_bootstrap_stage_duration_seconds_sum{stage=\"%s\"} %s\n",
			escape(metric.stage), formatFloat(metric.sum)))
		builder.WriteString(fmt.Sprintf("playcore_bootstrap_stage_duration_seconds_count{stage=\"%s\"} %d\n",
			escape(metric.stage), metric.count))
	}

	return builder.String()
}

func escape(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "")
	return value
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// StartServer launches a standalone HTTP server exposing the /metrics endpoint.
// It blocks until ctx is cancelled or the listener fails.
func StartServer(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.New("metrics address is empty")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return err
	}
}
