package world

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"voxeledit.ai/internal/sim/arbiter"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players      int `json:"players"`
	Sessions     int `json:"sessions"`
	LoadedChunks int `json:"loaded_chunks"`

	Status  string `json:"status"`
	Percent int    `json:"percent"`

	BlockWrites     uint64 `json:"block_writes"`
	NeighborUpdates uint64 `json:"neighbor_updates"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	st := w.arb.State()
	writes, neighbors := w.chunks.Counters()
	m := WorldMetrics{
		Tick:            w.tick.Load(),
		Players:         len(w.players),
		Sessions:        st.Sessions,
		LoadedChunks:    len(w.chunks.Chunks),
		Status:          string(st.Status),
		Percent:         st.Percent,
		BlockWrites:     writes,
		NeighborUpdates: neighbors,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: float64(step.Microseconds()) / 1000,
	}
	w.metrics.Store(m)

	w.prom.sessions.Set(float64(m.Sessions))
	w.prom.loadedChunks.Set(float64(m.LoadedChunks))
	w.prom.percent.Set(float64(m.Percent))
	if st.Status == arbiter.StatusIdle {
		w.prom.busy.Set(0)
	} else {
		w.prom.busy.Set(1)
	}
}

type promMetrics struct {
	ticks        prometheus.Counter
	stepSeconds  prometheus.Histogram
	acks         *prometheus.CounterVec
	edits        *prometheus.CounterVec
	cells        prometheus.Counter
	aborted      prometheus.Counter
	dropped      prometheus.Counter
	snapshots    *prometheus.CounterVec
	sessions     prometheus.Gauge
	loadedChunks prometheus.Gauge
	percent      prometheus.Gauge
	busy         prometheus.Gauge
}

func newPromMetrics(reg prometheus.Registerer) *promMetrics {
	f := promauto.With(reg)
	return &promMetrics{
		ticks: f.NewCounter(prometheus.CounterOpts{
			Name: "voxeledit_ticks_total",
			Help: "World loop ticks executed",
		}),
		stepSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "voxeledit_step_duration_seconds",
			Help:    "Wall time of one world tick",
			Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.03, 0.05, 0.1},
		}),
		acks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxeledit_acks_total",
			Help: "Acknowledgements sent, by stream and state",
		}, []string{"stream", "state"}),
		edits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxeledit_edits_completed_total",
			Help: "Completed edits by kind",
		}, []string{"kind"}),
		cells: f.NewCounter(prometheus.CounterOpts{
			Name: "voxeledit_cells_written_total",
			Help: "Cells written by completed actions",
		}),
		aborted: f.NewCounter(prometheus.CounterOpts{
			Name: "voxeledit_actions_aborted_total",
			Help: "Actions cancelled by an undo while in flight",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Name: "voxeledit_outbound_dropped_total",
			Help: "Outbound messages dropped because a client queue was full",
		}),
		snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "voxeledit_snapshots_total",
			Help: "Snapshots handed to the writer, by reason",
		}, []string{"reason"}),
		sessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxeledit_sessions",
			Help: "Connected sessions",
		}),
		loadedChunks: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxeledit_loaded_chunks",
			Help: "Chunk columns held in memory",
		}),
		percent: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxeledit_active_percent",
			Help: "Progress of the task holding the busy slot",
		}),
		busy: f.NewGauge(prometheus.GaugeOpts{
			Name: "voxeledit_busy",
			Help: "1 while a task holds the busy slot",
		}),
	}
}
