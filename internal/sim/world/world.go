// Package world hosts the edit engine: it owns the block store, the undo
// history and the arbiter, and drives them from a single goroutine at a fixed
// tick rate.
package world

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"voxeledit.ai/internal/persistence/snapshot"
	"voxeledit.ai/internal/protocol"
	"voxeledit.ai/internal/sim/arbiter"
	"voxeledit.ai/internal/sim/async"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/history"
	"voxeledit.ai/internal/sim/voxel"
	"voxeledit.ai/internal/sim/world/terrain/gen"
	"voxeledit.ai/internal/sim/world/terrain/store"
)

// JoinRequest attaches a connection to a player. The world writes WELCOME to
// Out before anything else, then answers on Resp (which should be buffered).
type JoinRequest struct {
	SessionID   string
	Name        string
	ResumeToken string
	Out         chan []byte
	Resp        chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
	Err     string
}

// Envelope carries one decoded client message into the world loop. Exactly one
// of the message fields is set.
type Envelope struct {
	SessionID string
	PlayerID  string

	Selection    *Upload
	Action       *protocol.ActionMsg
	Undo         *protocol.UndoMsg
	ClientStatus *protocol.ClientStatusMsg
}

// Upload is a decoded SELECTION message.
type Upload struct {
	ID        string
	Origin    [3]int
	Selection *voxel.Selection
	Substrate *fragment.Fragment
}

// SnapshotJob is handed to the snapshot writer. Done, when set, receives the
// write result.
type SnapshotJob struct {
	Snapshot snapshot.SnapshotV1
	Done     chan<- error
}

type ObserverJoinRequest struct {
	SessionID     string
	Out           chan []byte
	IntervalTicks int
}

type TickLogger interface {
	WriteTick(entry TickLogEntry) error
}

type AuditLogger interface {
	WriteAudit(entry AuditEntry) error
}

// TickLogEntry is written for every tick that carried requests or edit work.
type TickLogEntry struct {
	Tick     uint64          `json:"tick"`
	Status   string          `json:"status"`
	Percent  int             `json:"percent"`
	Player   string          `json:"player,omitempty"`
	Requests []RequestRecord `json:"requests,omitempty"`
	StepMS   float64         `json:"step_ms"`
}

type RequestRecord struct {
	PlayerID string `json:"player_id"`
	Kind     string `json:"kind"`
	Seq      int64  `json:"seq,omitempty"`
	Target   int64  `json:"target,omitempty"`
	Tool     string `json:"tool,omitempty"`
	Pos      [3]int `json:"pos"`
	Status   string `json:"status,omitempty"`
}

// Audit events.
const (
	AuditAck           = "EDIT_ACK"
	AuditEditCompleted = "EDIT_COMPLETED"
	AuditBackup        = "BACKUP"
	AuditSelection     = "SELECTION"
)

type AuditEntry struct {
	Tick     uint64 `json:"tick"`
	Event    string `json:"event"`
	PlayerID string `json:"player_id,omitempty"`
	Player   string `json:"player,omitempty"`

	ActionAck string `json:"action_ack,omitempty"`
	ActionSeq int64  `json:"action_seq,omitempty"`
	UndoAck   string `json:"undo_ack,omitempty"`
	UndoSeq   int64  `json:"undo_seq,omitempty"`
	Code      string `json:"code,omitempty"`
	Reason    string `json:"reason,omitempty"`

	Kind    string `json:"kind,omitempty"`
	Seq     int64  `json:"seq,omitempty"`
	Target  int64  `json:"target,omitempty"`
	Tool    string `json:"tool,omitempty"`
	Cells   int    `json:"cells,omitempty"`
	Aborted bool   `json:"aborted,omitempty"`
}

type player struct {
	ID    string
	Name  string
	Token string

	sessionID  string
	out        chan []byte
	detachedAt time.Time
}

// World is a single-threaded host for the edit engine.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	logger *log.Logger
	clock  async.Clock

	tick    atomic.Uint64
	metrics atomic.Value

	chunks *store.ChunkStore
	hist   *history.History
	arb    *arbiter.Arbiter
	prom   *promMetrics

	players  map[string]*player // by player id
	sessions map[string]string  // session id -> player id
	tokens   map[string]string  // resume token -> player id

	observers    map[string]*observerState
	lastObserved arbiter.State

	inbox         chan Envelope
	join          chan JoinRequest
	leave         chan string
	backupReq     chan backupReq
	stateReq      chan stateReq
	observerJoin  chan ObserverJoinRequest
	observerLeave chan string
	stop          chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	tickLogger  TickLogger
	auditLogger AuditLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- SnapshotJob

	backupTrigger func(playerID, kind string)
	backup        *backupTask
	lastPreEdit   time.Time
	lastPeriodic  uint64

	// Per-tick scratch.
	records []RequestRecord
	edits   []arbiter.Completion
}

// ResumeWindow is how long a disconnected player keeps its id and undo
// history.
const ResumeWindow = 10 * time.Minute

// New builds a world. reg receives the Prometheus collectors; nil uses a
// private registry.
func New(cfg WorldConfig, logger *log.Logger, reg prometheus.Registerer) (*World, error) {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	params := gen.Params{
		Seed:            cfg.Seed,
		Height:          cfg.Height,
		SeaLevel:        cfg.SeaLevel,
		BiomeRegionSize: cfg.BiomeRegionSize,
		OrePermille:     cfg.OrePermille,
	}
	if cfg.BoundaryR < 0 {
		return nil, fmt.Errorf("world: negative boundary %d", cfg.BoundaryR)
	}
	w := &World{
		cfg:           cfg,
		logger:        logger,
		clock:         time.Now,
		chunks:        store.NewChunkStore(params, cfg.BoundaryR),
		prom:          newPromMetrics(reg),
		players:       map[string]*player{},
		sessions:      map[string]string{},
		tokens:        map[string]string{},
		observers:     map[string]*observerState{},
		inbox:         make(chan Envelope, 1024),
		join:          make(chan JoinRequest, 64),
		leave:         make(chan string, 64),
		backupReq:     make(chan backupReq, 8),
		stateReq:      make(chan stateReq, 16),
		observerJoin:  make(chan ObserverJoinRequest, 16),
		observerLeave: make(chan string, 16),
		stop:          make(chan struct{}),
	}
	w.hist = history.New(cfg.MaxUndoDepth, w.now)
	w.arb = arbiter.New(arbiter.Config{
		World:          w.chunks,
		History:        w.hist,
		Sink:           sink{w: w},
		Logger:         logger,
		Clock:          w.now,
		StatusInterval: cfg.StatusInterval,
		BeforeMutation: w.beforeMutation,
	})
	w.publishMetrics(0)
	return w, nil
}

func (w *World) now() time.Time { return w.clock() }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) SetTickLogger(l TickLogger)            { w.tickLogger = l }
func (w *World) SetAuditLogger(l AuditLogger)          { w.auditLogger = l }
func (w *World) SetSnapshotSink(ch chan<- SnapshotJob) { w.snapshotSink = ch }

// SetBackupTrigger replaces the built-in pre-edit snapshot. fn runs on the
// world loop goroutine right before an edit is scheduled, so it may call
// ExportSnapshot.
func (w *World) SetBackupTrigger(fn func(player, kind string)) { w.backupTrigger = fn }

func (w *World) Inbox() chan<- Envelope   { return w.inbox }
func (w *World) Join() chan<- JoinRequest { return w.join }

// Leave takes a session id.
func (w *World) Leave() chan<- string { return w.leave }

func (w *World) ObserverJoin() chan<- ObserverJoinRequest { return w.observerJoin }
func (w *World) ObserverLeave() chan<- string             { return w.observerLeave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) BlockPalette() []string { return gen.Palette() }

// Chunks exposes the block store. Not safe to use concurrently with Run.
func (w *World) Chunks() *store.ChunkStore { return w.chunks }

// History exposes the undo history. Not safe to use concurrently with Run.
func (w *World) History() *history.History { return w.hist }

func (w *World) welcomeParams() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:       w.cfg.TickRateHz,
		ChunkSize:        store.ChunkSize,
		Height:           w.cfg.Height,
		Seed:             w.cfg.Seed,
		MaxSelectionEdge: w.cfg.MaxSelectionEdge,
		MaxUndoDepth:     w.cfg.MaxUndoDepth,
		MaxPayloadBytes:  w.cfg.MaxPayloadBytes,
	}
}
