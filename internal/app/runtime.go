package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/internal/reflection"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/models"
	"github.com/dyike/tradeflow/pkg/sqlite"
)

const (
	TopicReloaded     = "engine.reloaded"
	TopicReloadFailed = "engine.reload_failed"
)

// NotifyFunc receives reload events as a topic and a JSON payload.
type NotifyFunc func(topic, payload string)

type Option func(*Runtime)

func WithBuilder(builder EngineBuilder) Option {
	return func(r *Runtime) {
		if builder != nil {
			r.builder = builder
		}
	}
}

func WithNotifier(fn NotifyFunc) Option {
	return func(r *Runtime) {
		r.notify = fn
	}
}

func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runtime) {
		r.log = log
	}
}

// WithBank replaces the bank opened from memory_db_path.
func WithBank(bank memory.Bank) Option {
	return func(r *Runtime) {
		r.bank = bank
	}
}

// WithStore replaces the run store opened from runs_db_path.
func WithStore(store *storage.Store) Option {
	return func(r *Runtime) {
		r.store = store
	}
}

// Runtime owns the memory bank and the run store and swaps the engine
// whenever the config file changes.
type Runtime struct {
	cfgMgr *config.Manager
	engine atomic.Pointer[Engine]

	builder EngineBuilder
	notify  NotifyFunc
	log     logrus.FieldLogger
	bank    memory.Bank
	store   *storage.Store
	closers []io.Closer
	cancel  context.CancelFunc
}

func NewRuntime(cfgMgr *config.Manager, opts ...Option) (*Runtime, error) {
	if cfgMgr == nil {
		return nil, fmt.Errorf("config manager is required")
	}

	rt := &Runtime{
		cfgMgr:  cfgMgr,
		builder: BuildEngine,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.log = logging.OrDiscard(rt.log)

	cfg := cfgMgr.Get()
	if err := rt.openResources(cfg); err != nil {
		rt.closeResources()
		return nil, err
	}
	if err := rt.reload(cfg); err != nil {
		rt.closeResources()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	rt.cancel = cancel
	if err := cfgMgr.Watch(ctx, func(cfg config.Config) {
		if err := rt.reload(cfg); err != nil {
			rt.log.WithError(err).Warn("engine reload failed, keeping previous engine")
		}
	}); err != nil {
		cancel()
		rt.closeResources()
		return nil, err
	}

	return rt, nil
}

func (r *Runtime) openResources(cfg config.Config) error {
	if r.bank == nil {
		if strings.TrimSpace(cfg.MemoryDBPath) == "" {
			r.bank = memory.NewInMemoryBank()
		} else {
			bank, err := memory.OpenSQLiteBank(cfg.MemoryDBPath)
			if err != nil {
				return fmt.Errorf("open memory bank: %w", err)
			}
			r.bank = bank
			r.closers = append(r.closers, bank)
		}
	}
	if r.store == nil {
		path := cfg.RunsDBPath
		if strings.TrimSpace(path) == "" {
			path = sqlite.MemoryPath
		}
		store, err := storage.Open(path)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		r.store = store
		r.closers = append(r.closers, store)
	}
	return nil
}

func (r *Runtime) closeResources() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i].Close())
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) Engine() *Engine {
	return r.engine.Load()
}

func (r *Runtime) Config() config.Config {
	return r.cfgMgr.Get()
}

func (r *Runtime) Store() *storage.Store {
	return r.store
}

func (r *Runtime) Bank() memory.Bank {
	return r.bank
}

func (r *Runtime) Log() logrus.FieldLogger {
	return r.log
}

// Close stops watching the config and releases the bank and the store.
func (r *Runtime) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	return r.closeResources()
}

// PatchConfig merges a JSON object onto the current config. The engine is
// rebuilt before it returns when the change is accepted.
func (r *Runtime) PatchConfig(data []byte) error {
	return r.cfgMgr.Patch(data)
}

// Reflect turns a finished run into lessons, given the realized returns of
// its decision.
func (r *Runtime) Reflect(ctx context.Context, runID string, returns float64) ([]reflection.Lesson, error) {
	state, reflector, err := r.reflectTarget(ctx, runID)
	if err != nil {
		return nil, err
	}
	return reflector.Reflect(ctx, state, returns)
}

// ReflectAsync checks the run exists, then reflects in the background until
// ctx is done. Failures are logged only. The channel closes when it ends.
func (r *Runtime) ReflectAsync(ctx context.Context, runID string, returns float64) (<-chan struct{}, error) {
	state, reflector, err := r.reflectTarget(ctx, runID)
	if err != nil {
		return nil, err
	}
	return reflector.ReflectAsync(ctx, state, returns), nil
}

func (r *Runtime) reflectTarget(ctx context.Context, runID string) (*models.WorkflowState, *reflection.Engine, error) {
	state, err := r.store.FinalState(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	reflector := r.Engine().Reflector
	if reflector == nil {
		return nil, nil, fmt.Errorf("reflection is not configured")
	}
	return state, reflector, nil
}

func (r *Runtime) reload(cfg config.Config) error {
	engine, err := r.builder(context.Background(), cfg, Deps{Bank: r.bank, Log: r.log})
	if err != nil {
		r.notifyFailure(err)
		return err
	}
	r.engine.Store(engine)
	r.log.WithField("version", engine.Version).Info("engine ready")
	r.notifySuccess(engine)
	return nil
}

func (r *Runtime) notifySuccess(engine *Engine) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{
		"version":  engine.Version,
		"built_at": engine.BuiltAt.UTC().Format(time.RFC3339),
	})
	r.notify(TopicReloaded, string(payload))
}

func (r *Runtime) notifyFailure(err error) {
	if r.notify == nil {
		return
	}
	payload, _ := json.Marshal(map[string]string{
		"error": err.Error(),
	})
	r.notify(TopicReloadFailed, string(payload))
}
