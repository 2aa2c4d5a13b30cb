// Package lsppool manages per-language language server lifecycles: lazy
// spawn on first demand, a bounded number of hot servers per language
// guarded by a fair semaphore, respawn on death up to a sliding-window
// budget, and graceful shutdown escalating from the LSP shutdown sequence
// to SIGTERM to SIGKILL.
package lsppool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	protocol "github.com/tliron/glsp/protocol_3_16"
	"golang.org/x/sync/semaphore"

	"github.com/graphling/graphling/internal/lspclient"
)

// ErrUnavailable is returned when a language has no declared launch spec,
// or has exhausted its respawn budget and been declared unavailable for
// the remainder of the job.
var ErrUnavailable = errors.New("lsppool: language unavailable")

// LaunchSpec declares how to start and initialize a language's server.
type LaunchSpec struct {
	Executable string
	Args       []string
	Env        []string
	InitParams *protocol.InitializeParams
}

// Config tunes pool behavior; zero values fall back to the documented
// defaults.
type Config struct {
	// MaxServersPerLang caps hot servers kept per language. Default 1.
	MaxServersPerLang int
	// MaxRespawn caps respawns within RespawnWindow before a language is
	// declared unavailable. Default 3.
	MaxRespawn int
	// RespawnWindow is the sliding window MaxRespawn is measured over.
	// Default 5 minutes.
	RespawnWindow time.Duration
	// ShutdownGrace is how long Shutdown waits after SIGTERM before
	// escalating to SIGKILL. Default 5 seconds.
	ShutdownGrace time.Duration
}

const (
	defaultMaxServersPerLang = 1
	defaultMaxRespawn        = 3
)

var (
	defaultRespawnWindow = 5 * time.Minute
	defaultShutdownGrace = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxServersPerLang <= 0 {
		c.MaxServersPerLang = defaultMaxServersPerLang
	}

	if c.MaxRespawn <= 0 {
		c.MaxRespawn = defaultMaxRespawn
	}

	if c.RespawnWindow <= 0 {
		c.RespawnWindow = defaultRespawnWindow
	}

	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = defaultShutdownGrace
	}

	return c
}

// langState tracks the hot clients, respawn history, and availability for
// a single language_id.
type langState struct {
	spec LaunchSpec
	sem  *semaphore.Weighted

	mu          sync.Mutex
	clients     []*lspclient.Client
	next        int
	respawns    []time.Time
	unavailable bool
}

// Pool is a per-language set of hot language server connections.
type Pool struct {
	cfg             Config
	specs           map[string]LaunchSpec
	onServerRequest lspclient.ServerRequestFunc

	// spawnFn dials and initializes one server; overridden in tests to
	// avoid spawning a real child process.
	spawnFn func(ctx context.Context, spec LaunchSpec) (*lspclient.Client, error)

	mu    sync.Mutex
	langs map[string]*langState
}

// New returns a Pool that lazily spawns servers from specs on demand.
func New(cfg Config, specs map[string]LaunchSpec, onServerRequest lspclient.ServerRequestFunc) *Pool {
	p := &Pool{
		cfg:             cfg.withDefaults(),
		specs:           specs,
		onServerRequest: onServerRequest,
		langs:           make(map[string]*langState),
	}
	p.spawnFn = p.spawn

	return p
}

// SetSpawnFuncForTesting overrides how the pool spawns and initializes a
// client, letting tests substitute an in-memory fake server for a real
// child process. Production code never calls this.
func (p *Pool) SetSpawnFuncForTesting(fn func(ctx context.Context, spec LaunchSpec) (*lspclient.Client, error)) {
	p.spawnFn = fn
}

// Release gives back a slot acquired by Acquire.
type Release func()

// Acquire returns a live client for language, spawning or respawning it as
// needed, blocking fairly behind other callers once MaxServersPerLang
// clients are already checked out. The caller must invoke the returned
// Release when done with the client.
func (p *Pool) Acquire(ctx context.Context, language string) (*lspclient.Client, Release, error) {
	st, err := p.stateFor(language)
	if err != nil {
		return nil, nil, err
	}

	if err := st.sem.Acquire(ctx, 1); err != nil {
		return nil, nil, fmt.Errorf("lsppool: acquire %s: %w", language, err)
	}

	client, err := p.clientFor(ctx, st, language)
	if err != nil {
		st.sem.Release(1)

		return nil, nil, err
	}

	return client, func() { st.sem.Release(1) }, nil
}

func (p *Pool) stateFor(language string) (*langState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st, ok := p.langs[language]; ok {
		return st, nil
	}

	spec, ok := p.specs[language]
	if !ok {
		return nil, fmt.Errorf("%w: no launch spec declared for %q", ErrUnavailable, language)
	}

	st := &langState{
		spec: spec,
		sem:  semaphore.NewWeighted(int64(p.cfg.MaxServersPerLang)),
	}
	p.langs[language] = st

	return st, nil
}

// clientFor returns a live client from st's hot set, spawning a new one if
// a slot is free or respawning a dead one, subject to the respawn budget.
func (p *Pool) clientFor(ctx context.Context, st *langState, language string) (*lspclient.Client, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.unavailable {
		return nil, fmt.Errorf("%w: %s", ErrUnavailable, language)
	}

	if len(st.clients) < p.cfg.MaxServersPerLang {
		client, err := p.spawnFn(ctx, st.spec)
		if err != nil {
			return nil, err
		}

		st.clients = append(st.clients, client)

		return client, nil
	}

	idx := st.next % len(st.clients)
	st.next++

	if client := st.clients[idx]; client.Alive() {
		return client, nil
	}

	st.pruneRespawns(p.cfg.RespawnWindow)

	if len(st.respawns) >= p.cfg.MaxRespawn {
		st.unavailable = true

		return nil, fmt.Errorf("%w: %s (respawn budget exhausted)", ErrUnavailable, language)
	}

	client, err := p.spawnFn(ctx, st.spec)
	if err != nil {
		return nil, err
	}

	st.respawns = append(st.respawns, time.Now())
	st.clients[idx] = client

	return client, nil
}

func (st *langState) pruneRespawns(window time.Duration) {
	cutoff := time.Now().Add(-window)
	kept := st.respawns[:0]

	for _, t := range st.respawns {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	st.respawns = kept
}

func (p *Pool) spawn(ctx context.Context, spec LaunchSpec) (*lspclient.Client, error) {
	client, err := lspclient.Dial(ctx, lspclient.LaunchSpec{
		Executable: spec.Executable,
		Args:       spec.Args,
		Env:        spec.Env,
	}, p.onServerRequest)
	if err != nil {
		return nil, fmt.Errorf("lsppool: spawn %s: %w", spec.Executable, err)
	}

	initParams := spec.InitParams
	if initParams == nil {
		initParams = &protocol.InitializeParams{}
	}

	if _, err := client.Initialize(ctx, initParams); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("lsppool: initialize %s: %w", spec.Executable, err)
	}

	if err := client.Initialized(ctx); err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("lsppool: initialized %s: %w", spec.Executable, err)
	}

	return client, nil
}

// Shutdown runs the LSP shutdown sequence (shutdown request, exit
// notification) against every hot client across every language, then
// terminates each child process, escalating from SIGTERM to SIGKILL after
// the configured grace period.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	langs := make([]*langState, 0, len(p.langs))
	for _, st := range p.langs {
		langs = append(langs, st)
	}
	p.mu.Unlock()

	for _, st := range langs {
		st.mu.Lock()
		clients := append([]*lspclient.Client(nil), st.clients...)
		st.mu.Unlock()

		for _, client := range clients {
			if !client.Alive() {
				continue
			}

			_ = client.Shutdown(ctx)
			_ = client.Exit(ctx)
			_ = client.Terminate(p.cfg.ShutdownGrace)
		}
	}
}

// Languages reports every language_id that has been requested so far, for
// diagnostics.
func (p *Pool) Languages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.langs))
	for lang := range p.langs {
		out = append(out, lang)
	}

	return out
}

// Unavailable reports whether language has been declared unavailable on
// this process-wide pool after exhausting its respawn budget. A language
// with no launch spec reports false.
func (p *Pool) Unavailable(language string) bool {
	p.mu.Lock()
	st, ok := p.langs[language]
	p.mu.Unlock()

	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	return st.unavailable
}
