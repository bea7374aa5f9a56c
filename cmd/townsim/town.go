package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem/llm/gemini"

	"github.com/talgya/mini-town/internal/agents"
	"github.com/talgya/mini-town/internal/config"
	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/entropy"
	"github.com/talgya/mini-town/internal/interact"
	"github.com/talgya/mini-town/internal/llm"
	"github.com/talgya/mini-town/internal/memory"
	"github.com/talgya/mini-town/internal/persistence"
	"github.com/talgya/mini-town/internal/world"
)

// town is everything serve runs, plus what it must close afterwards.
type town struct {
	sim     *engine.Simulation
	db      *persistence.DB
	closers []io.Closer
}

func (t *town) Close() {
	for i := len(t.closers) - 1; i >= 0; i-- {
		if err := t.closers[i].Close(); err != nil {
			slog.Warn("close failed", "error", err)
		}
	}
}

// loadWorld reads the map and the object catalog named by the config.
func loadWorld(cfg *config.File) (*world.Map, *world.Catalog, error) {
	m, err := world.LoadMapFiles(cfg.Path(cfg.Data.Locations), cfg.Path(cfg.Data.Connections))
	if err != nil {
		return nil, nil, err
	}
	catalog := world.DefaultCatalog()
	if cfg.Data.Objects != "" {
		catalog, err = world.LoadCatalogFile(cfg.Path(cfg.Data.Objects))
		if err != nil {
			return nil, nil, err
		}
	}
	return m, catalog, nil
}

func buildTown(ctx context.Context, cfg *config.File, restore bool) (_ *town, err error) {
	t := &town{}
	defer func() {
		if err != nil {
			t.Close()
		}
	}()

	// ── World ─────────────────────────────────────────────────────────
	m, catalog, err := loadWorld(cfg)
	if err != nil {
		return nil, err
	}
	slog.Info("world loaded", "locations", len(m.Names()), "connections", m.EdgeCount(), "objects", catalog.Len())

	// ── Journal ───────────────────────────────────────────────────────
	dbPath := cfg.Memory.SQLitePath
	if dbPath == "" {
		dbPath = config.DefaultSQLitePath
	}
	dbPath = cfg.Path(dbPath)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o750); err != nil {
		return nil, goerr.Wrap(err, "failed to create data directory", goerr.V("path", dbPath))
	}
	t.db, err = persistence.Open(dbPath)
	if err != nil {
		return nil, err
	}
	t.closers = append(t.closers, t.db)
	slog.Info("database opened", "path", dbPath)

	// ── Memory ────────────────────────────────────────────────────────
	store, err := buildMemory(ctx, cfg, t)
	if err != nil {
		return nil, err
	}

	// ── Agents ────────────────────────────────────────────────────────
	ledger := world.NewLedger(m)
	reg := agents.NewRegistry(ledger)
	if err := agents.NewSpawner(m, cfg.PersonaDir()).SpawnInto(reg, cfg.AgentSpecs()); err != nil {
		return nil, err
	}

	start := cfg.StartTime(time.Now().UTC().Truncate(time.Minute))
	if restore {
		if start, err = restoreTown(ctx, t.db, reg, start); err != nil {
			return nil, err
		}
	}

	rng := entropy.New(cfg.Simulation.Seed)
	timeline := engine.NewTimeline(start, cfg.Simulation.TimeScale)
	t.sim = engine.NewSimulation(timeline, m, catalog, ledger, reg, store)
	t.sim.Journal = t.db
	if t.sim.Reporter, err = buildBulletin(ctx, cfg); err != nil {
		return nil, err
	}

	deciders := newDeciderSet(ctx, cfg, m, catalog)
	fallback, err := deciders.get(cfg.Simulation.DefaultLLMProfile)
	if err != nil {
		return nil, err
	}
	opts := []agents.CycleOption{
		agents.WithMemory(store),
		agents.WithCalendar(timeline),
		agents.WithTopK(cfg.Simulation.TopK),
		agents.WithObserver(t.sim.Observe),
	}
	for _, a := range cfg.Agents {
		if a.LLMProfile == "" {
			continue
		}
		d, err := deciders.get(a.LLMProfile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, agents.WithAgentDecider(a.ID, d))
	}

	exec := &agents.Executor{
		Agents:   reg,
		Map:      m,
		Resolver: interact.New(m, ledger, catalog, rng),
		Rand:     rng,
	}
	reg.SetRunner(agents.NewCycle(reg, exec, fallback, opts...))
	t.sim.Start()

	slog.Info("town built", "agents", reg.Len(), "start", engine.SimTime(start), "season", timeline.Season())
	return t, nil
}

// restoreTown puts saved agents back and returns the saved clock, or start
// when nothing was saved.
func restoreTown(ctx context.Context, db *persistence.DB, reg *agents.Registry, start time.Time) (time.Time, error) {
	saved, ok, err := db.SavedTime(ctx)
	if err != nil {
		return start, err
	}
	if !ok {
		return start, nil
	}

	views, err := db.LoadAgents(ctx)
	if err != nil {
		return start, err
	}
	restored := 0
	for _, v := range views {
		a, found := reg.Get(v.ID)
		if !found {
			slog.Warn("saved agent is no longer configured", "id", v.ID)
			continue
		}
		if a.Restore(v.Location, v.State, v.Relationships) {
			restored++
		}
	}
	slog.Info("restored saved town", "time", engine.SimTime(saved), "agents", restored)
	return saved, nil
}

func buildMemory(ctx context.Context, cfg *config.File, t *town) (*memory.Store, error) {
	emb, err := buildEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var idx memory.Index
	switch cfg.Memory.Backend {
	case config.BackendSQLite:
		idx = persistence.NewMemoryIndex(t.db)
	case config.BackendFirestore:
		var opts []persistence.FirestoreOption
		if cfg.Memory.FirestorePrefix != "" {
			opts = append(opts, persistence.WithCollectionPrefix(cfg.Memory.FirestorePrefix))
		}
		fs, err := persistence.NewFirestoreIndex(ctx, cfg.Memory.FirestoreProject, cfg.Memory.FirestoreDatabase, opts...)
		if err != nil {
			return nil, err
		}
		t.closers = append(t.closers, fs)
		idx = fs
	default:
		idx = memory.NewMemoryIndex()
	}

	opts := []memory.Option{
		memory.WithDecayFactor(cfg.Simulation.DecayFactor),
		memory.WithTopK(cfg.Simulation.TopK),
	}
	if name := cfg.Simulation.ImportanceLLMProfile; name != "" {
		p, _ := cfg.LLMProfile(name)
		c, err := buildCompleter(ctx, p, false)
		if err != nil {
			return nil, err
		}
		if c != nil {
			opts = append(opts, memory.WithImportanceEstimator(llm.NewImportanceEstimator(c)))
		}
	}

	slog.Info("memory store ready", "backend", cfg.Memory.Backend, "dimension", emb.Dimension())
	return memory.NewStore(idx, emb, opts...), nil
}

func buildBulletin(ctx context.Context, cfg *config.File) (*llm.Bulletin, error) {
	name := cfg.Simulation.BulletinLLMProfile
	if name == "" {
		return llm.NewBulletin(nil), nil
	}
	p, _ := cfg.LLMProfile(name)
	c, err := buildCompleter(ctx, p, false)
	if err != nil {
		return nil, err
	}
	return llm.NewBulletin(c), nil
}

type sizedEmbedder interface {
	memory.Embedder
	Dimension() int
}

type geminiEmbedder struct {
	*llm.Embedder
	dim int
}

func (g geminiEmbedder) Dimension() int { return g.dim }

func buildEmbedder(ctx context.Context, cfg *config.File) (sizedEmbedder, error) {
	p, ok := cfg.EmbeddingProfile(cfg.Simulation.EmbeddingProfile)
	if !ok || strings.ToLower(p.Provider) == config.EmbeddingHash {
		dim := memory.DefaultEmbeddingDim
		if ok && p.Dimension > 0 {
			dim = p.Dimension
		}
		return memory.NewHashEmbedder(dim), nil
	}

	client, err := gemini.New(ctx, p.Project, geminiLocation(p.Location))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini embedding client", goerr.V("profile", p.Name))
	}
	dim := p.Dimension
	if dim == 0 {
		dim = memory.DefaultEmbeddingDim
	}
	return geminiEmbedder{Embedder: llm.NewEmbedder(client, dim), dim: dim}, nil
}

func geminiLocation(loc string) string {
	if loc == "" {
		return "us-central1"
	}
	return loc
}

// buildCompleter returns nil when the profile is rule-based or its key is
// missing; callers fall back to heuristics.
func buildCompleter(ctx context.Context, p config.LLMProfile, jsonOutput bool) (llm.Completer, error) {
	switch strings.ToLower(p.Provider) {
	case config.ProviderAnthropic:
		var opts []llm.AnthropicOption
		if p.Model != "" {
			opts = append(opts, llm.WithModel(p.Model))
		}
		if p.MaxTokens > 0 {
			opts = append(opts, llm.WithMaxTokens(p.MaxTokens))
		}
		if p.RateLimit > 0 {
			opts = append(opts, llm.WithRateLimit(p.RateLimit))
		}
		if p.Endpoint != "" {
			opts = append(opts, llm.WithEndpoint(p.Endpoint))
		}
		client := llm.NewAnthropicClient(os.Getenv(p.APIKeyEnv), opts...)
		if !client.Enabled() {
			slog.Warn("LLM profile has no API key, using heuristics", "profile", p.Name, "env", p.APIKeyEnv)
			return nil, nil
		}
		return client, nil

	case config.ProviderGemini:
		client, err := gemini.New(ctx, p.Project, geminiLocation(p.Location))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client", goerr.V("profile", p.Name))
		}
		return llm.NewGollemCompleter(client, jsonOutput), nil
	}
	return nil, nil
}

// deciderSet builds one decider per LLM profile and shares it between
// agents.
type deciderSet struct {
	ctx       context.Context
	cfg       *config.File
	heuristic agents.Decider
	built     map[string]agents.Decider
}

func newDeciderSet(ctx context.Context, cfg *config.File, m *world.Map, c *world.Catalog) *deciderSet {
	return &deciderSet{
		ctx:       ctx,
		cfg:       cfg,
		heuristic: agents.NewHeuristicDecider(m, c),
		built:     make(map[string]agents.Decider),
	}
}

func (s *deciderSet) get(profile string) (agents.Decider, error) {
	if profile == "" {
		return s.heuristic, nil
	}
	if d, ok := s.built[profile]; ok {
		return d, nil
	}
	p, ok := s.cfg.LLMProfile(profile)
	if !ok {
		return nil, goerr.New("unknown llm profile", goerr.V("profile", profile))
	}
	c, err := buildCompleter(s.ctx, p, true)
	if err != nil {
		return nil, err
	}
	d := s.heuristic
	if c != nil {
		d = llm.NewDecisionProvider(c)
	}
	s.built[profile] = d
	slog.Info("decider ready", "profile", profile, "provider", p.Provider)
	return d, nil
}
