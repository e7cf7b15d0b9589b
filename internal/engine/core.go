package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/arena"
	"github.com/talgya/loot-arena/internal/combat"
	"github.com/talgya/loot-arena/internal/entropy"
	"github.com/talgya/loot-arena/internal/market"
	"github.com/talgya/loot-arena/internal/persistence"
	"github.com/talgya/loot-arena/internal/pool"
	"github.com/talgya/loot-arena/internal/tournament"
	"github.com/talgya/loot-arena/internal/wallet"
)

// MintCost is debited from a user's free balance per minted agent.
const MintCost = 100

// Typed validation failures for operations the core guards itself.
var (
	ErrNotAgentOwner = errors.New("agent belongs to another user")
	ErrUnknownAgent  = errors.New("unknown agent")
	ErrBadStatus     = errors.New("agent status does not allow this transition")
	ErrAgentBroke    = errors.New("agent has no balance")
	ErrNotFighting   = errors.New("arena is not in its fighting window")
	ErrAgentFunds    = errors.New("agent balance too low")
)

// Config holds core-level tuning.
type Config struct {
	Seed             int64
	HouseAgents      int
	SkirmishInterval time.Duration
	ReportInterval   time.Duration
	Arena            arena.SchedulerConfig
}

// DefaultConfig returns production tuning.
func DefaultConfig() Config {
	return Config{
		Seed:             0, // 0 = crypto-seeded
		HouseAgents:      200,
		SkirmishInterval: arena.DefaultSkirmishInterval,
		ReportInterval:   time.Minute,
		Arena:            arena.DefaultSchedulerConfig(),
	}
}

// Core is the simulation context. It owns every component; all state flows
// through the shared registry and user store it holds.
type Core struct {
	Registry    *agents.Registry
	Users       *wallet.Store
	Spawner     *agents.Spawner
	RNG         *entropy.Source
	Scheduler   *arena.Scheduler
	AutoBattler *arena.AutoBattler
	Tournaments *tournament.Manager
	Pool        *pool.Pool
	Book        *market.Book
	Events      *Feed

	db       *persistence.DB // nil = local-only mode
	resolver *combat.Resolver
	cfg      Config

	timers    gocron.Scheduler
	autoSched *tournament.AutoScheduler
	rounds    uint64 // rounds seen at last report, for delta logging

	logMu       sync.Mutex
	pendingLogs []combat.LogEntry
}

// New builds a core. db may be nil; the simulation then runs local-only.
// Persisted users and agents are restored when present, and the house roster
// is topped up to the configured size.
func New(cfg Config, db *persistence.DB) *Core {
	var rng *entropy.Source
	if cfg.Seed != 0 {
		rng = entropy.NewSource(cfg.Seed)
	} else {
		rng = entropy.NewCryptoSource()
	}

	registry := agents.NewRegistry()
	users := wallet.NewStore()
	spawner := agents.NewSpawner(rng)
	book := market.NewBook(users)

	c := &Core{
		Registry:    registry,
		Users:       users,
		Spawner:     spawner,
		RNG:         rng,
		Scheduler:   arena.NewScheduler(registry, rng, cfg.Arena),
		AutoBattler: arena.NewAutoBattler(registry, rng),
		Tournaments: tournament.NewManager(registry, users, book, spawner, rng),
		Pool:        pool.New(users),
		Book:        book,
		Events:      NewFeed(),
		db:          db,
		resolver:    combat.NewResolver(registry, rng, combat.ArenaConfig()),
		cfg:         cfg,
	}
	c.autoSched = tournament.NewAutoScheduler(c.Tournaments)

	c.AutoBattler.OnLog = c.onBattleLog
	c.Tournaments.OnEvent = func(category, message string) {
		c.Events.Append(Event{Time: time.Now(), Category: category, Message: message})
	}

	c.restore()
	return c
}

// restore loads persisted users and agents, then fills the house roster.
// Persistence failure degrades to a fresh local-only world.
func (c *Core) restore() {
	if c.db != nil && c.db.HasState() {
		users, err := c.db.LoadUsers()
		if err != nil {
			slog.Warn("user restore failed, starting fresh", "error", err)
		}
		for _, u := range users {
			c.Users.Restore(u)
		}

		restored, err := c.db.LoadAgents()
		if err != nil {
			slog.Warn("agent restore failed, starting fresh", "error", err)
		}
		var maxID agents.AgentID
		for i := range restored {
			a := restored[i]
			// Mid-round statuses do not survive a restart.
			if a.Status == agents.StatusFighting {
				a.Status = agents.StatusInArena
			}
			c.Registry.Add(&a)
			if a.ID > maxID {
				maxID = a.ID
			}
		}
		c.Spawner.SetNextID(maxID + 1)
		slog.Info("state restored", "users", len(users), "agents", len(restored))
	}

	house := c.Registry.Count(func(a *agents.Agent) bool { return !a.PlayerOwned() })
	if need := c.cfg.HouseAgents - house; need > 0 {
		for _, a := range c.Spawner.GenerateHouse(need) {
			c.Registry.Add(a)
		}
		slog.Info("house roster generated", "count", need)
	}
}

// Start launches the round scheduler, the skirmish and report timers, and the
// challenge self-scheduler.
func (c *Core) Start() error {
	go c.Scheduler.Run()

	timers, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("timers: %w", err)
	}
	c.timers = timers

	if _, err := timers.NewJob(
		gocron.DurationJob(c.cfg.SkirmishInterval),
		gocron.NewTask(func() { c.AutoBattler.Tick(time.Now()) }),
	); err != nil {
		return fmt.Errorf("skirmish job: %w", err)
	}
	if _, err := timers.NewJob(
		gocron.DurationJob(c.cfg.SkirmishInterval),
		gocron.NewTask(c.runAutoBets),
	); err != nil {
		return fmt.Errorf("autobet job: %w", err)
	}
	if _, err := timers.NewJob(
		gocron.DurationJob(c.cfg.ReportInterval),
		gocron.NewTask(c.report),
	); err != nil {
		return fmt.Errorf("report job: %w", err)
	}
	timers.Start()

	if err := c.autoSched.Start(); err != nil {
		return fmt.Errorf("challenge scheduler: %w", err)
	}
	slog.Info("core started", "house_agents", c.cfg.HouseAgents, "skirmish_interval", c.cfg.SkirmishInterval)
	return nil
}

// Stop tears everything down cooperatively and takes a final save.
func (c *Core) Stop() {
	c.autoSched.Stop()
	if c.timers != nil {
		_ = c.timers.Shutdown()
	}
	c.Scheduler.Stop()
	c.Save()
	slog.Info("core stopped")
}

// Save persists users and player agents. Failures are logged, never fatal;
// in-memory state stays authoritative.
func (c *Core) Save() {
	if c.db == nil {
		return
	}
	if err := c.db.SaveUsers(c.Users.List()); err != nil {
		slog.Error("user save failed", "error", err)
	}
	players := c.Registry.List(func(a *agents.Agent) bool { return a.PlayerOwned() })
	if err := c.db.SaveAgents(players); err != nil {
		slog.Error("agent save failed", "error", err)
	}
	c.flushBattleLogs()
}

// ── Identity ─────────────────────────────────────────────────────────

// Connect marks an identity connected, granting the starting balance on
// first sight.
func (c *Core) Connect(userID string) wallet.User {
	u := c.Users.Connect(userID)
	slog.Info("user connected", "user", userID, "balance", u.Balance)
	return u
}

// Disconnect marks an identity disconnected.
func (c *Core) Disconnect(userID string) {
	c.Users.Disconnect(userID)
}

// ── Agents and funds ─────────────────────────────────────────────────

// Mint debits the mint cost and creates a benched agent for the caller.
func (c *Core) Mint(userID string) (agents.Agent, error) {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return agents.Agent{}, err
	}
	if err := c.Users.Debit(userID, MintCost); err != nil {
		return agents.Agent{}, err
	}

	a := c.Spawner.Mint(userID)
	c.Registry.Add(a)
	c.journal(userID, "mint", -MintCost, fmt.Sprintf("agent:%d", a.ID))

	if c.db != nil {
		players := c.Registry.List(func(x *agents.Agent) bool { return x.PlayerOwned() })
		if err := c.db.SaveAgents(players); err != nil {
			slog.Warn("mint persisted locally only", "error", err)
		}
	}
	return a.Clone(), nil
}

// Allocate moves funds from the caller's free balance into an agent's locked
// balance.
func (c *Core) Allocate(userID string, agentID agents.AgentID, amount float64) error {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return err
	}
	a, ok := c.Registry.Get(agentID)
	if !ok {
		return ErrUnknownAgent
	}
	if a.OwnerID != userID {
		return ErrNotAgentOwner
	}
	if err := c.Users.Debit(userID, amount); err != nil {
		return err
	}
	c.Registry.Update(agentID, func(a *agents.Agent) { a.Balance += amount })
	c.journal(userID, "allocate", -amount, fmt.Sprintf("agent:%d", agentID))
	return nil
}

// Withdraw moves funds from an agent's locked balance back to the caller's
// free balance. Seated agents cannot be drained mid-round.
func (c *Core) Withdraw(userID string, agentID agents.AgentID, amount float64) error {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return err
	}
	if amount <= 0 {
		return wallet.ErrInvalidAmount
	}

	withdrawn := false
	found := false
	c.Registry.Update(agentID, func(a *agents.Agent) {
		found = true
		if a.OwnerID != userID || a.Status == agents.StatusFighting || a.Balance < amount {
			return
		}
		a.Balance -= amount
		withdrawn = true
	})
	if !found {
		return ErrUnknownAgent
	}
	if !withdrawn {
		a, _ := c.Registry.Get(agentID)
		switch {
		case a.OwnerID != userID:
			return ErrNotAgentOwner
		case a.Status == agents.StatusFighting:
			return ErrBadStatus
		default:
			return ErrAgentFunds
		}
	}
	if err := c.Users.Credit(userID, amount); err != nil {
		return err
	}
	c.journal(userID, "withdraw", amount, fmt.Sprintf("agent:%d", agentID))
	return nil
}

// JoinArena moves a funded agent into the arena pool.
func (c *Core) JoinArena(userID string, agentID agents.AgentID) error {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return err
	}
	a, ok := c.Registry.Get(agentID)
	if !ok {
		return ErrUnknownAgent
	}
	if a.OwnerID != userID {
		return ErrNotAgentOwner
	}
	if a.Status != agents.StatusIdle && a.Status != agents.StatusEliminated {
		return ErrBadStatus
	}
	if a.Balance <= 0 {
		return ErrAgentBroke
	}
	c.Registry.Update(agentID, func(a *agents.Agent) { a.Status = agents.StatusInArena })
	return nil
}

// LeaveArena benches an in-arena agent. Seated agents must finish the round.
func (c *Core) LeaveArena(userID string, agentID agents.AgentID) error {
	if _, err := c.Users.RequireConnected(userID); err != nil {
		return err
	}
	a, ok := c.Registry.Get(agentID)
	if !ok {
		return ErrUnknownAgent
	}
	if a.OwnerID != userID {
		return ErrNotAgentOwner
	}
	if a.Status != agents.StatusInArena {
		return ErrBadStatus
	}
	c.Registry.Update(agentID, func(a *agents.Agent) { a.Status = agents.StatusIdle })
	return nil
}

// ── Arena ────────────────────────────────────────────────────────────

// ArenaStep resolves one combat exchange among the seated fighters. The
// consuming layer calls this repeatedly during the fighting window.
func (c *Core) ArenaStep() (combat.LogEntry, error) {
	if !c.Scheduler.Fighting() {
		return combat.LogEntry{}, ErrNotFighting
	}
	entry, ok := c.resolver.Step(c.Scheduler.Seated(), time.Now())
	if !ok {
		return combat.LogEntry{}, ErrNotFighting
	}
	c.onBattleLog(entry)
	return entry, nil
}

// ArenaState returns the visible arena snapshot.
func (c *Core) ArenaState() arena.Snapshot {
	return c.Scheduler.State()
}

// ── Journal and events ───────────────────────────────────────────────

// journal appends a transaction row when persistence is available.
func (c *Core) journal(userID, kind string, amount float64, ref string) {
	if c.db == nil {
		return
	}
	err := c.db.AppendTransaction(persistence.Transaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Ref:       ref,
		CreatedAt: time.Now(),
	})
	if err != nil {
		slog.Warn("transaction journal failed", "kind", kind, "error", err)
	}
}

// onBattleLog feeds combat output into the event stream and the battle-log
// journal buffer.
func (c *Core) onBattleLog(entry combat.LogEntry) {
	category := "battle"
	switch entry.Kind {
	case combat.KindKill:
		category = "kill"
	case combat.KindSkirmish:
		category = "skirmish"
	}
	c.Events.Append(Event{
		Time:      entry.Time,
		Category:  category,
		Message:   entry.Message,
		Highlight: entry.Highlight,
	})
	if c.db != nil {
		c.logMu.Lock()
		c.pendingLogs = append(c.pendingLogs, entry)
		full := len(c.pendingLogs) >= 100
		c.logMu.Unlock()
		if full {
			c.flushBattleLogs()
		}
	}
}

func (c *Core) flushBattleLogs() {
	if c.db == nil {
		return
	}
	c.logMu.Lock()
	batch := c.pendingLogs
	c.pendingLogs = nil
	c.logMu.Unlock()
	if len(batch) == 0 {
		return
	}
	if err := c.db.AppendBattleLogs(batch); err != nil {
		slog.Warn("battle log flush failed", "count", len(batch), "error", err)
	}
}
