// Package persistence provides SQLite-backed storage for the durable record
// kinds: users, their agents, the transaction journal, and battle logs.
// Arena, tournament, pool, and market state is ephemeral and rebuilt on start.
package persistence

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/combat"
	"github.com/talgya/loot-arena/internal/wallet"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		balance REAL NOT NULL,
		auto_bet INTEGER NOT NULL,
		auto_bet_max REAL NOT NULL,
		auto_register INTEGER NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id INTEGER PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		atk REAL NOT NULL,
		def REAL NOT NULL,
		crit REAL NOT NULL,
		acc REAL NOT NULL,
		spd REAL NOT NULL,
		rarity INTEGER NOT NULL,
		max_hp REAL NOT NULL,
		balance REAL NOT NULL,
		status INTEGER NOT NULL,
		career_json TEXT NOT NULL,
		history_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount REAL NOT NULL,
		ref TEXT,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS battle_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		attacker INTEGER,
		defender INTEGER,
		message TEXT NOT NULL,
		damage REAL,
		looted REAL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_agents_owner ON agents(owner_id);
	CREATE INDEX IF NOT EXISTS idx_tx_user ON transactions(user_id);
	CREATE INDEX IF NOT EXISTS idx_battle_logs_time ON battle_logs(created_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Transaction is one journal row for a balance-moving operation.
type Transaction struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Kind      string    `db:"kind" json:"kind"`
	Amount    float64   `db:"amount" json:"amount"`
	Ref       string    `db:"ref" json:"ref,omitempty"`
	CreatedAt time.Time `db:"-" json:"created_at"`
}

// SaveUsers writes all users (full replace).
func (db *DB) SaveUsers(users []wallet.User) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM users"); err != nil {
		return err
	}
	for _, u := range users {
		autoBet, autoReg := 0, 0
		if u.AutoBet {
			autoBet = 1
		}
		if u.AutoRegister {
			autoReg = 1
		}
		_, err := tx.Exec(
			`INSERT INTO users (id, balance, auto_bet, auto_bet_max, auto_register, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID, u.Balance, autoBet, u.AutoBetMax, autoReg, u.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert user %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

// LoadUsers reads all persisted users.
func (db *DB) LoadUsers() ([]wallet.User, error) {
	type row struct {
		ID           string  `db:"id"`
		Balance      float64 `db:"balance"`
		AutoBet      int     `db:"auto_bet"`
		AutoBetMax   float64 `db:"auto_bet_max"`
		AutoRegister int     `db:"auto_register"`
		CreatedAt    int64   `db:"created_at"`
	}
	var rows []row
	if err := db.conn.Select(&rows, "SELECT * FROM users ORDER BY created_at"); err != nil {
		return nil, err
	}

	out := make([]wallet.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, wallet.User{
			ID:           r.ID,
			Balance:      r.Balance,
			AutoBet:      r.AutoBet != 0,
			AutoBetMax:   r.AutoBetMax,
			AutoRegister: r.AutoRegister != 0,
			CreatedAt:    time.Unix(r.CreatedAt, 0),
		})
	}
	return out, nil
}

// SaveAgents writes the player-owned agent list (full replace). The in-memory
// stat block maps onto the persisted columns as Attack↔atk, Defense↔def,
// CritChance↔crit, HitChance↔acc, Agility↔spd.
func (db *DB) SaveAgents(list []agents.Agent) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM agents"); err != nil {
		return err
	}

	stmt, err := tx.Preparex(`INSERT INTO agents
		(id, owner_id, name, atk, def, crit, acc, spd, rarity, max_hp,
		 balance, status, career_json, history_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range list {
		careerJSON, _ := json.Marshal(a.Career)
		historyJSON, _ := json.Marshal(a.History)
		_, err := stmt.Exec(
			a.ID, a.OwnerID, a.Name,
			a.Stats.Attack, a.Stats.Defense, a.Stats.CritChance, a.Stats.HitChance, a.Stats.Agility,
			a.Rarity, a.MaxHP, a.Balance, a.Status,
			string(careerJSON), string(historyJSON), a.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}
	return tx.Commit()
}

// LoadAgents reads all persisted agents, translating the column names back
// into the in-memory stat block.
func (db *DB) LoadAgents() ([]agents.Agent, error) {
	type row struct {
		ID          uint64  `db:"id"`
		OwnerID     string  `db:"owner_id"`
		Name        string  `db:"name"`
		Atk         float64 `db:"atk"`
		Def         float64 `db:"def"`
		Crit        float64 `db:"crit"`
		Acc         float64 `db:"acc"`
		Spd         float64 `db:"spd"`
		Rarity      uint8   `db:"rarity"`
		MaxHP       float64 `db:"max_hp"`
		Balance     float64 `db:"balance"`
		Status      uint8   `db:"status"`
		CareerJSON  string  `db:"career_json"`
		HistoryJSON string  `db:"history_json"`
		CreatedAt   int64   `db:"created_at"`
	}

	var rows []row
	if err := db.conn.Select(&rows, "SELECT * FROM agents ORDER BY id"); err != nil {
		return nil, err
	}

	out := make([]agents.Agent, 0, len(rows))
	for _, r := range rows {
		a := agents.Agent{
			ID:      agents.AgentID(r.ID),
			OwnerID: r.OwnerID,
			Name:    r.Name,
			Stats: agents.Stats{
				Attack:     r.Atk,
				Defense:    r.Def,
				CritChance: r.Crit,
				HitChance:  r.Acc,
				Agility:    r.Spd,
			},
			Rarity:    agents.Rarity(r.Rarity),
			HP:        r.MaxHP,
			MaxHP:     r.MaxHP,
			Balance:   r.Balance,
			Status:    agents.Status(r.Status),
			CreatedAt: time.Unix(r.CreatedAt, 0),
		}
		if err := json.Unmarshal([]byte(r.CareerJSON), &a.Career); err != nil {
			slog.Warn("bad career blob, resetting", "agent", r.ID, "error", err)
		}
		if err := json.Unmarshal([]byte(r.HistoryJSON), &a.History); err != nil {
			slog.Warn("bad history blob, resetting", "agent", r.ID, "error", err)
		}
		out = append(out, a)
	}
	return out, nil
}

// AppendTransaction journals one balance-moving operation.
func (db *DB) AppendTransaction(t Transaction) error {
	_, err := db.conn.Exec(
		"INSERT INTO transactions (id, user_id, kind, amount, ref, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		t.ID, t.UserID, t.Kind, t.Amount, t.Ref, t.CreatedAt.Unix(),
	)
	return err
}

// TransactionsFor returns the most recent journal rows for a user.
func (db *DB) TransactionsFor(userID string, limit int) ([]Transaction, error) {
	type row struct {
		ID        string  `db:"id"`
		UserID    string  `db:"user_id"`
		Kind      string  `db:"kind"`
		Amount    float64 `db:"amount"`
		Ref       *string `db:"ref"`
		CreatedAt int64   `db:"created_at"`
	}
	var rows []row
	err := db.conn.Select(&rows,
		"SELECT * FROM transactions WHERE user_id = ? ORDER BY created_at DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		t := Transaction{ID: r.ID, UserID: r.UserID, Kind: r.Kind, Amount: r.Amount, CreatedAt: time.Unix(r.CreatedAt, 0)}
		if r.Ref != nil {
			t.Ref = *r.Ref
		}
		out = append(out, t)
	}
	return out, nil
}

// AppendBattleLogs journals battle-log entries in one transaction.
func (db *DB) AppendBattleLogs(entries []combat.LogEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, e := range entries {
		_, err := tx.Exec(
			"INSERT INTO battle_logs (kind, attacker, defender, message, damage, looted, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
			e.Kind, e.Attacker, e.Defender, e.Message, e.Damage, e.Looted, e.Time.Unix(),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}

// HasState reports whether any users have been persisted.
func (db *DB) HasState() bool {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM users"); err != nil {
		return false
	}
	return n > 0
}
