// Agent spawning: mints player agents and bulk-generates the house roster
// with rolled stat blocks and rarity tiers.
package agents

import (
	"time"

	"github.com/talgya/loot-arena/internal/entropy"
)

// MaxHouseAgents caps how many system-owned fighters one bulk generation run
// may produce.
const MaxHouseAgents = 1000

// DefaultMaxHP is every agent's hit-point ceiling. Hit points are cosmetic per
// round and always restored at settlement.
const DefaultMaxHP = 100

// Spawner creates agents. It owns ID issuance so restored worlds can resume
// above the highest persisted ID.
type Spawner struct {
	rng    *entropy.Source
	nextID AgentID
}

// NewSpawner creates an agent spawner over the shared random source.
func NewSpawner(rng *entropy.Source) *Spawner {
	return &Spawner{rng: rng, nextID: 1}
}

// SetNextID sets the next agent ID to be issued (used when restoring from DB).
func (s *Spawner) SetNextID(id AgentID) {
	s.nextID = id
}

// Mint creates a player-owned agent. Minted agents start benched with a zero
// balance; owners fund them through allocation.
func (s *Spawner) Mint(ownerID string) *Agent {
	a := s.spawnOne()
	a.OwnerID = ownerID
	a.Status = StatusIdle
	a.Balance = 0
	return a
}

// GenerateHouse bulk-creates system agents, already seated in the arena with
// a funded balance. count is clamped to MaxHouseAgents.
func (s *Spawner) GenerateHouse(count int) []*Agent {
	if count > MaxHouseAgents {
		count = MaxHouseAgents
	}
	out := make([]*Agent, 0, count)
	for i := 0; i < count; i++ {
		a := s.spawnOne()
		a.Status = StatusInArena
		a.Balance = s.rng.Uniform(500, 1500)
		out = append(out, a)
	}
	return out
}

func (s *Spawner) spawnOne() *Agent {
	id := s.nextID
	s.nextID++

	stats := s.rollStats()
	return &Agent{
		ID:        id,
		Name:      s.generateName(),
		Stats:     stats,
		Rarity:    RarityFor(stats.Total()),
		HP:        DefaultMaxHP,
		MaxHP:     DefaultMaxHP,
		Status:    StatusIdle,
		CreatedAt: time.Now(),
	}
}

// rollStats generates the fixed stat block. Ranges are tuned so the average
// total lands mid-tier and legendaries stay rare.
func (s *Spawner) rollStats() Stats {
	return Stats{
		Attack:     s.rng.Uniform(20, 80),
		Defense:    s.rng.Uniform(10, 60),
		CritChance: s.rng.Uniform(5, 30),
		HitChance:  s.rng.Uniform(60, 100),
		Agility:    s.rng.Uniform(10, 90),
	}
}

func (s *Spawner) generateName() string {
	first := firstNames[s.rng.Intn(len(firstNames))]
	epithet := epithets[s.rng.Intn(len(epithets))]
	return first + " " + epithet
}

// Name pools for procedural generation.
var firstNames = []string{
	"Brakka", "Cassia", "Drex", "Evoro", "Ferro", "Gorrim", "Hale",
	"Ishka", "Jaxa", "Korr", "Lyria", "Maul", "Nyx", "Orvan",
	"Pyra", "Quorra", "Ragor", "Sable", "Tova", "Ursan", "Veska",
	"Wrath", "Xanthe", "Yorna", "Zephyr", "Ashka", "Brom", "Cinder",
	"Dax", "Emberlyn", "Fenrik", "Grix", "Hesper", "Iron", "Jolt",
}

var epithets = []string{
	"the Unbroken", "Coinfang", "of the Pit", "Goldhand", "the Grim",
	"Ledgerbane", "the Swift", "Ironhide", "the Hollow", "Vaultbreaker",
	"the Patient", "Redmark", "the Lucky", "Stormpaid", "the Ruthless",
	"Debtless", "the Quiet", "Copperjaw", "the Relentless", "Skinflint",
	"the Bold", "Gildedge", "the Last", "Tollkeeper", "the Feral",
}
