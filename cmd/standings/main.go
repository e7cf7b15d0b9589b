// Command standings prints leaderboards from a saved arena database.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/talgya/loot-arena/internal/agents"
	"github.com/talgya/loot-arena/internal/persistence"
	"github.com/talgya/loot-arena/internal/wallet"
)

func main() {
	dbPath := flag.String("db", "arena.db", "path to arena database")
	top := flag.Int("top", 20, "rows per table")
	flag.Parse()

	db, err := persistence.Open(*dbPath)
	if err != nil {
		slog.Error("open database", "path", *dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	roster, err := db.LoadAgents()
	if err != nil {
		slog.Error("load agents", "error", err)
		os.Exit(1)
	}
	users, err := db.LoadUsers()
	if err != nil {
		slog.Error("load users", "error", err)
		os.Exit(1)
	}

	if len(roster) == 0 && len(users) == 0 {
		fmt.Println("No saved state yet.")
		return
	}

	printGladiators(roster, *top)
	printOwners(users, *top)
}

func printGladiators(roster []agents.Agent, top int) {
	sort.Slice(roster, func(i, j int) bool {
		return roster[i].Career.NetProfit() > roster[j].Career.NetProfit()
	})

	fmt.Printf("\nGladiators (%d)\n\n", len(roster))
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "Name", "Owner", "Rarity", "Status", "Balance", "W/L", "Kills", "Net Profit", "Best Streak")

	for i, a := range roster {
		if i >= top {
			break
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			a.Name,
			a.OwnerID,
			agents.RarityName(agents.RarityFor(a.Stats.Total())),
			agents.StatusName(a.Status),
			humanize.CommafWithDigits(a.Balance, 0),
			fmt.Sprintf("%d/%d", a.Career.Wins, a.Career.Losses),
			fmt.Sprintf("%d", a.Career.Kills),
			humanize.CommafWithDigits(a.Career.NetProfit(), 0),
			fmt.Sprintf("%d", a.Career.BestStreak),
		)
	}
	table.Render()
}

func printOwners(users []wallet.User, top int) {
	sort.Slice(users, func(i, j int) bool { return users[i].Balance > users[j].Balance })

	fmt.Printf("\nOwners (%d)\n\n", len(users))
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("#", "User", "Balance", "Joined")

	for i, u := range users {
		if i >= top {
			break
		}
		table.Append(
			fmt.Sprintf("%d", i+1),
			u.ID,
			humanize.CommafWithDigits(u.Balance, 0),
			humanize.Time(u.CreatedAt),
		)
	}
	table.Render()
}
