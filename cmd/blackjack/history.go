package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/lox/blackjack/internal/storage"
	"github.com/lox/blackjack/internal/storage/sqlite"
)

var (
	historyHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	historyCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// HistoryCmd prints records straight from the server's database
type HistoryCmd struct {
	Database string `kong:"default='blackjack.db',help='SQLite database path'"`
	User     string `kong:"help='Show records, stats and ledger for this user'"`
	Limit    int    `kong:"default='20',help='Maximum rows per table'"`
	Ledger   bool   `kong:"help='Include the chip ledger (requires --user)'"`

	out io.Writer
}

func (c *HistoryCmd) Run() error {
	ctx := context.Background()
	out := c.out
	if out == nil {
		out = os.Stdout
	}

	if _, err := os.Stat(c.Database); err != nil {
		return fmt.Errorf("database %s: %w", c.Database, err)
	}
	store, err := sqlite.Open(ctx, c.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if c.User == "" {
		rankings, err := store.Rankings(ctx, c.Limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderRankings(rankings))
		return nil
	}

	stats, err := store.Stats(ctx, c.User)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %d games, %d won, %d lost, %d drawn, win rate %.1f%%, net %+d\n",
		c.User, stats.TotalGames, stats.Wins, stats.Losses, stats.Draws, stats.WinRate*100, stats.Net())

	records, err := store.Records(ctx, c.User, c.Limit)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, renderRecords(records))

	if c.Ledger {
		entries, err := store.Ledger(ctx, c.User, c.Limit)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderLedger(entries))
	}
	return nil
}

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return historyHeaderStyle
			}
			return historyCellStyle
		})
}

func renderRecords(records []storage.GameRecord) string {
	t := newTable("Round", "Result", "Player", "Dealer", "Bet", "Payout", "Played")
	for _, r := range records {
		result := string(r.Outcome)
		switch {
		case r.Blackjack:
			result += " (blackjack)"
		case r.Doubled:
			result += " (doubled)"
		}
		t.Row(
			r.RoundID,
			result,
			strconv.Itoa(r.PlayerScore),
			strconv.Itoa(r.DealerScore),
			strconv.FormatInt(r.Bet, 10),
			strconv.FormatInt(r.Payout, 10),
			r.CreatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	return t.Render()
}

func renderRankings(rankings []storage.Ranking) string {
	t := newTable("#", "User", "Best payout", "Games")
	for _, r := range rankings {
		t.Row(
			strconv.Itoa(r.Rank),
			r.UserID,
			strconv.FormatInt(r.BestPayout, 10),
			strconv.Itoa(r.Games),
		)
	}
	return t.Render()
}

func renderLedger(entries []storage.LedgerEntry) string {
	t := newTable("ID", "Kind", "Amount", "Before", "After", "Round")
	for _, e := range entries {
		t.Row(
			strconv.FormatInt(e.ID, 10),
			string(e.Kind),
			strconv.FormatInt(e.Amount, 10),
			strconv.FormatInt(e.Before, 10),
			strconv.FormatInt(e.After, 10),
			e.RoundID,
		)
	}
	return t.Render()
}
