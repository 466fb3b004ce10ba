package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/hostbooks/qbsync_backend/config"
	"github.com/hostbooks/qbsync_backend/models"
	"github.com/hostbooks/qbsync_backend/qbo"
	"github.com/hostbooks/qbsync_backend/qbsync"
	"github.com/hostbooks/qbsync_backend/utils"
)

const usage = `usage: qbsync-cron <command> [flags]

commands:
  sync-all         sync every entity type in dependency order
  sync-clients     sync unmapped clients
  sync-invoices    sync unmapped invoices
  sync-payments    sync unmapped payment transactions
  sync-credits     sync unmapped account credits
  sync-refunds     sync unmapped refund transactions
  cleanup-logs     delete operation-log entries past retention
  hash-token       print the bcrypt hash for QBSYNC_API_TOKEN_HASH

flags:
  --limit N        max records per entity type (default 50)
  --force          bypass record locks
  --quiet          print only the summary line
  --days N         cleanup-logs retention in days (default: setting, then 90)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	// hash-token needs no database or ledger connection.
	if command == "hash-token" {
		if len(os.Args) < 3 || os.Args[2] == "" {
			fmt.Fprintln(os.Stderr, "usage: qbsync-cron hash-token <token>")
			os.Exit(2)
		}
		hash, err := utils.HashToken(os.Args[2])
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	fs := flag.NewFlagSet(command, flag.ExitOnError)
	limit := fs.Int("limit", 0, "max records per entity type")
	force := fs.Bool("force", false, "bypass record locks")
	quiet := fs.Bool("quiet", false, "print only the summary line")
	days := fs.Int("days", 0, "log retention in days (cleanup-logs)")
	_ = fs.Parse(os.Args[2:])

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	ctx := context.Background()
	logs := models.NewLogStore(nil)
	refs := models.NewReferenceStore(nil)

	if command == "cleanup-logs" {
		retention := *days
		if retention == 0 {
			configured, err := refs.Setting(ctx, models.SettingLogRetentionDays, "90")
			if err == nil {
				if v, err := strconv.Atoi(configured); err == nil && v > 0 {
					retention = v
				}
			}
		}
		if retention == 0 {
			retention = 90
		}
		deleted, err := logs.Cleanup(ctx, retention)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("cleanup-logs: deleted %d entries older than %d days\n", deleted, retention)
		return
	}

	engine := buildEngine()
	limits := qbsync.Limits{
		Clients:  *limit,
		Invoices: *limit,
		Payments: *limit,
		Credits:  *limit,
		Refunds:  *limit,
	}

	started := time.Now()
	var batches []*qbsync.BatchResult

	switch command {
	case "sync-all":
		results := engine.SyncAll(ctx, limits, *force)
		for _, entityType := range qbsync.SyncOrder {
			batches = append(batches, results[entityType])
		}
	case "sync-clients":
		batches = append(batches, engine.SyncClients(ctx, *limit, *force))
	case "sync-invoices":
		batches = append(batches, engine.SyncInvoices(ctx, *limit, *force))
	case "sync-payments":
		batches = append(batches, engine.SyncPayments(ctx, *limit, *force))
	case "sync-credits":
		batches = append(batches, engine.SyncCredits(ctx, *limit, *force))
	case "sync-refunds":
		batches = append(batches, engine.SyncRefunds(ctx, *limit, *force))
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	failed := 0
	for _, batch := range batches {
		if !*quiet {
			for _, id := range sortedIds(batch) {
				detail := batch.Details[id]
				fmt.Printf("  %s #%d: action=%s success=%t remote=%s %s\n",
					detail.EntityType, detail.LocalId, detail.Action, detail.Success, detail.RemoteId, detail.Message)
			}
		}
		fmt.Println(batch.String())
		failed += batch.Failed
	}
	fmt.Printf("%s finished in %s\n", command, time.Since(started).Round(time.Millisecond))
	if failed > 0 {
		os.Exit(1)
	}
}

func buildEngine() *qbsync.Engine {
	tokens, err := qbo.TokenSourceFromEnv()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	ledger, err := qbo.NewClient(tokens)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return qbsync.NewEngine(
		ledger,
		models.NewMappingStore(nil),
		models.NewLogStore(nil),
		models.NewReferenceStore(nil),
		models.NewBillingStore(nil),
	)
}

func sortedIds(batch *qbsync.BatchResult) []int {
	ids := make([]int, 0, len(batch.Details))
	for id := range batch.Details {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
