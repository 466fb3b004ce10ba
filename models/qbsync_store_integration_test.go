package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/hostbooks/qbsync_backend/config"
	"github.com/hostbooks/qbsync_backend/models"
)

// setupIntegrationDB starts a throwaway MySQL container, connects the shared
// handle and migrates the qbsync tables. The billing tables are not created:
// these tests only exercise the tables the engine owns.
func setupIntegrationDB(t *testing.T) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "qbsync_test")

	config.ConnectDatabaseWithRetry()
	models.MigrateTable()
}

func TestMappingStore_UpsertPreservesLock(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	store := models.NewMappingStore(config.GetDB())

	first := time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, models.EntityTypeClient, 42, "901", "0", first); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.SetLocked(ctx, models.EntityTypeClient, 42, true); err != nil {
		t.Fatalf("lock: %v", err)
	}

	second := time.Date(2026, 1, 11, 8, 0, 0, 0, time.UTC)
	if err := store.Upsert(ctx, models.EntityTypeClient, 42, "901", "1", second); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	m, err := store.Get(ctx, models.EntityTypeClient, 42)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if m == nil {
		t.Fatal("mapping missing")
	}
	if !m.Locked {
		t.Fatal("upsert cleared the lock")
	}
	if m.SyncToken != "1" {
		t.Fatalf("sync token = %q, want 1", m.SyncToken)
	}

	// Same local id under another entity type is a distinct row.
	if err := store.Upsert(ctx, models.EntityTypeInvoice, 42, "777", "0", second); err != nil {
		t.Fatalf("cross-type upsert: %v", err)
	}
	inv, err := store.Get(ctx, models.EntityTypeInvoice, 42)
	if err != nil || inv == nil {
		t.Fatalf("cross-type get: %v %v", inv, err)
	}
	if inv.RemoteId != "777" {
		t.Fatalf("cross-type remote = %q", inv.RemoteId)
	}

	if err := store.Unlink(ctx, models.EntityTypeInvoice, 42); err != nil {
		t.Fatalf("unlink: %v", err)
	}
	gone, err := store.Get(ctx, models.EntityTypeInvoice, 42)
	if err != nil {
		t.Fatalf("get after unlink: %v", err)
	}
	if gone != nil {
		t.Fatal("mapping survived unlink")
	}
}

func TestLogStore_CleanupRetentionBoundary(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	db := config.GetDB()

	pinned := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	cutoff := pinned.AddDate(0, 0, -30)

	rows := []models.SyncLog{
		{EntityType: models.EntityTypeClient, Action: models.ActionCreate, LocalId: 1, Status: models.StatusSuccess, Message: "older than cutoff", CreatedAt: cutoff.Add(-time.Second)},
		{EntityType: models.EntityTypeClient, Action: models.ActionCreate, LocalId: 2, Status: models.StatusSuccess, Message: "exactly at cutoff", CreatedAt: cutoff},
		{EntityType: models.EntityTypeClient, Action: models.ActionCreate, LocalId: 3, Status: models.StatusSuccess, Message: "newer than cutoff", CreatedAt: cutoff.Add(time.Second)},
	}
	for i := range rows {
		if err := db.WithContext(ctx).Create(&rows[i]).Error; err != nil {
			t.Fatalf("seed log row: %v", err)
		}
	}

	store := models.NewLogStoreWithClock(db, func() time.Time { return pinned })
	deleted, err := store.Cleanup(ctx, 30)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}

	remaining, err := store.Count(ctx, models.LogFilter{})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if remaining != 2 {
		t.Fatalf("remaining = %d, want 2 (boundary row must survive)", remaining)
	}

	boundary, err := store.Query(ctx, models.LogFilter{LocalId: 2}, 10, 0)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(boundary) != 1 {
		t.Fatal("entry created exactly at the cutoff was deleted")
	}
}

func TestSyncRunStore_MarkRunningOnce(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	store := models.NewSyncRunStore(config.GetDB())

	run := &models.SyncRun{Status: models.SyncRunStatusQueued, TriggeredBy: models.SyncTriggeredManual}
	if err := store.Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}

	started := time.Now().UTC().Truncate(time.Second)
	ok, err := store.MarkRunning(ctx, run.ID, started)
	if err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if !ok {
		t.Fatal("first transition should win")
	}

	// A duplicate delivery sees the run already running and backs off.
	ok, err = store.MarkRunning(ctx, run.ID, started)
	if err != nil {
		t.Fatalf("second mark running: %v", err)
	}
	if ok {
		t.Fatal("second transition must be rejected")
	}

	if err := store.Finish(ctx, run.ID, models.SyncRunStatusPartial, []byte(`{"client":{"total":2}}`), 1, 1, time.Now().UTC(), 1200); err != nil {
		t.Fatalf("finish: %v", err)
	}
	got, err := store.Get(ctx, run.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != models.SyncRunStatusPartial || got.RecordsSynced != 1 || got.ErrorCount != 1 {
		t.Fatalf("finished run = %+v", got)
	}
}

func TestReferenceStore_SettingsAndTaxKeys(t *testing.T) {
	setupIntegrationDB(t)
	ctx := context.Background()
	store := models.NewReferenceStore(config.GetDB())

	v, err := store.Setting(ctx, models.SettingLogRetentionDays, "90")
	if err != nil {
		t.Fatalf("setting fallback: %v", err)
	}
	if v != "90" {
		t.Fatalf("fallback = %q, want 90", v)
	}

	if err := store.SetSetting(ctx, models.SettingLogRetentionDays, "30"); err != nil {
		t.Fatalf("set setting: %v", err)
	}
	if err := store.SetSetting(ctx, models.SettingLogRetentionDays, "14"); err != nil {
		t.Fatalf("overwrite setting: %v", err)
	}
	v, err = store.Setting(ctx, models.SettingLogRetentionDays, "90")
	if err != nil {
		t.Fatalf("setting: %v", err)
	}
	if v != "14" {
		t.Fatalf("setting = %q, want 14", v)
	}

	on, err := store.SettingBool(ctx, models.SettingSyncZeroInvoices, false)
	if err != nil {
		t.Fatalf("bool fallback: %v", err)
	}
	if on {
		t.Fatal("unset bool setting should use the fallback")
	}
	if err := store.SetSetting(ctx, models.SettingSyncZeroInvoices, "on"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	on, err = store.SettingBool(ctx, models.SettingSyncZeroInvoices, false)
	if err != nil || !on {
		t.Fatalf("bool = %v %v, want true", on, err)
	}

	if err := store.UpsertTaxMapping(ctx, "750", "TAX-7", "VAT 7.5%"); err != nil {
		t.Fatalf("upsert tax: %v", err)
	}
	code, err := store.TaxCodeForRate(ctx, "750")
	if err != nil || code != "TAX-7" {
		t.Fatalf("tax code = %q %v", code, err)
	}
	code, err = store.TaxCodeForRate(ctx, "825")
	if err != nil {
		t.Fatalf("unmapped tax rate: %v", err)
	}
	if code != "" {
		t.Fatalf("unmapped rate returned %q", code)
	}
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("qbsync-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=qbsync_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
