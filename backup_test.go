package main

import (
	"context"
	"errors"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

// newTestBackupService wires a full backup stack over an in-memory store
// seeded with a couple of module slices.
func newTestBackupService(t *testing.T, keepAuto int) (*BackupService, *MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, KeyPersonalData, []byte(`{"name":"test"}`)); err != nil {
		t.Fatal(err)
	}
	if err := store.Put(ctx, KeyExpensesData, []byte(`{"monthly":4000}`)); err != nil {
		t.Fatal(err)
	}

	cfg := SecurityConfig{PBKDF2Iterations: 1000, MaxLogs: 100, RetentionDays: 30, AutoBackupKeep: keepAuto}
	log := Logger{}
	audit := NewAuditLog(store, log, cfg)
	security := NewSecurityService(cfg, log, audit)
	collector := NewCollector(store, log)
	return NewBackupService(store, security, collector, audit, log, cfg), store
}

func TestBackupService_CreateAndList(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestBackupService(t, 10)

	first, err := svc.CreateBackup(ctx, "pw", "first", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	time.Sleep(2 * time.Millisecond) // Distinct millisecond timestamps
	second, err := svc.CreateBackup(ctx, "pw", "second", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	list := svc.ListBackups(ctx)
	if len(list) != 2 {
		t.Fatalf("expected 2 backups, got %d", len(list))
	}
	if list[0].ID != second.ID || list[1].ID != first.ID {
		t.Error("list should be newest first")
	}
	if list[0].Description != "second" {
		t.Errorf("description %q, want %q", list[0].Description, "second")
	}
}

func TestBackupService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBackupService(t, 10)

	meta, err := svc.CreateBackup(ctx, "pw", "", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// Overwrite a slice, then restore the snapshot over it.
	if err := store.Put(ctx, KeyPersonalData, []byte(`{"name":"changed"}`)); err != nil {
		t.Fatal(err)
	}
	restored, err := svc.RestoreBackup(ctx, meta.ID, "pw")
	if err != nil {
		t.Fatalf("restore failed: %v", err)
	}
	if restored != 2 {
		t.Errorf("expected 2 module slices restored, got %d", restored)
	}

	raw, err := store.Get(ctx, KeyPersonalData)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"name":"test"}` {
		t.Errorf("slice not rolled back: %s", raw)
	}
}

func TestBackupService_WrongPassword(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestBackupService(t, 10)

	meta, err := svc.CreateBackup(ctx, "pw", "", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := svc.RestoreBackup(ctx, meta.ID, "nope"); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("expected ErrDecryptionFailed, got %v", err)
	}
}

func TestBackupService_ExportAndImport(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBackupService(t, 10)

	meta, err := svc.CreateBackup(ctx, "pw", "", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	blob, err := svc.ExportBackup(ctx, meta.ID)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if ClassifyBackup(blob) != FormatEncrypted {
		t.Fatalf("exported blob should be an encrypted wrapper, classified as %s", ClassifyBackup(blob))
	}

	// The exported file restores on a machine that never saw the backup.
	if err := store.Put(ctx, KeyPersonalData, []byte(`{"name":"other"}`)); err != nil {
		t.Fatal(err)
	}
	restored, err := svc.ImportFile(ctx, blob, "pw")
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if restored != 2 {
		t.Errorf("expected 2 module slices restored, got %d", restored)
	}

	if _, err := svc.ImportFile(ctx, []byte("not a backup"), "pw"); !errors.Is(err, ErrFormatUnrecognized) {
		t.Errorf("garbage import: expected ErrFormatUnrecognized, got %v", err)
	}
}

func TestBackupService_ImportBareDocument(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestBackupService(t, 10)

	raw, _ := json.Marshal(UserData{
		Personal:   json.RawMessage(`{}`),
		Retirement: json.RawMessage(`{}`),
		Savings:    json.RawMessage(`{}`),
		Cashflow:   json.RawMessage(`{}`),
		Modules: map[string]json.RawMessage{
			KeyBudgetData: json.RawMessage(`{"limit":100}`),
		},
	})

	restored, err := svc.ImportFile(ctx, raw, "")
	if err != nil {
		t.Fatalf("bare document import failed: %v", err)
	}
	if restored != 1 {
		t.Errorf("expected 1 module slice restored, got %d", restored)
	}
}

func TestBackupService_ExportUnknownID(t *testing.T) {
	svc, _ := newTestBackupService(t, 10)
	if _, err := svc.ExportBackup(context.Background(), "nope"); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("expected ErrBackupNotFound, got %v", err)
	}
}

func TestBackupService_Delete(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestBackupService(t, 10)

	meta, err := svc.CreateBackup(ctx, "pw", "", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := svc.DeleteBackup(ctx, meta.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	if got := svc.ListBackups(ctx); len(got) != 0 {
		t.Errorf("expected an empty index, got %d entries", len(got))
	}
	if _, err := svc.ExportBackup(ctx, meta.ID); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("slot should be gone, got %v", err)
	}
	if err := svc.DeleteBackup(ctx, meta.ID); !errors.Is(err, ErrBackupNotFound) {
		t.Errorf("double delete: expected ErrBackupNotFound, got %v", err)
	}
}

func TestBackupService_PrunesOldestAutoBackups(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestBackupService(t, 2)

	manual, err := svc.CreateBackup(ctx, "pw", "keep me", false)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var autoIDs []string
	for i := 0; i < 4; i++ {
		time.Sleep(2 * time.Millisecond)
		m, err := svc.CreateBackup(ctx, "pw", "", true)
		if err != nil {
			t.Fatalf("auto create %d failed: %v", i, err)
		}
		autoIDs = append(autoIDs, m.ID)
	}

	list := svc.ListBackups(ctx)
	if len(list) != 3 {
		t.Fatalf("expected the manual backup plus 2 autos, got %d", len(list))
	}

	byID := make(map[string]BackupMetadata, len(list))
	for _, m := range list {
		byID[m.ID] = m
	}
	if _, ok := byID[manual.ID]; !ok {
		t.Error("manual backups must never be pruned")
	}
	// The two youngest autos survive; the two oldest are gone with their
	// blobs.
	for _, id := range autoIDs[2:] {
		if _, ok := byID[id]; !ok {
			t.Errorf("young auto backup %s should survive", id)
		}
	}
	for _, id := range autoIDs[:2] {
		if _, ok := byID[id]; ok {
			t.Errorf("old auto backup %s should be pruned", id)
		}
		if _, err := svc.ExportBackup(ctx, id); !errors.Is(err, ErrBackupNotFound) {
			t.Errorf("pruned blob %s should be deleted, got %v", id, err)
		}
	}
}

func TestBackupService_DeviceIDStable(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBackupService(t, 10)

	first := svc.DeviceID(ctx)
	if first == "" {
		t.Fatal("expected a generated device id")
	}
	if second := svc.DeviceID(ctx); second != first {
		t.Errorf("device id changed between calls: %s then %s", first, second)
	}

	// A second service over the same store sees the same identity.
	other := NewBackupService(store, newTestSecurity(), NewCollector(store, Logger{}), nil, Logger{}, SecurityConfig{})
	if got := other.DeviceID(ctx); got != first {
		t.Errorf("device id not persisted: %s vs %s", got, first)
	}
}
