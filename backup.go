package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Backup storage keys.
const (
	backupKeyPrefix   = "retirement_backup_"
	KeyBackupMetadata = "retirement_backups_metadata"
	keyDeviceID       = "retirement_device_id"
)

// BackupService layers named, timestamped backup slots over the encrypted
// wrapper: each save stores the blob under a prefixed key and appends its
// metadata to an index, and auto-backups beyond the retention count are
// pruned oldest-first.
type BackupService struct {
	store     Store
	security  *SecurityService
	collector *Collector
	audit     *AuditLog
	log       Logger
	keepAuto  int
}

func NewBackupService(store Store, security *SecurityService, collector *Collector, audit *AuditLog, log Logger, cfg SecurityConfig) *BackupService {
	keep := cfg.AutoBackupKeep
	if keep <= 0 {
		keep = 10
	}
	return &BackupService{
		store:     store,
		security:  security,
		collector: collector,
		audit:     audit,
		log:       log,
		keepAuto:  keep,
	}
}

// DeviceID returns this device's stable identifier, creating one on first
// use.
func (b *BackupService) DeviceID(ctx context.Context) string {
	if raw, err := b.store.Get(ctx, keyDeviceID); err == nil && len(raw) > 0 {
		return string(raw)
	}
	id := uuid.NewString()
	if err := b.store.Put(ctx, keyDeviceID, []byte(id)); err != nil {
		b.log.Warnf("failed to persist device id: %v", err)
	}
	return id
}

func (b *BackupService) loadIndex(ctx context.Context) []BackupMetadata {
	raw, err := b.store.Get(ctx, KeyBackupMetadata)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			b.log.Warnf("failed to read backup index: %v", err)
		}
		return nil
	}
	var index []BackupMetadata
	if err := json.Unmarshal(raw, &index); err != nil {
		b.log.Warnf("backup index is corrupt, rebuilding empty: %v", err)
		return nil
	}
	return index
}

func (b *BackupService) saveIndex(ctx context.Context, index []BackupMetadata) error {
	raw, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("failed to serialize backup index: %w", err)
	}
	return b.store.Put(ctx, KeyBackupMetadata, raw)
}

// CreateBackup collects the full application state, encrypts it, and saves
// a new slot. Auto-backups past the retention count are pruned afterwards.
func (b *BackupService) CreateBackup(ctx context.Context, password, description string, auto bool) (*BackupMetadata, error) {
	collected, err := b.collector.CollectAllData(ctx)
	if err != nil {
		return nil, err
	}

	backup, err := b.security.CreateBackupData(collected.Data, password, description, b.DeviceID(ctx))
	if err != nil {
		return nil, err
	}
	backup.Metadata.IsAutoBackup = auto

	blob, err := json.Marshal(backup)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup: %w", err)
	}
	if err := b.store.Put(ctx, backupKeyPrefix+backup.Metadata.ID, blob); err != nil {
		return nil, err
	}

	index := append(b.loadIndex(ctx), backup.Metadata)
	index = b.pruneAutoBackups(ctx, index)
	if err := b.saveIndex(ctx, index); err != nil {
		return nil, err
	}

	b.log.Infof("backup %s saved (%d modules, auto=%v)", backup.Metadata.ID, len(collected.ModulesPresent), auto)
	return &backup.Metadata, nil
}

// pruneAutoBackups deletes the oldest auto-backups past the retention
// count. Manual backups are never pruned.
func (b *BackupService) pruneAutoBackups(ctx context.Context, index []BackupMetadata) []BackupMetadata {
	var autos []BackupMetadata
	for _, m := range index {
		if m.IsAutoBackup {
			autos = append(autos, m)
		}
	}
	if len(autos) <= b.keepAuto {
		return index
	}

	sort.Slice(autos, func(i, j int) bool { return autos[i].Timestamp < autos[j].Timestamp })
	drop := make(map[string]bool, len(autos)-b.keepAuto)
	for _, m := range autos[:len(autos)-b.keepAuto] {
		drop[m.ID] = true
	}

	kept := index[:0]
	for _, m := range index {
		if drop[m.ID] {
			if err := b.store.Delete(ctx, backupKeyPrefix+m.ID); err != nil {
				b.log.Warnf("failed to delete pruned backup %s: %v", m.ID, err)
			}
			continue
		}
		kept = append(kept, m)
	}
	return kept
}

// ListBackups returns the index, newest first.
func (b *BackupService) ListBackups(ctx context.Context) []BackupMetadata {
	index := b.loadIndex(ctx)
	sort.Slice(index, func(i, j int) bool { return index[i].Timestamp > index[j].Timestamp })
	return index
}

// ExportBackup returns a slot's raw encrypted blob, suitable for writing
// to a downloadable file.
func (b *BackupService) ExportBackup(ctx context.Context, id string) ([]byte, error) {
	blob, err := b.store.Get(ctx, backupKeyPrefix+id)
	if errors.Is(err, ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	return blob, err
}

// RestoreBackup decrypts a slot and writes its module slices back to the
// store. Returns the number of modules restored.
func (b *BackupService) RestoreBackup(ctx context.Context, id, password string) (int, error) {
	blob, err := b.ExportBackup(ctx, id)
	if err != nil {
		return 0, err
	}
	return b.restoreBlob(ctx, blob, password)
}

// ImportFile restores from arbitrary file content using format sniffing,
// accepting encrypted, plain, legacy, and bare-document shapes.
func (b *BackupService) ImportFile(ctx context.Context, content []byte, password string) (int, error) {
	return b.restoreBlob(ctx, content, password)
}

func (b *BackupService) restoreBlob(ctx context.Context, blob []byte, password string) (int, error) {
	data, meta, err := b.security.OpenBackup(blob, password)
	if err != nil {
		if errors.Is(err, ErrDecryptionFailed) && b.audit != nil {
			b.audit.Record(EventDecryptFailed, SeverityWarning, "backup-service", "restore failed to decrypt")
		}
		return 0, err
	}

	restored, err := b.collector.RestoreAllData(ctx, *data)
	if err != nil {
		return restored, err
	}

	if b.audit != nil {
		detail := "restored from imported file"
		if meta != nil {
			detail = "restored backup " + meta.ID
		}
		b.audit.Record(EventBackupRestored, SeverityInfo, "backup-service", detail)
	}
	b.log.Infof("restore complete: %d modules written", restored)
	return restored, nil
}

// DeleteBackup removes a slot and its index entry.
func (b *BackupService) DeleteBackup(ctx context.Context, id string) error {
	index := b.loadIndex(ctx)
	found := false
	kept := index[:0]
	for _, m := range index {
		if m.ID == id {
			found = true
			continue
		}
		kept = append(kept, m)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrBackupNotFound, id)
	}
	if err := b.store.Delete(ctx, backupKeyPrefix+id); err != nil {
		return err
	}
	if err := b.saveIndex(ctx, kept); err != nil {
		return err
	}
	if b.audit != nil {
		b.audit.Record(EventBackupDeleted, SeverityInfo, "backup-service", "backup "+id+" deleted")
	}
	return nil
}
