package main

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf8"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/pbkdf2"
)

// BackupVersion is the current on-disk format version.
const BackupVersion = "2.0"

// PlainBackupSchema identifies the unencrypted export format.
const PlainBackupSchema = "monplanretraite.v1"

// BackupMetadata identifies one backup.
type BackupMetadata struct {
	ID           string    `json:"id"`
	DeviceID     string    `json:"deviceId"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	Version      string    `json:"version"`
	Checksum     string    `json:"checksum"`
	Timestamp    int64     `json:"timestamp"`
	IsAutoBackup bool      `json:"isAutoBackup"`
	Description  string    `json:"description,omitempty"`
}

// EncryptedBackup is the encrypted wrapper written to disk and to backup
// slots. Checksum covers the wrapper itself (metadata + ciphertext + salt).
type EncryptedBackup struct {
	Metadata      BackupMetadata `json:"metadata"`
	EncryptedData string         `json:"encryptedData"` // base64, AES-GCM, nonce-prefixed
	Salt          string         `json:"salt"`          // hex
	Checksum      string         `json:"checksum"`
}

// PlainBackup is the simple unencrypted export format.
type PlainBackup struct {
	Schema   string   `json:"schema"`
	SavedAt  string   `json:"savedAt"`
	User     string   `json:"user,omitempty"`
	Language string   `json:"language,omitempty"`
	Data     UserData `json:"data"`
}

// BackupFormat tags the classifier's verdict on an imported file. Modeling
// the four shapes as an explicit sum keeps the restore switch exhaustive.
type BackupFormat int

const (
	FormatUnknown   BackupFormat = iota
	FormatEncrypted              // {metadata, encryptedData, salt, checksum}
	FormatPlain                  // {schema: "monplanretraite.v1", data: {...}}
	FormatLegacy                 // {encrypted: true, content, salt}, pre-2.0 exports
	FormatDirect                 // bare document with a recognizable substructure
)

func (f BackupFormat) String() string {
	switch f {
	case FormatEncrypted:
		return "encrypted"
	case FormatPlain:
		return "plain"
	case FormatLegacy:
		return "legacy"
	case FormatDirect:
		return "direct"
	default:
		return "unknown"
	}
}

// legacyBackup is the pre-2.0 export wrapper. It used a shorter PBKDF2
// schedule, which is why the legacy path derives its own key.
type legacyBackup struct {
	Encrypted bool   `json:"encrypted"`
	Content   string `json:"content"`
	Salt      string `json:"salt"`
	Version   string `json:"version,omitempty"`
}

const legacyPBKDF2Iterations = 10000

// SecurityService owns encryption, integrity checks, and format detection
// for the backup pipeline. Construct with NewSecurityService; the audit
// log is optional.
type SecurityService struct {
	iterations int
	log        Logger
	audit      *AuditLog
}

func NewSecurityService(cfg SecurityConfig, log Logger, audit *AuditLog) *SecurityService {
	iters := cfg.PBKDF2Iterations
	if iters <= 0 {
		iters = 100000
	}
	return &SecurityService{iterations: iters, log: log, audit: audit}
}

// deriveKey stretches a password into an AES-256 key.
func (s *SecurityService) deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, 32, sha256.New)
}

// encrypt seals plaintext with a password-derived key. The nonce is
// prepended to the ciphertext, kanuka-style, so the blob is self-contained
// apart from the salt.
func (s *SecurityService) encrypt(plaintext []byte, password string, salt []byte) (string, error) {
	block, err := aes.NewCipher(s.deriveKey(password, salt, s.iterations))
	if err != nil {
		return "", fmt.Errorf("failed to initialize cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to initialize GCM: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// decrypt opens a base64 AES-GCM blob. Every failure mode (bad base64,
// authentication failure from a wrong password, a plaintext that is not
// UTF-8 JSON) maps to ErrDecryptionFailed so the UI can prompt for a
// password retry.
func (s *SecurityService) decrypt(encoded, password string, salt []byte, iterations int) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", ErrDecryptionFailed)
	}
	block, err := aes.NewCipher(s.deriveKey(password, salt, iterations))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := gcm.Open(nil, sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	if len(plaintext) == 0 || !utf8.Valid(plaintext) || !json.Valid(plaintext) {
		return nil, fmt.Errorf("%w: decrypted content is not valid JSON", ErrDecryptionFailed)
	}
	return plaintext, nil
}

// validateUserData checks the required top-level sections are present and
// non-null. Collection always synthesizes them; this guards hand-imported
// documents.
func validateUserData(data UserData) error {
	sections := map[string]json.RawMessage{
		"personal":   data.Personal,
		"retirement": data.Retirement,
		"savings":    data.Savings,
		"cashflow":   data.Cashflow,
	}
	for name, raw := range sections {
		if len(raw) == 0 || string(raw) == "null" {
			return fmt.Errorf("%w: %s", ErrValidationFailed, name)
		}
	}
	return nil
}

// wrapperChecksum covers the wrapper's metadata, ciphertext, and salt. The
// Checksum fields themselves are excluded from the hash.
func wrapperChecksum(b EncryptedBackup) string {
	stripped := b
	stripped.Checksum = ""
	stripped.Metadata.Checksum = ""
	serialized, err := json.Marshal(stripped)
	if err != nil {
		return ""
	}
	return RollingChecksum(serialized)
}

// CreateBackupData validates, encrypts, and wraps a UserData document. A
// fresh random salt is drawn per backup so equal documents never share
// ciphertext.
func (s *SecurityService) CreateBackupData(data UserData, password, description, deviceID string) (*EncryptedBackup, error) {
	if err := validateUserData(data); err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize backup document: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	ciphertext, err := s.encrypt(plaintext, password, salt)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	backup := EncryptedBackup{
		Metadata: BackupMetadata{
			ID:        uuid.NewString(),
			DeviceID:  deviceID,
			CreatedAt: now,
			UpdatedAt: now,
			Version:   BackupVersion,
			Timestamp: now.UnixMilli(),
		},
		EncryptedData: ciphertext,
		Salt:          hex.EncodeToString(salt),
	}
	backup.Metadata.Description = description
	backup.Checksum = wrapperChecksum(backup)
	backup.Metadata.Checksum = backup.Checksum

	if s.audit != nil {
		s.audit.Record(EventBackupCreated, SeverityInfo, "security-service",
			fmt.Sprintf("backup %s created", backup.Metadata.ID))
	}
	return &backup, nil
}

// ClassifyBackup inspects raw file content and tags which of the known
// shapes it matches. Probe order is the restore priority: encrypted
// wrapper, plain export, legacy wrapper, then bare documents.
func ClassifyBackup(raw []byte) BackupFormat {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return FormatUnknown
	}

	has := func(key string) bool {
		v, ok := probe[key]
		return ok && len(v) > 0 && string(v) != "null"
	}

	if has("encryptedData") && has("salt") && has("metadata") {
		return FormatEncrypted
	}
	if has("schema") && has("data") {
		var schema string
		if json.Unmarshal(probe["schema"], &schema) == nil && schema == PlainBackupSchema {
			return FormatPlain
		}
	}
	if has("encrypted") && has("content") {
		return FormatLegacy
	}
	if has("personal") || has("personalData") || has("modules") || has("retirement") {
		return FormatDirect
	}
	return FormatUnknown
}

// OpenBackup restores a UserData document from any recognized file shape.
// A checksum mismatch on the encrypted wrapper is logged and audited but
// does not fail the restore (older exports recomputed the hash over a
// slightly different serialization).
func (s *SecurityService) OpenBackup(raw []byte, password string) (*UserData, *BackupMetadata, error) {
	switch ClassifyBackup(raw) {
	case FormatEncrypted:
		var backup EncryptedBackup
		if err := json.Unmarshal(raw, &backup); err != nil {
			return nil, nil, fmt.Errorf("%w: malformed wrapper", ErrFormatUnrecognized)
		}
		if backup.Checksum != "" && wrapperChecksum(backup) != backup.Checksum {
			s.log.Warnf("backup %s checksum mismatch, continuing for compatibility", backup.Metadata.ID)
			if s.audit != nil {
				s.audit.Record(EventChecksumMismatch, SeverityWarning, "security-service",
					fmt.Sprintf("backup %s failed checksum verification", backup.Metadata.ID))
			}
		}
		salt, err := hex.DecodeString(backup.Salt)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid salt", ErrDecryptionFailed)
		}
		plaintext, err := s.decrypt(backup.EncryptedData, password, salt, s.iterations)
		if err != nil {
			return nil, nil, err
		}
		var data UserData
		if err := json.Unmarshal(plaintext, &data); err != nil {
			return nil, nil, fmt.Errorf("%w: decrypted content is not a backup document", ErrDecryptionFailed)
		}
		return &data, &backup.Metadata, nil

	case FormatPlain:
		var plain PlainBackup
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, nil, fmt.Errorf("%w: malformed plain export", ErrFormatUnrecognized)
		}
		return &plain.Data, nil, nil

	case FormatLegacy:
		var legacy legacyBackup
		if err := json.Unmarshal(raw, &legacy); err != nil {
			return nil, nil, fmt.Errorf("%w: malformed legacy wrapper", ErrFormatUnrecognized)
		}
		salt, err := hex.DecodeString(legacy.Salt)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: invalid legacy salt", ErrDecryptionFailed)
		}
		plaintext, err := s.decrypt(legacy.Content, password, salt, legacyPBKDF2Iterations)
		if err != nil {
			return nil, nil, err
		}
		var data UserData
		if err := json.Unmarshal(plaintext, &data); err != nil {
			return nil, nil, fmt.Errorf("%w: legacy content is not a backup document", ErrDecryptionFailed)
		}
		return &data, nil, nil

	case FormatDirect:
		var data UserData
		if err := json.Unmarshal(raw, &data); err != nil {
			return nil, nil, fmt.Errorf("%w: document does not parse", ErrFormatUnrecognized)
		}
		return &data, nil, nil

	default:
		if s.audit != nil {
			s.audit.Record(EventRestoreRejected, SeverityWarning, "security-service",
				"import rejected: unrecognized file format")
		}
		return nil, nil, ErrFormatUnrecognized
	}
}
