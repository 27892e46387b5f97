// Package preferences is the Preferences Store: per-user channel
// enablement, encrypted contact fields, device registry, quiet hours,
// budget overrides, digest settings, and do-not-contact state.
package preferences

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"notifyengine/internal/encryption"
	"notifyengine/internal/model"
)

// Store persists UserPreferences in Postgres. Contact fields are written
// and read back as ciphertext: SetPhone/SetEmail encrypt them via the
// injected Encryptor, and DecryptPhone/DecryptEmail decrypt them on demand.
type Store struct {
	db       *pgxpool.Pool
	phoneEnc *encryption.Encryptor
	emailEnc *encryption.Encryptor
}

func NewStore(db *pgxpool.Pool, phoneEnc, emailEnc *encryption.Encryptor) *Store {
	return &Store{db: db, phoneEnc: phoneEnc, emailEnc: emailEnc}
}

type row struct {
	channelEnabled  []byte
	phoneCipher     string
	phoneVerified   *time.Time
	emailCipher     string
	emailVerified   *time.Time
	devices         []byte
	kindOverrides   []byte
	quietHours      []byte
	budgetOverrides []byte
	digest          []byte
	doNotContact    bool
	dncReason       string
	reactivateAt    *time.Time
	createdAt       time.Time
	updatedAt       time.Time
}

func unmarshalRow(r row, userID int64) (*model.UserPreferences, error) {
	p := &model.UserPreferences{
		UserID:             userID,
		PhoneCiphertext:    r.phoneCipher,
		PhoneVerifiedAt:    r.phoneVerified,
		EmailCiphertext:    r.emailCipher,
		EmailVerifiedAt:    r.emailVerified,
		DoNotContact:       r.doNotContact,
		DoNotContactReason: r.dncReason,
		ReactivateAt:       r.reactivateAt,
		CreatedAt:          r.createdAt,
		UpdatedAt:          r.updatedAt,
	}
	if len(r.channelEnabled) > 0 {
		if err := json.Unmarshal(r.channelEnabled, &p.ChannelEnabled); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal channel_enabled: %w", err)
		}
	}
	if len(r.devices) > 0 {
		if err := json.Unmarshal(r.devices, &p.Devices); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal devices: %w", err)
		}
	}
	if len(r.kindOverrides) > 0 {
		if err := json.Unmarshal(r.kindOverrides, &p.KindOverrides); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal kind_overrides: %w", err)
		}
	}
	if len(r.quietHours) > 0 {
		if err := json.Unmarshal(r.quietHours, &p.QuietHours); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal quiet_hours: %w", err)
		}
	}
	if len(r.budgetOverrides) > 0 {
		if err := json.Unmarshal(r.budgetOverrides, &p.BudgetOverrides); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal budget_overrides: %w", err)
		}
	}
	if len(r.digest) > 0 {
		if err := json.Unmarshal(r.digest, &p.Digest); err != nil {
			return nil, fmt.Errorf("preferences: unmarshal digest: %w", err)
		}
	}
	return p, nil
}

const columns = `channel_enabled, phone_ciphertext, phone_verified_at, email_ciphertext, email_verified_at,
		devices, kind_overrides, quiet_hours, budget_overrides, digest,
		do_not_contact, do_not_contact_reason, reactivate_at, created_at, updated_at`

// Get fetches a user's preferences. Returns pgx.ErrNoRows if none exist yet.
func (s *Store) Get(ctx context.Context, userID int64) (*model.UserPreferences, error) {
	query := `SELECT ` + columns + ` FROM user_preferences WHERE user_id = $1`

	var r row
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&r.channelEnabled, &r.phoneCipher, &r.phoneVerified, &r.emailCipher, &r.emailVerified,
		&r.devices, &r.kindOverrides, &r.quietHours, &r.budgetOverrides, &r.digest,
		&r.doNotContact, &r.dncReason, &r.reactivateAt, &r.createdAt, &r.updatedAt,
	)
	if err != nil {
		return nil, err
	}

	return unmarshalRow(r, userID)
}

// GetOrCreate fetches a user's preferences, inserting default preferences if
// none exist. Backs the Admin/user API's Preferences.GetOrCreate operation.
func (s *Store) GetOrCreate(ctx context.Context, userID int64) (*model.UserPreferences, error) {
	p, err := s.Get(ctx, userID)
	if err == nil {
		return p, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("preferences: get: %w", err)
	}

	defaults := &model.UserPreferences{
		UserID:          userID,
		ChannelEnabled:  map[model.Channel]bool{},
		KindOverrides:   map[string]model.KindOverride{},
		BudgetOverrides: map[model.Channel]model.BudgetCaps{},
	}
	if err := s.Upsert(ctx, defaults); err != nil {
		return nil, fmt.Errorf("preferences: create default: %w", err)
	}
	return defaults, nil
}

// Upsert writes p as it is. PhoneCiphertext/EmailCiphertext are persisted
// unchanged, without any encryption here; SetPhone/SetEmail are what put
// ciphertext into them.
func (s *Store) Upsert(ctx context.Context, p *model.UserPreferences) error {
	channelEnabledJSON, _ := json.Marshal(p.ChannelEnabled)
	devicesJSON, _ := json.Marshal(p.Devices)
	kindOverridesJSON, _ := json.Marshal(p.KindOverrides)
	quietHoursJSON, _ := json.Marshal(p.QuietHours)
	budgetOverridesJSON, _ := json.Marshal(p.BudgetOverrides)
	digestJSON, _ := json.Marshal(p.Digest)

	query := `
		INSERT INTO user_preferences (
			user_id, channel_enabled, phone_ciphertext, phone_verified_at,
			email_ciphertext, email_verified_at, devices, kind_overrides,
			quiet_hours, budget_overrides, digest, do_not_contact,
			do_not_contact_reason, reactivate_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE SET
			channel_enabled = EXCLUDED.channel_enabled,
			phone_ciphertext = EXCLUDED.phone_ciphertext,
			phone_verified_at = EXCLUDED.phone_verified_at,
			email_ciphertext = EXCLUDED.email_ciphertext,
			email_verified_at = EXCLUDED.email_verified_at,
			devices = EXCLUDED.devices,
			kind_overrides = EXCLUDED.kind_overrides,
			quiet_hours = EXCLUDED.quiet_hours,
			budget_overrides = EXCLUDED.budget_overrides,
			digest = EXCLUDED.digest,
			do_not_contact = EXCLUDED.do_not_contact,
			do_not_contact_reason = EXCLUDED.do_not_contact_reason,
			reactivate_at = EXCLUDED.reactivate_at,
			updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return s.db.QueryRow(ctx, query,
		p.UserID, channelEnabledJSON, p.PhoneCiphertext, p.PhoneVerifiedAt,
		p.EmailCiphertext, p.EmailVerifiedAt, devicesJSON, kindOverridesJSON,
		quietHoursJSON, budgetOverridesJSON, digestJSON, p.DoNotContact,
		p.DoNotContactReason, p.ReactivateAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
}

// SetPhone encrypts a new phone number into p, clearing verification. It
// does not persist p.
func (s *Store) SetPhone(ctx context.Context, p *model.UserPreferences, plaintext string) error {
	cipher, err := s.phoneEnc.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("preferences: encrypt phone: %w", err)
	}
	p.PhoneCiphertext = cipher
	p.PhoneVerifiedAt = nil
	return nil
}

// SetEmail encrypts a new email address into p, clearing verification. It
// does not persist p.
func (s *Store) SetEmail(ctx context.Context, p *model.UserPreferences, plaintext string) error {
	cipher, err := s.emailEnc.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("preferences: encrypt email: %w", err)
	}
	p.EmailCiphertext = cipher
	p.EmailVerifiedAt = nil
	return nil
}

// RegisterDevice adds or refreshes a push device on p, applying the
// device-cap/oldest-eviction policy in model.UserPreferences.AddDevice, and
// persists the result. This is the preferences-update path that feeds
// p.Devices, the same way SetPhone/SetEmail feed the contact fields; the
// caller that accepts a device token at the edge (e.g. a mobile client
// registering for push) is admin/user-API surface and out of core scope.
func (s *Store) RegisterDevice(ctx context.Context, p *model.UserPreferences, d model.Device) error {
	p.AddDevice(d)
	return s.Upsert(ctx, p)
}

// DecryptPhone returns the plaintext phone number, or "" if none is set.
func (s *Store) DecryptPhone(p *model.UserPreferences) (string, error) {
	return s.phoneEnc.Decrypt(p.PhoneCiphertext)
}

// DecryptEmail returns the plaintext email address, or "" if none is set.
func (s *Store) DecryptEmail(p *model.UserPreferences) (string, error) {
	return s.emailEnc.Decrypt(p.EmailCiphertext)
}
