package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/teemow/smtpbridge/internal/crypto"
	"github.com/teemow/smtpbridge/internal/logging"
)

// Store reads and writes accounts. All token columns pass through its cipher
// and all API keys through its hasher. It is safe for concurrent use.
type Store struct {
	db          *gorm.DB
	cipher      *crypto.Cipher
	hasher      *crypto.Hasher
	logger      *slog.Logger
	allowLegacy bool
	now         func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for legacy plaintext warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLegacyPlaintext controls whether unencrypted token columns written by
// older releases are accepted on read. Enabled by default.
func WithLegacyPlaintext(allow bool) Option {
	return func(s *Store) {
		s.allowLegacy = allow
	}
}

// WithClock overrides the time source for audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a Store on an open database handle.
func NewStore(db *gorm.DB, cipher *crypto.Cipher, hasher *crypto.Hasher, opts ...Option) *Store {
	s := &Store{
		db:          db,
		cipher:      cipher,
		hasher:      hasher,
		logger:      slog.Default(),
		allowLegacy: true,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.WithComponent(s.logger, "account")
	return s
}

// NormalizeEmail returns the canonical form used as lookup key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Create stores a new account. The API key is hashed and the refresh token
// encrypted before the row is written.
func (s *Store) Create(ctx context.Context, email, refreshToken, apiKey string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, errors.New("email is required")
	}
	if refreshToken == "" {
		return nil, errors.New("refresh token is required")
	}

	keyHash, err := s.hasher.Hash(apiKey)
	if err != nil {
		return nil, fmt.Errorf("failed to hash api key: %w", err)
	}
	sealed, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
	}

	now := s.now()
	acc := &Account{
		Email:        email,
		RefreshToken: sealed,
		APIKeyHash:   keyHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.db.WithContext(ctx).Create(acc).Error; err != nil {
		if isDuplicateError(err) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	return acc, nil
}

// GetByEmail returns the account for email.
func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var acc Account
	err := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Take(&acc).Error
	if err != nil {
		return nil, s.lookupError(err)
	}
	return &acc, nil
}

// GetByID returns the account with the given id.
func (s *Store) GetByID(ctx context.Context, id uint) (*Account, error) {
	var acc Account
	if err := s.db.WithContext(ctx).Take(&acc, id).Error; err != nil {
		return nil, s.lookupError(err)
	}
	return &acc, nil
}

// List returns all accounts ordered by email.
func (s *Store) List(ctx context.Context) ([]Account, error) {
	var accounts []Account
	if err := s.db.WithContext(ctx).Order("email").Find(&accounts).Error; err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// UpdateAccessToken stores a new access token together with its expiry in
// unix seconds. The two columns are always written in one statement.
func (s *Store) UpdateAccessToken(ctx context.Context, email, accessToken string, expiry int64) error {
	sealed, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}
	return s.update(ctx, email, map[string]any{
		"access_token": sealed,
		"token_expiry": expiry,
	})
}

// ClearAccessToken removes the cached access token and its expiry.
func (s *Store) ClearAccessToken(ctx context.Context, email string) error {
	return s.update(ctx, email, map[string]any{
		"access_token": nil,
		"token_expiry": nil,
	})
}

// UpdateRefreshToken replaces the stored refresh token.
func (s *Store) UpdateRefreshToken(ctx context.Context, email, refreshToken string) error {
	if refreshToken == "" {
		return errors.New("refresh token is required")
	}
	sealed, err := s.cipher.Encrypt(refreshToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return s.update(ctx, email, map[string]any{"refresh_token": sealed})
}

// UpdateAPIKey replaces the API key hash. The previous key stops verifying
// as soon as the statement commits.
func (s *Store) UpdateAPIKey(ctx context.Context, email, apiKey string) error {
	keyHash, err := s.hasher.Hash(apiKey)
	if err != nil {
		return fmt.Errorf("failed to hash api key: %w", err)
	}
	return s.update(ctx, email, map[string]any{"api_key_hash": keyHash})
}

// Delete removes the account row.
func (s *Store) Delete(ctx context.Context, email string) error {
	result := s.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).Delete(&Account{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// VerifyAPIKey returns the account for email if candidate matches its API
// key. A missing account and a wrong key both yield (nil, nil); the missing
// case still spends one bcrypt comparison. An error is returned only for
// storage failures.
func (s *Store) VerifyAPIKey(ctx context.Context, email, candidate string) (*Account, error) {
	acc, err := s.GetByEmail(ctx, email)
	if errors.Is(err, ErrAccountNotFound) {
		s.hasher.VerifyDummy(candidate)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !s.hasher.Verify(candidate, acc.APIKeyHash) {
		return nil, nil
	}
	return acc, nil
}

// DecryptedRefreshToken returns the plaintext refresh token of acc.
func (s *Store) DecryptedRefreshToken(acc *Account) (string, error) {
	token, err := s.resolve(acc, "refresh_token", acc.RefreshToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return token, nil
}

// DecryptedAccessToken returns the plaintext access token of acc, or
// ErrNoAccessToken when none is cached.
func (s *Store) DecryptedAccessToken(acc *Account) (string, error) {
	if acc.AccessToken == nil {
		return "", ErrNoAccessToken
	}
	token, err := s.resolve(acc, "access_token", *acc.AccessToken)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	return token, nil
}

// MigrateLegacyPlaintext encrypts token columns still stored as plaintext and
// returns the number of accounts rewritten.
func (s *Store) MigrateLegacyPlaintext(ctx context.Context) (int, error) {
	accounts, err := s.List(ctx)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for i := range accounts {
		acc := &accounts[i]
		updates := map[string]any{}

		if refresh := crypto.Classify(acc.RefreshToken); refresh.IsLegacy() {
			sealed, err := s.cipher.Encrypt(acc.RefreshToken)
			if err != nil {
				return migrated, fmt.Errorf("failed to encrypt refresh token: %w", err)
			}
			updates["refresh_token"] = sealed
		}
		if acc.AccessToken != nil {
			if access := crypto.Classify(*acc.AccessToken); access.IsLegacy() {
				sealed, err := s.cipher.Encrypt(*acc.AccessToken)
				if err != nil {
					return migrated, fmt.Errorf("failed to encrypt access token: %w", err)
				}
				updates["access_token"] = sealed
			}
		}

		if len(updates) == 0 {
			continue
		}
		if err := s.update(ctx, acc.Email, updates); err != nil {
			return migrated, err
		}
		s.logger.Info("encrypted legacy plaintext tokens", logging.UserHash(acc.Email))
		migrated++
	}
	return migrated, nil
}

func (s *Store) update(ctx context.Context, email string, values map[string]any) error {
	values["updated_at"] = s.now()

	result := s.db.WithContext(ctx).Model(&Account{}).
		Where("email = ?", NormalizeEmail(email)).
		Updates(values)
	if result.Error != nil {
		if isDuplicateError(result.Error) {
			return ErrDuplicateAccount
		}
		return fmt.Errorf("failed to update account: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (s *Store) resolve(acc *Account, column, raw string) (string, error) {
	value := crypto.Classify(raw)
	if value.IsLegacy() {
		if !s.allowLegacy {
			return "", ErrLegacyPlaintext
		}
		s.logger.Warn("read legacy plaintext token; run 'smtpbridge account migrate'",
			slog.String("column", column),
			logging.UserHash(acc.Email))
	}
	return s.cipher.Resolve(value)
}

func (s *Store) lookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrAccountNotFound
	}
	return fmt.Errorf("failed to load account: %w", err)
}
