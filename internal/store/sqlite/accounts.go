package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/vovakirdan/legacy-gateway/internal/store"
	"github.com/vovakirdan/legacy-gateway/internal/utils"
)

// ErrEmailTaken is returned when an account with the same email exists.
var ErrEmailTaken = errors.New("email already registered")

const accountColumns = `id, username, discriminator, email, password_hash, avatar, bot, verified, settings, created_at`

// CreateAccount inserts a new account with a generated id and discriminator.
func (s *SQLiteStore) CreateAccount(ctx context.Context, username, email, passwordHash string) (*store.Account, error) {
	settings, err := json.Marshal(store.DefaultSettings())
	if err != nil {
		return nil, fmt.Errorf("encode settings: %w", err)
	}

	id := utils.NewID()
	query := `
		INSERT INTO users (id, username, discriminator, email, password_hash, settings)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	// Retry on the rare (username, discriminator) collision.
	for attempt := 0; attempt < 5; attempt++ {
		discriminator := fmt.Sprintf("%04d", rand.IntN(9999)+1)
		_, err = s.db.ExecContext(ctx, query, id, username, discriminator, strings.ToLower(email), passwordHash, string(settings))
		if err == nil {
			return s.GetAccountByID(ctx, id)
		}

		var sqliteErr sqlite3.Error
		if !errors.As(err, &sqliteErr) || sqliteErr.ExtendedCode != sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("insert account: %w", err)
		}
		if strings.Contains(err.Error(), "users.email") {
			return nil, ErrEmailTaken
		}
	}
	return nil, fmt.Errorf("insert account: %w", err)
}

// GetAccountByID retrieves an account by id.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, id string) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id)
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("account", id)
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

// GetAccountByEmail retrieves an account by its login email.
func (s *SQLiteStore) GetAccountByEmail(ctx context.Context, email string) (*store.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM users WHERE email = ?`, strings.ToLower(email))
	account, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("account", email)
		}
		return nil, fmt.Errorf("query account: %w", err)
	}
	return account, nil
}

// UpdateSettings replaces the account's client settings.
func (s *SQLiteStore) UpdateSettings(ctx context.Context, id string, settings store.UserSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `UPDATE users SET settings = ? WHERE id = ?`, string(data), id)
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return notFound("account", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*store.Account, error) {
	var (
		account  store.Account
		settings string
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Discriminator,
		&account.Email,
		&account.PasswordHash,
		&account.Avatar,
		&account.Bot,
		&account.Verified,
		&settings,
		&account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	account.Settings = store.DefaultSettings()
	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &account.Settings); err != nil {
			return nil, fmt.Errorf("decode settings: %w", err)
		}
	}
	return &account, nil
}
