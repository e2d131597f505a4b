package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/choregame/internal/model"
)

// ErrNoRows is returned by counter updates that match no row.
var ErrNoRows = errors.New("no matching row")

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func scanUser(scanner interface{ Scan(...any) error }) (*model.User, error) {
	var u model.User
	var invited int
	err := scanner.Scan(
		&u.ID, &u.Username, &u.Email, &u.Phone, &u.DeviceToken,
		&u.Badge, &u.LifetimeCurrency, &invited, &u.HasPassword,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Invited = invited != 0
	return &u, nil
}

const userCols = `id, username, email, phone, device_token, badge, lifetime_currency, invited, password_hash IS NOT NULL, created_at, updated_at`

func (s *UserStore) Create(ctx context.Context, username, email, phone string) (*model.User, error) {
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, phone) VALUES (?, ?, ?)`,
		username, email, phone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *UserStore) GetByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

// FindOrCreateByEmail returns the user with the given email, creating a bare
// record when none exists. created reports whether a row was inserted.
func (s *UserStore) FindOrCreateByEmail(ctx context.Context, email string) (u *model.User, created bool, err error) {
	u, err = s.GetByEmail(ctx, email)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		return u, false, nil
	}
	u, err = s.Create(ctx, "", email, "")
	if err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// SetPassword stores a bcrypt hash of password and clears the invited flag.
func (s *UserStore) SetPassword(ctx context.Context, id int64, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, invited = 0 WHERE id = ?`,
		string(hash), id,
	)
	if err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

// CheckPassword reports whether password matches the stored hash. Users
// without a password never match.
func (s *UserStore) CheckPassword(ctx context.Context, id int64, password string) (bool, error) {
	var hash sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id = ?`, id).Scan(&hash)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get password hash: %w", err)
	}
	if !hash.Valid {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(hash.String), []byte(password)) == nil, nil
}

func (s *UserStore) MarkInvited(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET invited = 1 WHERE id = ? AND password_hash IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark invited: %w", err)
	}
	return nil
}

func (s *UserStore) SetDeviceToken(ctx context.Context, id int64, token string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE users SET device_token = ? WHERE id = ?`, token, id)
	if err != nil {
		return fmt.Errorf("set device token: %w", err)
	}
	return nil
}

// AddLifetimeCurrency atomically adds delta to the user's lifetime currency.
func (s *UserStore) AddLifetimeCurrency(ctx context.Context, id int64, delta int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET lifetime_currency = lifetime_currency + ? WHERE id = ?`,
		delta, id,
	)
	if err != nil {
		return fmt.Errorf("add lifetime currency: %w", err)
	}
	return requireRow(result, "user", id)
}

func requireRow(result sql.Result, kind string, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNoRows)
	}
	return nil
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
