package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"go.uber.org/zap"
)

// UsersRepository users table access. Tokens are encrypted at rest.
type UsersRepository struct {
	db     *sql.DB
	tokens *TokenCipher
	logger *zap.Logger
}

// NewUsersRepository creates the repository.
func NewUsersRepository(db *sql.DB, tokens *TokenCipher, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{
		db:     db,
		tokens: tokens,
		logger: logger,
	}
}

const userColumns = `id, name, email, access_token, refresh_token, created_at`

// CreateUser inserts a new user instance. Re-linking an email creates a newer instance.
func (r *UsersRepository) CreateUser(ctx context.Context, user *models.User) error {
	email := strings.TrimSpace(strings.ToLower(user.Email))
	if email == "" {
		return fmt.Errorf("email is required")
	}

	query := `
		INSERT INTO users (name, email, access_token, refresh_token, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, created_at
	`

	access, err := r.tokens.encryptOptional(user.AccessToken)
	if err != nil {
		return err
	}
	refresh, err := r.tokens.encryptOptional(user.RefreshToken)
	if err != nil {
		return err
	}

	err = r.db.QueryRowContext(ctx, query, user.Name, email, access, refresh).
		Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return unavailable("create user", err)
	}
	user.Email = email

	r.logger.Info("User instance created",
		zap.Int64("user_id", user.ID),
		zap.String("email", email),
	)
	return nil
}

// GetUser returns a user instance by id.
func (r *UsersRepository) GetUser(ctx context.Context, id int64) (*models.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE id = $1`, userColumns)

	user, err := r.scanUser(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable("get user", err)
	}
	return user, nil
}

// CurrentUserByEmail returns the most recently created instance for email.
func (r *UsersRepository) CurrentUserByEmail(ctx context.Context, email string) (*models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM users
		WHERE email = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, userColumns)

	user, err := r.scanUser(r.db.QueryRowContext(ctx, query, strings.TrimSpace(strings.ToLower(email))))
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, unavailable("get current user", err)
	}
	return user, nil
}

// ListCurrentUsers returns the current instance of every email, ordered by id.
func (r *UsersRepository) ListCurrentUsers(ctx context.Context) ([]models.User, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM (
			SELECT DISTINCT ON (email) %s
			FROM users
			ORDER BY email, created_at DESC, id DESC
		) current_users
		ORDER BY id ASC
	`, userColumns, userColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, unavailable("query current users", err)
	}
	defer rows.Close()

	users := []models.User{}
	for rows.Next() {
		user, err := r.scanUser(rows)
		if err != nil {
			return nil, unavailable("scan user", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate users", err)
	}

	return users, nil
}

// UpdateTokens stores refreshed credentials for a user instance.
func (r *UsersRepository) UpdateTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	query := `
		UPDATE users
		SET access_token = $1,
		    refresh_token = $2
		WHERE id = $3
	`

	access, err := r.tokens.Encrypt(accessToken)
	if err != nil {
		return err
	}
	refresh, err := r.tokens.Encrypt(refreshToken)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, query, access, refresh, userID)
	if err != nil {
		return unavailable("update tokens", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return unavailable("update tokens", err)
	}
	if affected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// scanUser decrypts the stored tokens. Tokens come as a pair; if either is
// missing or unreadable the user is reported as unlinked.
func (r *UsersRepository) scanUser(row rowScanner) (*models.User, error) {
	var user models.User
	var name, access, refresh sql.NullString

	if err := row.Scan(&user.ID, &name, &user.Email, &access, &refresh, &user.CreatedAt); err != nil {
		return nil, err
	}
	user.Name = name.String

	accessToken := r.decryptColumn(user.ID, "access_token", access)
	refreshToken := r.decryptColumn(user.ID, "refresh_token", refresh)
	if accessToken != nil && refreshToken != nil {
		user.AccessToken = accessToken
		user.RefreshToken = refreshToken
	}
	return &user, nil
}

func (r *UsersRepository) decryptColumn(userID int64, column string, value sql.NullString) *string {
	if !value.Valid || value.String == "" {
		return nil
	}
	plain, err := r.tokens.Decrypt(value.String)
	if err != nil {
		r.logger.Warn("Stored token unreadable, treating user as unlinked",
			zap.Int64("user_id", userID),
			zap.String("column", column),
			zap.Error(err),
		)
		return nil
	}
	return &plain
}
