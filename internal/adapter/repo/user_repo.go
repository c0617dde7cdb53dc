package repo

import (
	"context"
	"fmt"
	"strings"

	"airemaster/internal/domain"
	"airemaster/internal/infra"
	"airemaster/internal/sqlinline"
)

// UserRepository implements domain.UserRepository.
type UserRepository struct {
	sql infra.SQLExecutor
}

func NewUserRepository(sql infra.SQLExecutor) *UserRepository {
	return &UserRepository{sql: sql}
}

// FindByAccessCode resolves an access code to its user.
func (r *UserRepository) FindByAccessCode(ctx context.Context, code string) (*domain.User, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, domain.ErrUnauthorized
	}
	var u domain.User
	err := r.sql.QueryRow(ctx, sqlinline.QSelectUserByAccessCode, code).Scan(&u.ID, &u.AccessCode, &u.Name, &u.CreatedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, fmt.Errorf("access code: %w", domain.ErrNotFound)
		}
		return nil, err
	}
	return &u, nil
}

var _ domain.UserRepository = (*UserRepository)(nil)
