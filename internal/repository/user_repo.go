package repository

import (
	"context"
	"fmt"
	"strings"

	"vallenar/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	// Upsert inserts u or, when the username exists, refreshes its role, PIN and password.
	Upsert(ctx context.Context, u *model.User) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	FindActiveByUsername(ctx context.Context, username string) (*model.User, error)
	// ListActiveByRoles returns active users holding any of roles, ordered by
	// role rank ascending then username, so PIN matching is deterministic.
	ListActiveByRoles(ctx context.Context, roles []model.Role) ([]model.User, error)
}

type userRepo struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepo{db: db} }

func (r *userRepo) Create(ctx context.Context, u *model.User) error {
	return classify(r.db.WithContext(ctx).Create(u).Error)
}

func (r *userRepo) Upsert(ctx context.Context, u *model.User) error {
	return classify(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "username"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "role", "access_pin", "password_hash", "location_id", "active", "updated_at"}),
	}).Create(u).Error)
}

func (r *userRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (r *userRepo) FindActiveByUsername(ctx context.Context, username string) (*model.User, error) {
	var u model.User
	// Accept login by username OR email (case-insensitive email match)
	err := r.db.WithContext(ctx).
		Where("(username = ? OR LOWER(email) = LOWER(?)) AND active = true", username, username).
		First(&u).Error
	if err != nil {
		return nil, classify(err)
	}
	return &u, nil
}

func (r *userRepo) ListActiveByRoles(ctx context.Context, roles []model.Role) ([]model.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	var users []model.User
	err := r.db.WithContext(ctx).
		Where("active = true AND role IN ? AND access_pin IS NOT NULL", roles).
		Order(clause.Expr{SQL: roleRankOrder()}).
		Order("username ASC").
		Find(&users).Error
	return users, classify(err)
}

// roleRankOrder renders a CASE expression that sorts by model.Role.Rank.
func roleRankOrder() string {
	var b strings.Builder
	b.WriteString("CASE role")
	for _, role := range model.AllRoles {
		fmt.Fprintf(&b, " WHEN '%s' THEN %d", role, role.Rank())
	}
	b.WriteString(" ELSE 99 END ASC")
	return b.String()
}
