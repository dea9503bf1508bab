package users

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/phoenix-backend/pkg/db"
	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/phoenix-backend/pkg/errors"
)

// Repository exposes user-related persistence operations. Lookups return
// (nil, nil) when nothing matches.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if user.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if user.PasswordHash == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "password hash is required")
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "email already registered")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create user")
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(r.db.WithContext(ctx).Where("email = ?", NormalizeEmail(email)))
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.first(r.db.WithContext(ctx).Where("id = ?", id))
}

// ListStaff returns active users holding at least one of roles.
func (r *Repository) ListStaff(ctx context.Context, roles []string) ([]models.User, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	cond := r.db.Session(&gorm.Session{NewDB: true})
	for i, role := range roles {
		like := "%\"" + role + "\"%"
		if i == 0 {
			cond = cond.Where("roles LIKE ?", like)
		} else {
			cond = cond.Or("roles LIKE ?", like)
		}
	}

	var candidates []models.User
	if err := query.Where(cond).Find(&candidates).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list staff")
	}

	staff := candidates[:0]
	for _, u := range candidates {
		if u.Roles.Intersects(roles) {
			staff = append(staff, u)
		}
	}
	return staff, nil
}

// CreateRefreshToken persists the digest of an issued refresh token.
func (r *Repository) CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error {
	token := &models.RefreshToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store refresh token")
	}
	return nil
}

func (r *Repository) first(query *gorm.DB) (*models.User, error) {
	var user models.User
	if err := query.First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load user")
	}
	return &user, nil
}
