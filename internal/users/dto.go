package users

import (
	"strings"

	"github.com/angelmondragon/phoenix-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/phoenix-backend/pkg/db/types"
	"github.com/angelmondragon/phoenix-backend/pkg/enums"
)

// CreateUserDTO holds the data required by the repo to persist a new user.
type CreateUserDTO struct {
	Email         string
	PasswordHash  string
	FirstName     string
	LastName      string
	Company       *string
	Phone         *string
	Roles         []string
	AuthMethod    enums.AuthMethod
	EmailVerified bool
}

func (c CreateUserDTO) ToModel() *models.User {
	roles := dbtypes.StringList(c.Roles)
	if len(roles) == 0 {
		roles = dbtypes.StringList{string(enums.UserRoleClient)}
	}
	method := c.AuthMethod
	if method == "" {
		method = enums.AuthMethodPassword
	}
	return &models.User{
		Email:         NormalizeEmail(c.Email),
		PasswordHash:  c.PasswordHash,
		FirstName:     strings.TrimSpace(c.FirstName),
		LastName:      strings.TrimSpace(c.LastName),
		Company:       c.Company,
		Phone:         c.Phone,
		Roles:         roles,
		AuthMethod:    string(method),
		EmailVerified: c.EmailVerified,
		IsActive:      true,
	}
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
