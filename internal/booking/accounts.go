package booking

import (
	"context"
	"errors"
	"strings"

	"github.com/iliyamo/court-booking/internal/model"
	"github.com/iliyamo/court-booking/internal/repository"
	"github.com/iliyamo/court-booking/internal/utils"
)

// RegisterRequest carries a self-registration.  An empty Role means member.
type RegisterRequest struct {
	Account  string
	Password string
	Name     string
	Role     string
	Phone    string
}

// Register creates an account with full credit.  Administrators are
// provisioned out of band and cannot register themselves.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (*model.User, error) {
	account := strings.TrimSpace(req.Account)
	if account == "" {
		return nil, invalid("account", "is required")
	}
	if len(account) > 64 {
		return nil, invalid("account", "must be at most 64 characters")
	}
	if len(req.Password) < 6 {
		return nil, invalid("password", "must be at least 6 characters")
	}
	if len(req.Password) > utils.MaxPasswordBytes {
		return nil, invalid("password", "must be at most 72 bytes")
	}
	role := model.RoleMember
	if strings.TrimSpace(req.Role) != "" {
		r, ok := model.ParseRole(req.Role)
		if !ok {
			return nil, invalid("role", "must be member or instructor")
		}
		role = r
	}
	if role == model.RoleAdministrator {
		return nil, ErrRoleNotAllowed
	}
	hash, err := utils.HashPassword(req.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = account
	}
	u := &model.User{
		Account:      account,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
		Phone:        strings.TrimSpace(req.Phone),
		CreditScore:  MaxCredit,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAccountExists
		}
		return nil, err
	}
	return u, nil
}

// Authenticate checks a password and returns the account.  Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(ctx context.Context, account, password string) (*model.User, error) {
	account = strings.TrimSpace(account)
	if account == "" || password == "" {
		return nil, invalid("credentials", "account and password are required")
	}
	u, err := s.users.GetByAccount(ctx, account)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Profile returns the stored user.
func (s *Service) Profile(ctx context.Context, account string) (*model.User, error) {
	u, err := s.users.GetByAccount(ctx, strings.TrimSpace(account))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}
