package user

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/portal/core"
)

var (
	// errors
	ErrNotFound           = errors.New("user not found")
	ErrEmailExists        = errors.New("a user with this email already exists")
	ErrUsernameExists     = errors.New("a user with this username already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		// GetUser returns the first user matching all set filter fields. GetFilter.Username also matches emails.
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// UpdateUser saves the set fields of usr; isActive is only saved when not nil.
		UpdateUser(ctx context.Context, usr User, isActive ...*bool) (User, error)
	}

	Service struct {
		repo Repository
		log  core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, log: logger}
}

func (svc *Service) CheckUniqueness(uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(context.Background(), uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		ID:        uuid.NewString(),
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Roles:     nu.Roles,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: core.CleanString(id)})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

// Authenticate returns the active user matching the credentials.
// Unknown users, inactive users & wrong passwords all return ErrInvalidCredentials.
func (svc *Service) Authenticate(ctx context.Context, creds LoginCredentials) (User, error) {
	usr, err := svc.GetByUsernameOrEmail(ctx, creds.Username)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return User{}, ErrInvalidCredentials
		}
		return User{}, err
	}
	if !usr.IsActive || usr.CheckPassword(creds.Password) != nil {
		return User{}, ErrInvalidCredentials
	}
	return usr, nil
}

func (svc *Service) SetPassword(ctx context.Context, sp SetUserPassword) error {
	usr := sp.usr
	if err := usr.SetPassword(sp.Password); err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err := svc.repo.UpdateUser(ctx, usr)
	return err
}

// SetLastLogin records a successful login. Failures are only logged.
func (svc *Service) SetLastLogin(ctx context.Context, usr User) User {
	usr.LastLogin = time.Now().UTC()
	updated, err := svc.repo.UpdateUser(ctx, usr)
	if err != nil {
		svc.log.Error(err.Error(), err, usr.Person())
		return usr
	}
	return updated
}
