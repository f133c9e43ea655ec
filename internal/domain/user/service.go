package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cnics/mireview/internal/platform/apperr"
	"github.com/cnics/mireview/internal/platform/auth"
)

type Service struct {
	users  Repository
	logger zerolog.Logger
}

func NewService(users Repository, logger zerolog.Logger) *Service {
	return &Service{users: users, logger: logger}
}

func translate(err error, id interface{}) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return apperr.NotFoundf("user %v not found", id)
	case errors.Is(err, ErrLoginTaken):
		return apperr.Validation(ErrLoginTaken.Error())
	}
	return err
}

// Create adds a user. reviewer_flag defaults to true when omitted.
func (s *Service) Create(ctx context.Context, req *CreateRequest) (*User, error) {
	u := &User{
		Username:      strings.TrimSpace(req.Username),
		Login:         strings.TrimSpace(req.Login),
		FirstName:     strings.TrimSpace(req.FirstName),
		LastName:      strings.TrimSpace(req.LastName),
		Site:          strings.TrimSpace(req.Site),
		Admin:         req.Admin,
		Uploader:      req.Uploader,
		Reviewer:      true,
		ThirdReviewer: req.ThirdReviewer,
	}
	if req.Reviewer != nil {
		u.Reviewer = *req.Reviewer
	}
	if err := checkRequired(u); err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, translate(err, u.Login)
	}
	s.logger.Info().Int64("user_id", u.ID).Str("login", u.Login).Msg("user created")
	return u, nil
}

func checkRequired(u *User) error {
	var missing []string
	if u.Username == "" {
		missing = append(missing, "username")
	}
	if u.Login == "" {
		missing = append(missing, "login")
	}
	if u.Site == "" {
		missing = append(missing, "site")
	}
	if len(missing) > 0 {
		return apperr.Validation(fmt.Sprintf("%s required", strings.Join(missing, ", ")))
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id int64) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	return u, nil
}

func (s *Service) Update(ctx context.Context, id int64, req *UpdateRequest) (*User, error) {
	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, id)
	}
	req.apply(u)
	if err := checkRequired(u); err != nil {
		return nil, err
	}
	if err := s.users.Update(ctx, u); err != nil {
		return nil, translate(err, id)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*User, int, error) {
	return s.users.List(ctx, limit, offset)
}

func (s *Service) Reviewers(ctx context.Context, third bool) ([]Reviewer, error) {
	users, err := s.users.ListWithFlag(ctx, third)
	if err != nil {
		return nil, err
	}
	out := make([]Reviewer, 0, len(users))
	for _, u := range users {
		out = append(out, Reviewer{ID: u.ID, DisplayName: fmt.Sprintf("%s (%d)", u.Username, u.ID)})
	}
	return out, nil
}

// IdentityByLogin implements auth.IdentityStore.
func (s *Service) IdentityByLogin(ctx context.Context, login string) (*auth.Identity, error) {
	u, err := s.users.GetByLogin(ctx, login)
	if errors.Is(err, ErrNotFound) {
		return nil, auth.ErrUnknownIdentity
	}
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}

// IdentityByID resolves a user id to its identity, NotFound when absent.
func (s *Service) IdentityByID(ctx context.Context, id int64) (*auth.Identity, error) {
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return u.Identity(), nil
}
