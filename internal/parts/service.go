package parts

import (
	"context"
	"errors"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Part, error) {
	if id <= 0 {
		return Part{}, errors.New("invalid part ID")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, part Part) (Part, error) {
	if err := s.validate(part); err != nil {
		return Part{}, err
	}
	return s.repo.Create(ctx, part)
}

func (s *Service) Update(ctx context.Context, id int64, part Part) error {
	if id <= 0 {
		return errors.New("invalid part ID")
	}
	if err := s.validate(part); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, part)
}

func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if id <= 0 {
		return errors.New("invalid part ID")
	}
	return s.repo.Deactivate(ctx, id)
}
