package parts

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

type memoryRepo struct {
	parts  map[int64]Part
	nextID int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{parts: make(map[int64]Part)}
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Part, int, error) {
	var out []Part
	for _, p := range r.parts {
		if filters.Category != "" && p.Category != filters.Category {
			continue
		}
		if filters.Search != "" && !strings.Contains(strings.ToLower(p.Name), strings.ToLower(filters.Search)) {
			continue
		}
		if filters.IsActive != nil && p.IsActive != *filters.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Part, error) {
	p, ok := r.parts[id]
	if !ok {
		return Part{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepo) Create(ctx context.Context, part Part) (Part, error) {
	r.nextID++
	part.ID = r.nextID
	part.CreatedAt = time.Now()
	part.UpdatedAt = part.CreatedAt
	r.parts[part.ID] = part
	return part, nil
}

func (r *memoryRepo) Update(ctx context.Context, id int64, part Part) error {
	if _, ok := r.parts[id]; !ok {
		return shared.ErrNotFound
	}
	part.ID = id
	r.parts[id] = part
	return nil
}

func (r *memoryRepo) Deactivate(ctx context.Context, id int64) error {
	p, ok := r.parts[id]
	if !ok {
		return shared.ErrNotFound
	}
	p.IsActive = false
	r.parts[id] = p
	return nil
}

func TestCreateRequiresSKUAndName(t *testing.T) {
	svc := NewService(newMemoryRepo())
	ctx := context.Background()

	_, err := svc.Create(ctx, Part{Name: "Brake Pad"})
	require.Error(t, err)

	_, err = svc.Create(ctx, Part{SKU: "BP-100"})
	require.Error(t, err)

	_, err = svc.Create(ctx, Part{SKU: "BP-100", Name: "Brake Pad", SellingPrice: -1})
	require.Error(t, err)

	part, err := svc.Create(ctx, Part{SKU: "BP-100", Name: "Brake Pad", BuyingPrice: 12, SellingPrice: 18, IsActive: true})
	require.NoError(t, err)
	require.NotZero(t, part.ID)
}

func TestDeactivateKeepsRecord(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	ctx := context.Background()

	part, err := svc.Create(ctx, Part{SKU: "OF-7", Name: "Oil Filter", IsActive: true})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(ctx, part.ID))

	got, err := svc.Get(ctx, part.ID)
	require.NoError(t, err)
	require.False(t, got.IsActive)
}

func TestGetUnknownPart(t *testing.T) {
	svc := NewService(newMemoryRepo())
	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Get(context.Background(), 0)
	require.Error(t, err)
}
