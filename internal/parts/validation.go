package parts

import (
	"fmt"
	"strings"

	"github.com/gearbox-erp/gearbox-erp/internal/shared"
)

func (s *Service) validate(p Part) error {
	if strings.TrimSpace(p.SKU) == "" {
		return fmt.Errorf("%w: part sku is required", shared.ErrInvalidInput)
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: part name is required", shared.ErrInvalidInput)
	}
	if p.BuyingPrice < 0 || p.SellingPrice < 0 {
		return fmt.Errorf("%w: part prices must be >= 0", shared.ErrInvalidInput)
	}
	return nil
}
