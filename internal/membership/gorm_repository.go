package membership

import (
	"context"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

// GormRepository implements Guard directly against connection_requests.
type GormRepository struct {
	db *gorm.DB
}

// NewGormRepository creates a new GORM-backed membership repository.
func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

// IsConnected looks for an accepted request in either direction.
func (r *GormRepository) IsConnected(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&ConnectionRequestModel{}).
		Where("status = ?", StatusAccepted).
		Where(r.db.Where("from_user_id = ? AND to_user_id = ?", a, b).
			Or("from_user_id = ? AND to_user_id = ?", b, a)).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, chaterr.StoreUnavailable("check connection", err)
	}
	return count > 0, nil
}

var _ Guard = (*GormRepository)(nil)
