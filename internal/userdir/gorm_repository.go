package userdir

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-dm/internal/chaterr"
)

// UserModel is the read side of the users table.
type UserModel struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"`
	FirstName string    `gorm:"type:varchar(100)"`
	LastName  string    `gorm:"type:varchar(100)"`
	PhotoURL  string    `gorm:"type:varchar(512)"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (UserModel) TableName() string { return "users" }

func (m *UserModel) toProfile() Profile {
	return Profile{ID: m.ID, FirstName: m.FirstName, LastName: m.LastName, PhotoURL: m.PhotoURL}
}

// GormRepository implements Source using GORM.
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) FindByIDs(ctx context.Context, ids []string) (map[string]Profile, error) {
	out := make(map[string]Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var rows []UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, chaterr.StoreUnavailable("load users", err)
	}
	for i := range rows {
		out[rows[i].ID] = rows[i].toProfile()
	}
	return out, nil
}

var _ Source = (*GormRepository)(nil)
