package repository

import (
	"github.com/campuspoints/points-engine/internal/model"
)

type UserEntity struct {
	ID         int64  `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	Utorid     string `db:"utorid"     gorm:"column:utorid;not null;uniqueIndex"`
	Role       string `db:"role"       gorm:"column:role;not null;default:regular"`
	Balance    uint   `db:"balance"    gorm:"column:balance;not null;default:0"`
	Verified   bool   `db:"verified"   gorm:"column:verified;not null;default:false"`
	Suspicious bool   `db:"suspicious" gorm:"column:suspicious;not null;default:false"`
	Activated  bool   `db:"activated"  gorm:"column:activated;not null;default:true"`
}

func (UserEntity) TableName() string {
	return "users"
}

func toUserEntity(m *model.User) *UserEntity {
	if m == nil {
		return nil
	}
	return &UserEntity{
		ID:         m.ID,
		Utorid:     m.Utorid,
		Role:       string(m.Role),
		Balance:    m.Balance,
		Verified:   m.Verified,
		Suspicious: m.Suspicious,
		Activated:  m.Activated,
	}
}

func toUserModel(e *UserEntity) *model.User {
	if e == nil {
		return nil
	}
	return &model.User{
		ID:         e.ID,
		Utorid:     e.Utorid,
		Role:       model.Role(e.Role),
		Balance:    e.Balance,
		Verified:   e.Verified,
		Suspicious: e.Suspicious,
		Activated:  e.Activated,
	}
}

func toUserModels(entities []*UserEntity) []*model.User {
	if entities == nil {
		return nil
	}
	models := make([]*model.User, len(entities))
	for i, e := range entities {
		models[i] = toUserModel(e)
	}
	return models
}
