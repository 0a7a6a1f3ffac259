package models

import "github.com/google/uuid"

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

type User struct {
	BaseModel
	Email         string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash  string     `json:"-" gorm:"type:text;not null;default:''"`
	FirstName     string     `json:"firstName" gorm:"type:varchar(100);not null;default:''"`
	LastName      string     `json:"lastName" gorm:"type:varchar(100);not null;default:''"`
	Image         *string    `json:"image,omitempty" gorm:"type:text"`
	FavoriteStore *string    `json:"favoriteStore,omitempty" gorm:"type:varchar(255)"`
	DormitoryID   *uuid.UUID `json:"dormitoryID" gorm:"type:uuid;index"`
	Role          UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'user'"`

	Dormitory *Location `json:"dormitory,omitempty" gorm:"foreignKey:DormitoryID"`
	Baskets   []Basket  `json:"-" gorm:"foreignKey:UserID"`
}

// ProfileComplete reports whether the user has picked a dormitory.
func (u *User) ProfileComplete() bool {
	return u.DormitoryID != nil
}

func (u *User) DisplayName() string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		return u.Email
	}
	return name
}
