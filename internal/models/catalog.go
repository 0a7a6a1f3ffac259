package models

type LocationType string

const (
	LocationTypeDormitory LocationType = "dormitory"
	LocationTypeMeetup    LocationType = "meetup"
)

type Location struct {
	BaseModel
	Name    string       `json:"name" gorm:"type:varchar(150);not null"`
	Type    LocationType `json:"type" gorm:"type:varchar(20);not null;default:'dormitory'"`
	Address string       `json:"address" gorm:"type:text;not null;default:''"`
}

type Shop struct {
	BaseModel
	Name      string  `json:"name" gorm:"type:varchar(150);not null"`
	LogoURL   *string `json:"logoURL,omitempty" gorm:"type:text"`
	MinAmount float64 `json:"minAmount" gorm:"not null;default:0"`
	IsActive  bool    `json:"isActive" gorm:"not null;default:true;index"`
}

type Banner struct {
	BaseModel
	Title    string  `json:"title" gorm:"type:varchar(255);not null"`
	ImageURL string  `json:"imageURL" gorm:"type:text;not null"`
	Link     *string `json:"link,omitempty" gorm:"type:text"`
	IsActive bool    `json:"isActive" gorm:"not null;default:true;index"`
	Priority int     `json:"priority" gorm:"not null;default:0"`
}
