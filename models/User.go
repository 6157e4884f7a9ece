package models

import (
	"encoding/json"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// User roles
const (
	RoleExplorer   = "explorer"
	RoleOperator   = "operator"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super_admin"
)

type User struct {
	gorm.Model
	FirstName           string         `json:"firstName"`
	LastName            string         `json:"lastName"`
	Email               string         `json:"email" gorm:"uniqueIndex"`
	PhoneNumber         string         `json:"phoneNumber" gorm:"index"`
	Password            string         `json:"-"`
	AvatarURL           string         `json:"avatarURL"`
	Bio                 string         `json:"bio"`
	CompanyName         string         `json:"companyName"` // operators only
	Languages           datatypes.JSON `json:"languages"`
	PushTokens          datatypes.JSON `json:"pushTokens"`
	AllowsNotifications *bool          `json:"allowsNotifications"`
	Role                string         `json:"role" gorm:"type:varchar(20);default:explorer;index"` // explorer, operator, admin, super_admin

	Experiences []Experience `json:"experiences,omitempty" gorm:"foreignKey:OperatorID"`
}

// PushTokenList decodes the jsonb push token column.
func (u *User) PushTokenList() []string {
	var tokens []string
	if u.PushTokens != nil {
		if err := json.Unmarshal(u.PushTokens, &tokens); err != nil {
			return nil
		}
	}
	return tokens
}
