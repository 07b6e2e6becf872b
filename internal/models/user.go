package models

import "time"

type UserRole string

const (
	UserRoleStudent UserRole = "STUDENT"
	UserRoleCreator UserRole = "CREATOR"
	UserRoleAdmin   UserRole = "ADMIN"
)

type User struct {
	BaseModel
	Name         *string  `json:"name,omitempty" gorm:"type:varchar(255)"`
	Email        string   `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash string   `json:"-" gorm:"type:text;not null"`
	Role         UserRole `json:"role" gorm:"type:varchar(20);not null;default:'STUDENT'"`

	// AuthToken is the opaque bearer token minted at login. It is replaced on
	// every login and cleared on password reset, which invalidates old sessions.
	AuthToken                *string    `json:"-" gorm:"type:varchar(64);uniqueIndex"`
	PasswordResetToken       *string    `json:"-" gorm:"type:varchar(64);index"`
	PasswordResetTokenExpiry *time.Time `json:"-"`

	AuthoredCourses []Course           `json:"-" gorm:"foreignKey:AuthorID"`
	Enrollments     []CourseEnrollment `json:"-" gorm:"foreignKey:UserID"`
}

// IsAdmin and HasAnyRole tolerate a nil receiver so that an anonymous
// caller (no identity resolved) is never granted a role by accident.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == UserRoleAdmin
}

func (u *User) HasAnyRole(roles ...UserRole) bool {
	if u == nil {
		return false
	}
	for _, role := range roles {
		if u.Role == role {
			return true
		}
	}
	return false
}
