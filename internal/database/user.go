package database

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/gorm"
)

// Role decides which parts of the API an account may use.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

// ErrUsernameTaken is returned when creating a user whose username already exists.
var ErrUsernameTaken = errors.New("username already exists")

// User is an account that can log in.
// The password hash never leaves the server.
type User struct {
	ID        uint      `gorm:"primaryKey"`
	Username  string    `gorm:"size:50;uniqueIndex;not null"`
	Password  string    `gorm:"column:password;size:255;not null" json:"-"`
	Role      Role      `gorm:"size:16;not null;default:user;index"`
	CreatedAt time.Time
}

// IsAdmin reports whether the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func (c *Client) CreateUser(ctx context.Context, username, passwordHash string, role Role) (*User, error) {
	user := User{
		Username: username,
		Password: passwordHash,
		Role:     role,
	}
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrUsernameTaken
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		// the unique index catches a concurrent insert that passed the check
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUsernameTaken
		}
		if !errors.Is(err, ErrUsernameTaken) {
			log.Error("failed to create user", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByID(ctx context.Context, id uint) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by ID", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

func (c *Client) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	var user User
	if err := c.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("failed to get user by username", "error", err)
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers returns all non-admin users, newest first. Password hashes are not loaded.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.db.WithContext(ctx).
		Select("id", "username", "role", "created_at").
		Where("role <> ?", RoleAdmin).
		Order("created_at DESC").
		Order("id DESC").
		Find(&users).Error; err != nil {
		log.Error("failed to list users", "error", err)
		return nil, err
	}
	return users, nil
}

// DeleteUser removes a non-admin user and its record assignments.
// It returns false if the user does not exist or is an admin.
func (c *Client) DeleteUser(ctx context.Context, id uint) (bool, error) {
	var deleted bool
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user User
		if err := tx.Select("id", "role").First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if user.IsAdmin() {
			return nil
		}
		if err := tx.Where("user_id = ?", id).Delete(&UserAccess{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(&User{}, id).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		log.Error("failed to delete user", "error", err)
		return false, err
	}
	return deleted, nil
}

// AdminExists reports whether at least one admin account exists.
func (c *Client) AdminExists(ctx context.Context) (bool, error) {
	var count int64
	if err := c.db.WithContext(ctx).Model(&User{}).Where("role = ?", RoleAdmin).Count(&count).Error; err != nil {
		log.Error("failed to count admins", "error", err)
		return false, err
	}
	return count > 0, nil
}
