package database

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UserAccess assigns a data record to a user.
type UserAccess struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"not null;uniqueIndex:idx_user_access_pair"`
	RecordID  uint       `gorm:"not null;uniqueIndex:idx_user_access_pair;index"`
	User      User       `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	Record    DataRecord `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	CreatedAt time.Time
}

func (UserAccess) TableName() string {
	return "user_access"
}

// assignRecord inserts one assignment row per distinct user id.
// Unknown and admin user ids fail the whole call with an *UnknownUsersError.
func assignRecord(tx *gorm.DB, recordID uint, userIDs []uint) error {
	userIDs = lo.Uniq(userIDs)
	if len(userIDs) == 0 {
		return nil
	}

	var existing []uint
	if err := tx.Model(&User{}).Where("id IN ? AND role <> ?", userIDs, RoleAdmin).Pluck("id", &existing).Error; err != nil {
		return err
	}
	if missing := lo.Without(userIDs, existing...); len(missing) > 0 {
		return &UnknownUsersError{IDs: missing}
	}

	rows := lo.Map(userIDs, func(userID uint, _ int) UserAccess {
		return UserAccess{UserID: userID, RecordID: recordID}
	})
	return tx.Omit(clause.Associations).Create(&rows).Error
}

// GetRecordAssignees returns the users assigned to each of the given records,
// keyed by record id. Only id and username are populated.
func (c *Client) GetRecordAssignees(ctx context.Context, recordIDs []uint) (map[uint][]User, error) {
	assignees := make(map[uint][]User, len(recordIDs))
	if len(recordIDs) == 0 {
		return assignees, nil
	}

	var rows []struct {
		RecordID uint
		UserID   uint
		Username string
	}
	if err := c.db.WithContext(ctx).
		Table("user_access").
		Select("user_access.record_id, users.id AS user_id, users.username").
		Joins("JOIN users ON users.id = user_access.user_id").
		Where("user_access.record_id IN ?", recordIDs).
		Order("user_access.id").
		Scan(&rows).Error; err != nil {
		log.Error("failed to get record assignees", "error", err)
		return nil, err
	}

	for _, row := range rows {
		assignees[row.RecordID] = append(assignees[row.RecordID], User{ID: row.UserID, Username: row.Username})
	}
	return assignees, nil
}
