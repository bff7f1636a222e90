package db

import (
	"fmt"

	"gorm.io/gorm"
)

// Migrate creates or updates every table and the raw-SQL extras gorm tags cannot express
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(AllModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	if err := CreateUserSearchIndexes(database); err != nil {
		return err
	}
	if database.Dialector.Name() == "postgres" {
		if err := CreateFriendRequestStatusCheck(database); err != nil {
			return err
		}
	}
	return nil
}

// CreateUserSearchIndexes - expression indexes for case-insensitive user search
func CreateUserSearchIndexes(database *gorm.DB) error {
	statements := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_display_name_lower ON users (LOWER(display_name))`,
		`CREATE INDEX IF NOT EXISTS idx_users_username_lower ON users (LOWER(username))`,
	}
	for _, stmt := range statements {
		if err := database.Exec(stmt).Error; err != nil {
			return fmt.Errorf("failed to create user search index: %w", err)
		}
	}
	return nil
}

// CreateFriendRequestStatusCheck restricts friend_requests.status to the known states
func CreateFriendRequestStatusCheck(database *gorm.DB) error {
	checkSQL := `
	DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'chk_friend_requests_status') THEN
			ALTER TABLE friend_requests
				ADD CONSTRAINT chk_friend_requests_status
				CHECK (status IN ('pending', 'accepted', 'rejected'));
		END IF;
	END
	$$;
	`
	if err := database.Exec(checkSQL).Error; err != nil {
		return fmt.Errorf("failed to create friend request status check: %w", err)
	}
	return nil
}
