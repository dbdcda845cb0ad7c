package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"agenda-tracker/domain"
)

type revisionRow struct {
	RowIndex      int    `gorm:"primaryKey;autoIncrement"`
	ID            string `gorm:"column:revision_id;uniqueIndex;size:64"`
	Sheet         string `gorm:"uniqueIndex:idx_task_order,priority:1"`
	Work          string `gorm:"uniqueIndex:idx_task_order,priority:2"`
	MeetingNo     string `gorm:"uniqueIndex:idx_task_order,priority:3"`
	Subject       string `gorm:"uniqueIndex:idx_task_order,priority:4"`
	Order         int    `gorm:"column:revision_order;uniqueIndex:idx_task_order,priority:5"`
	RemarkDate    string
	ECM           string `gorm:"column:ecm"`
	Note          string
	Urgent        bool
	DueDate       string
	Responsible   string
	CurrentHolder string
	Status        string `gorm:"index"`
	AssignedTo    string
	Remark        string
	ForwardedBy   string
	Timestamp     time.Time
}

func (revisionRow) TableName() string { return "revisions" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:64"`
	Name         string
	NickName     string
	Role         string `gorm:"index"`
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (userRow) TableName() string { return "users" }

func fromRevisionRow(r revisionRow) domain.Revision {
	return domain.Revision{
		ID:            r.ID,
		Sheet:         r.Sheet,
		RowIndex:      r.RowIndex,
		Work:          r.Work,
		MeetingNo:     r.MeetingNo,
		RemarkDate:    r.RemarkDate,
		Subject:       r.Subject,
		ECM:           r.ECM,
		Note:          r.Note,
		Urgent:        r.Urgent,
		DueDate:       r.DueDate,
		Responsible:   r.Responsible,
		CurrentHolder: r.CurrentHolder,
		Status:        r.Status,
		AssignedTo:    r.AssignedTo,
		Remark:        r.Remark,
		ForwardedBy:   r.ForwardedBy,
		Order:         r.Order,
		Timestamp:     r.Timestamp,
	}
}

func toRevisionRow(r domain.Revision) revisionRow {
	return revisionRow{
		ID:            r.ID,
		Sheet:         r.Sheet,
		Work:          r.Work,
		MeetingNo:     r.MeetingNo,
		Subject:       r.Subject,
		Order:         r.Order,
		RemarkDate:    r.RemarkDate,
		ECM:           r.ECM,
		Note:          r.Note,
		Urgent:        r.Urgent,
		DueDate:       r.DueDate,
		Responsible:   r.Responsible,
		CurrentHolder: r.CurrentHolder,
		Status:        r.Status,
		AssignedTo:    r.AssignedTo,
		Remark:        r.Remark,
		ForwardedBy:   r.ForwardedBy,
		Timestamp:     r.Timestamp,
	}
}

func fromUserRow(u userRow) domain.User {
	return domain.User{ID: u.ID, Name: u.Name, NickName: u.NickName, Role: domain.Role(u.Role), PasswordHash: u.PasswordHash}
}

// SQLStore keeps revisions in a SQLite database. The autoincrement row index
// is the row reference handed to clients.
type SQLStore struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) and migrates the database at path.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.AutoMigrate(&revisionRow{}, &userRow{}); err != nil {
		return nil, fmt.Errorf("automigrate: %w", err)
	}
	return &SQLStore{db: db}, nil
}

func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLStore) FetchRevisions(ctx context.Context) ([]domain.Revision, error) {
	var rows []revisionRow
	if err := s.db.WithContext(ctx).Order("row_index asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	revs := make([]domain.Revision, 0, len(rows))
	for _, r := range rows {
		revs = append(revs, fromRevisionRow(r))
	}
	return revs, nil
}

func (s *SQLStore) FetchUsers(ctx context.Context) ([]domain.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	users := make([]domain.User, 0, len(rows))
	for _, u := range rows {
		users = append(users, fromUserRow(u))
	}
	return users, nil
}

// ForwardTask appends the next revision in one transaction. A concurrent
// forward that claimed the same order first makes this one stale.
func (s *SQLStore) ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error) {
	var newID string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row revisionRow
		if err := tx.Where("sheet = ? AND row_index = ?", req.Sheet, req.RowIndex).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s row %d", domain.ErrRowNotFound, req.Sheet, req.RowIndex)
			}
			return err
		}
		var history []revisionRow
		if err := tx.Where("sheet = ? AND work = ? AND meeting_no = ? AND subject = ?", row.Sheet, row.Work, row.MeetingNo, row.Subject).
			Order("revision_order asc").Find(&history).Error; err != nil {
			return err
		}
		revs := make([]domain.Revision, 0, len(history))
		for _, h := range history {
			revs = append(revs, fromRevisionRow(h))
		}
		next, err := appendRevision(revs, req)
		if err != nil {
			return err
		}
		out := toRevisionRow(next)
		if err := tx.Create(&out).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s row %d", domain.ErrStaleRevision, req.Sheet, req.RowIndex)
			}
			return err
		}
		newID = out.ID
		return nil
	})
	return newID, err
}

func (s *SQLStore) RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	var out domain.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row userRow
		err := tx.First(&row, "id = ?", userID).Error
		if err == nil {
			out = fromUserRow(row)
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		u := domain.NewUser(userID, displayName)
		row = userRow{ID: u.ID, Name: u.Name, Role: string(u.Role)}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		out = u
		return nil
	})
	return out, err
}

func (s *SQLStore) updateUser(ctx context.Context, userID, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&userRow{}).Where("id = ?", userID).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (s *SQLStore) SetPassword(ctx context.Context, userID, passwordHash string) error {
	return s.updateUser(ctx, userID, "password_hash", passwordHash)
}

func (s *SQLStore) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return s.updateUser(ctx, userID, "role", string(role))
}

func (s *SQLStore) PasswordHash(ctx context.Context, userID string) (string, error) {
	var row userRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", err
	}
	return row.PasswordHash, nil
}

// Import inserts revisions in input order and upserts users.
func (s *SQLStore) Import(ctx context.Context, revs []domain.Revision, users []domain.User) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			row := userRow{ID: u.ID, Name: u.Name, NickName: u.NickName, Role: string(u.Role), PasswordHash: u.PasswordHash}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "nick_name", "role", "password_hash", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("save user %s: %w", u.ID, err)
			}
		}
		for _, r := range revs {
			row := toRevisionRow(r)
			if err := tx.Create(&row).Error; err != nil {
				return fmt.Errorf("insert revision %s: %w", r.ID, err)
			}
		}
		return nil
	})
}
