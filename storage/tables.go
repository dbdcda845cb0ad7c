package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"agenda-tracker/domain"
)

const (
	userPartition   = "user"
	maxAppendTries  = 5
	rowKeyWidth     = 8
	firstDataRowKey = 2
)

// TableStore keeps revisions in an Azure table partitioned by board and users
// in a second table.
type TableStore struct {
	revisions *aztables.Client
	users     *aztables.Client
}

// NewTableStore connects to the revision and user tables.
func NewTableStore(connStr, revisionsTable, usersTable string) (*TableStore, error) {
	opts := aztables.ClientOptions{ClientOptions: retryOptions(3, time.Minute*3, time.Second*15)}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &opts)
	if err != nil {
		return nil, err
	}
	return &TableStore{revisions: svc.NewClient(revisionsTable), users: svc.NewClient(usersTable)}, nil
}

type revisionEntity struct {
	aztables.Entity
	ID            string    `json:"RevisionId"`
	Work          string    `json:"Work"`
	MeetingNo     string    `json:"MeetingNo"`
	RemarkDate    string    `json:"RemarkDate"`
	Subject       string    `json:"Subject"`
	ECM           string    `json:"ECM"`
	Note          string    `json:"Note"`
	Urgent        bool      `json:"Urgent"`
	DueDate       string    `json:"DueDate"`
	Responsible   string    `json:"Responsible"`
	CurrentHolder string    `json:"CurrentHolder"`
	Status        string    `json:"Status"`
	AssignedTo    string    `json:"AssignedTo"`
	Remark        string    `json:"Remark"`
	ForwardedBy   string    `json:"ForwardedBy"`
	Order         int       `json:"Order"`
	CreatedAt     time.Time `json:"CreatedAt"`
}

type userEntity struct {
	aztables.Entity
	Name         string `json:"Name"`
	NickName     string `json:"NickName"`
	Role         string `json:"Role"`
	PasswordHash string `json:"PasswordHash,omitempty"`
}

func rowKey(row int) string {
	return fmt.Sprintf("%0*d", rowKeyWidth, row)
}

func toRevisionEntity(r domain.Revision) revisionEntity {
	return revisionEntity{
		Entity:        aztables.Entity{PartitionKey: r.Sheet, RowKey: rowKey(r.RowIndex)},
		ID:            r.ID,
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
		CreatedAt:     r.Timestamp,
	}
}

func decodeRevisionEntity(data []byte) (domain.Revision, error) {
	var ent revisionEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.Revision{}, err
	}
	row, err := strconv.Atoi(ent.RowKey)
	if err != nil {
		return domain.Revision{}, fmt.Errorf("row key %q: %w", ent.RowKey, err)
	}
	return domain.Revision{
		ID:            ent.ID,
		Sheet:         ent.PartitionKey,
		RowIndex:      row,
		Work:          ent.Work,
		MeetingNo:     ent.MeetingNo,
		RemarkDate:    ent.RemarkDate,
		Subject:       ent.Subject,
		ECM:           ent.ECM,
		Note:          ent.Note,
		Urgent:        ent.Urgent,
		DueDate:       ent.DueDate,
		Responsible:   ent.Responsible,
		CurrentHolder: ent.CurrentHolder,
		Status:        ent.Status,
		AssignedTo:    ent.AssignedTo,
		Remark:        ent.Remark,
		ForwardedBy:   ent.ForwardedBy,
		Order:         ent.Order,
		Timestamp:     ent.CreatedAt,
	}, nil
}

func decodeUserEntity(data []byte) (domain.User, error) {
	var ent userEntity
	if err := sonic.Unmarshal(data, &ent); err != nil {
		return domain.User{}, err
	}
	return domain.User{
		ID:           ent.RowKey,
		Name:         ent.Name,
		NickName:     ent.NickName,
		Role:         domain.Role(ent.Role),
		PasswordHash: ent.PasswordHash,
	}, nil
}

func (s *TableStore) list(ctx context.Context, client *aztables.Client, filter string, fn func([]byte) error) error {
	var opts *aztables.ListEntitiesOptions
	if filter != "" {
		opts = &aztables.ListEntitiesOptions{Filter: &filter}
	}
	pager := client.NewListEntitiesPager(opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, e := range resp.Entities {
			if err := fn(e); err != nil {
				return err
			}
		}
	}
	return nil
}

// FetchRevisions lists every revision of every board.
func (s *TableStore) FetchRevisions(ctx context.Context) ([]domain.Revision, error) {
	revs := []domain.Revision{}
	err := s.list(ctx, s.revisions, "", func(data []byte) error {
		r, err := decodeRevisionEntity(data)
		if err == nil {
			revs = append(revs, r)
		}
		return err
	})
	return revs, err
}

func (s *TableStore) fetchSheet(ctx context.Context, sheet string) ([]domain.Revision, error) {
	revs := []domain.Revision{}
	err := s.list(ctx, s.revisions, "PartitionKey eq '"+sheet+"'", func(data []byte) error {
		r, err := decodeRevisionEntity(data)
		if err == nil {
			revs = append(revs, r)
		}
		return err
	})
	return revs, err
}

func (s *TableStore) FetchUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	err := s.list(ctx, s.users, "PartitionKey eq '"+userPartition+"'", func(data []byte) error {
		u, err := decodeUserEntity(data)
		if err == nil {
			users = append(users, u)
		}
		return err
	})
	return users, err
}

// ForwardTask appends the next revision under a fresh row key. A concurrent
// append on the same row key surfaces as a conflict and is retried against a
// fresh read of the board.
func (s *TableStore) ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error) {
	for attempt := 1; ; attempt++ {
		revs, err := s.fetchSheet(ctx, req.Sheet)
		if err != nil {
			return "", err
		}
		next, err := appendRevision(revs, req)
		if err != nil {
			return "", err
		}
		next.RowIndex = nextRow(revs)
		payload, err := sonic.Marshal(toRevisionEntity(next))
		if err != nil {
			return "", err
		}
		_, err = s.revisions.AddEntity(ctx, payload, nil)
		if err == nil {
			return next.ID, nil
		}
		if !isStatus(err, http.StatusConflict) || attempt >= maxAppendTries {
			return "", err
		}
		log.WithFields(log.Fields{"sheet": req.Sheet, "row": next.RowIndex, "attempt": attempt}).Debug("row key taken, retrying append")
	}
}

func nextRow(revs []domain.Revision) int {
	row := firstDataRowKey - 1
	for _, r := range revs {
		if r.RowIndex > row {
			row = r.RowIndex
		}
	}
	return row + 1
}

func (s *TableStore) getUser(ctx context.Context, userID string) (domain.User, error) {
	ent, err := s.users.GetEntity(ctx, userPartition, userID, nil)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return domain.User{}, ErrUserNotFound
		}
		return domain.User{}, err
	}
	return decodeUserEntity(ent.Value)
}

// RegisterUser inserts userID with the default role unless it already exists.
func (s *TableStore) RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	u, err := s.getUser(ctx, userID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return domain.User{}, err
	}
	u = domain.NewUser(userID, displayName)
	payload, err := sonic.Marshal(userEntity{
		Entity: aztables.Entity{PartitionKey: userPartition, RowKey: userID},
		Name:   u.Name,
		Role:   string(u.Role),
	})
	if err != nil {
		return domain.User{}, err
	}
	if _, err := s.users.AddEntity(ctx, payload, nil); err != nil {
		if isStatus(err, http.StatusConflict) {
			return s.getUser(ctx, userID)
		}
		return domain.User{}, err
	}
	return u, nil
}

func (s *TableStore) mergeUser(ctx context.Context, userID string, fields map[string]any) error {
	fields["PartitionKey"] = userPartition
	fields["RowKey"] = userID
	payload, err := sonic.Marshal(fields)
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.users.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	if isStatus(err, http.StatusNotFound) {
		return ErrUserNotFound
	}
	return err
}

func (s *TableStore) SetPassword(ctx context.Context, userID, passwordHash string) error {
	return s.mergeUser(ctx, userID, map[string]any{"PasswordHash": passwordHash})
}

func (s *TableStore) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return s.mergeUser(ctx, userID, map[string]any{"Role": string(role)})
}

func (s *TableStore) PasswordHash(ctx context.Context, userID string) (string, error) {
	u, err := s.getUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return u.PasswordHash, nil
}

// Import upserts users and appends revisions after the existing rows of each
// board.
func (s *TableStore) Import(ctx context.Context, revs []domain.Revision, users []domain.User) error {
	for _, u := range users {
		payload, err := sonic.Marshal(userEntity{
			Entity:       aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
			Name:         u.Name,
			NickName:     u.NickName,
			Role:         string(u.Role),
			PasswordHash: u.PasswordHash,
		})
		if err != nil {
			return err
		}
		if _, err := s.users.UpsertEntity(ctx, payload, nil); err != nil {
			return fmt.Errorf("upsert user %s: %w", u.ID, err)
		}
	}

	rows := map[string]int{}
	for _, r := range revs {
		if _, ok := rows[r.Sheet]; !ok {
			existing, err := s.fetchSheet(ctx, r.Sheet)
			if err != nil {
				return err
			}
			rows[r.Sheet] = nextRow(existing)
		}
		r.RowIndex = rows[r.Sheet]
		rows[r.Sheet]++
		payload, err := sonic.Marshal(toRevisionEntity(r))
		if err != nil {
			return err
		}
		if _, err := s.revisions.UpsertEntity(ctx, payload, nil); err != nil {
			return fmt.Errorf("upsert revision %s: %w", r.ID, err)
		}
	}
	return nil
}
