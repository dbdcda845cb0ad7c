package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"agenda-tracker/domain"
)

var ErrRemote = errors.New("remote backend error")

// RemoteClient talks to a spreadsheet script exposing one POST endpoint.
// Requests are tagged by an action field.
type RemoteClient struct {
	url    string
	client *http.Client
}

func NewRemoteClient(url string, client *http.Client) *RemoteClient {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteClient{url: url, client: client}
}

type remoteTask struct {
	ID            string `json:"id"`
	Sheet         string `json:"sheet"`
	RowIndex      int    `json:"rowIndex"`
	Work          string `json:"work"`
	MeetingNo     string `json:"meetingNo"`
	RemarkDate    string `json:"remarkDate"`
	Subject       string `json:"subject"`
	ECM           string `json:"ecm"`
	Note          string `json:"note"`
	Urgent        bool   `json:"urgent"`
	DueDate       string `json:"dueDate"`
	Responsible   string `json:"responsible"`
	CurrentHolder string `json:"currentHolder"`
	Status        string `json:"status"`
	AssignedTo    string `json:"assignedTo"`
	Remark        string `json:"remark"`
	ForwardedBy   string `json:"forwardedBy"`
	Order         int    `json:"order"`
	Timestamp     string `json:"timestamp"`
}

func (t remoteTask) revision() domain.Revision {
	r := domain.Revision{
		ID:            t.ID,
		Sheet:         t.Sheet,
		RowIndex:      t.RowIndex,
		Work:          t.Work,
		MeetingNo:     t.MeetingNo,
		RemarkDate:    t.RemarkDate,
		Subject:       t.Subject,
		ECM:           t.ECM,
		Note:          t.Note,
		Urgent:        t.Urgent,
		DueDate:       t.DueDate,
		Responsible:   t.Responsible,
		CurrentHolder: t.CurrentHolder,
		Status:        t.Status,
		AssignedTo:    t.AssignedTo,
		Remark:        t.Remark,
		ForwardedBy:   t.ForwardedBy,
		Order:         t.Order,
	}
	if ts, err := time.Parse(time.RFC3339, t.Timestamp); err == nil {
		r.Timestamp = ts
	}
	return r
}

type remoteRequest struct {
	Action          string `json:"action"`
	SheetName       string `json:"sheetName,omitempty"`
	RowIndex        int    `json:"rowIndex,omitempty"`
	Remark          string `json:"remark,omitempty"`
	NextUserName    string `json:"nextUserName,omitempty"`
	CurrentUserName string `json:"currentUserName,omitempty"`
	ActionType      string `json:"actionType,omitempty"`
	UserID          string `json:"userId,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	PasswordHash    string `json:"passwordHash,omitempty"`
}

type remoteResult struct {
	Success bool         `json:"success"`
	NewID   string       `json:"newId"`
	Error   string       `json:"error"`
	User    *domain.User `json:"user"`
}

func (c *RemoteClient) call(ctx context.Context, req remoteRequest, out any) error {
	body, err := sonic.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemote, req.Action, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRemote, req.Action, err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%w: %s: status %d", ErrRemote, req.Action, resp.StatusCode)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %s: decode: %v", ErrRemote, req.Action, err)
	}
	return nil
}

func (c *RemoteClient) FetchRevisions(ctx context.Context) ([]domain.Revision, error) {
	var tasks []remoteTask
	if err := c.call(ctx, remoteRequest{Action: "getTasks"}, &tasks); err != nil {
		return nil, err
	}
	revs := make([]domain.Revision, 0, len(tasks))
	for _, t := range tasks {
		revs = append(revs, t.revision())
	}
	return revs, nil
}

func (c *RemoteClient) FetchUsers(ctx context.Context) ([]domain.User, error) {
	users := []domain.User{}
	if err := c.call(ctx, remoteRequest{Action: "getUsers"}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// ForwardTask delegates the append to the remote script. Transition checks
// run locally before the call.
func (c *RemoteClient) ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error) {
	var res remoteResult
	err := c.call(ctx, remoteRequest{
		Action:          "forwardTask",
		SheetName:       req.Sheet,
		RowIndex:        req.RowIndex,
		Remark:          req.Remark,
		NextUserName:    req.NextHolder,
		CurrentUserName: req.Actor,
		ActionType:      string(req.Action),
	}, &res)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("%w: forwardTask: %s", ErrRemote, res.Error)
	}
	return res.NewID, nil
}

func (c *RemoteClient) RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	var res remoteResult
	if err := c.call(ctx, remoteRequest{Action: "registerUser", UserID: userID, DisplayName: displayName}, &res); err != nil {
		return domain.User{}, err
	}
	if !res.Success {
		return domain.User{}, fmt.Errorf("%w: registerUser: %s", ErrRemote, res.Error)
	}
	if res.User != nil {
		return *res.User, nil
	}
	return domain.NewUser(userID, displayName), nil
}

func (c *RemoteClient) SetPassword(ctx context.Context, userID, passwordHash string) error {
	var res remoteResult
	if err := c.call(ctx, remoteRequest{Action: "setPassword", UserID: userID, PasswordHash: passwordHash}, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("%w: setPassword: %s", ErrRemote, res.Error)
	}
	return nil
}
