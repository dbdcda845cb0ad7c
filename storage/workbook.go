package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"agenda-tracker/domain"
)

const UsersSheet = "Users"

var revisionHeader = []any{
	"ID", "Work", "MeetingNo", "RemarkDate", "Subject", "ECM", "Note", "Urgent", "DueDate",
	"Responsible", "CurrentHolder", "Status", "AssignedTo", "Remark", "ForwardedBy", "Order", "Timestamp",
}

var userHeader = []any{"ID", "Name", "NickName", "Role", "PasswordHash"}

// Column positions within the Users sheet, 1-based.
const (
	userRoleColumn     = 4
	userPasswordColumn = 5
)

// Workbook stores revisions in an .xlsx file with one sheet per board and a
// Users sheet. The spreadsheet row number is the row reference. The file is
// reopened on every call so edits made by hand are picked up.
type Workbook struct {
	mu     sync.Mutex
	path   string
	boards []string
}

// OpenWorkbook uses the workbook at path, creating an empty one when missing.
func OpenWorkbook(path string, boards []string) (*Workbook, error) {
	w := &Workbook{path: path, boards: boards}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := w.create(); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workbook) create() error {
	f := excelize.NewFile()
	defer f.Close()
	for _, sheet := range append(append([]string{}, w.boards...), UsersSheet) {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
		header := revisionHeader
		if sheet == UsersSheet {
			header = userHeader
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}
	return f.SaveAs(w.path)
}

func (w *Workbook) open() (*excelize.File, error) {
	f, err := excelize.OpenFile(w.path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", w.path, err)
	}
	return f, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func parseRevisionRow(sheet string, rowNum int, row []string) (domain.Revision, bool) {
	if cell(row, 0) == "" && cell(row, 4) == "" {
		return domain.Revision{}, false
	}
	r := domain.Revision{
		ID:            cell(row, 0),
		Sheet:         sheet,
		RowIndex:      rowNum,
		Work:          cell(row, 1),
		MeetingNo:     cell(row, 2),
		RemarkDate:    cell(row, 3),
		Subject:       cell(row, 4),
		ECM:           cell(row, 5),
		Note:          cell(row, 6),
		DueDate:       cell(row, 8),
		Responsible:   cell(row, 9),
		CurrentHolder: cell(row, 10),
		Status:        cell(row, 11),
		AssignedTo:    cell(row, 12),
		Remark:        cell(row, 13),
		ForwardedBy:   cell(row, 14),
	}
	if r.ID == "" {
		r.ID = sheet + "-" + strconv.Itoa(rowNum)
	}
	r.Urgent, _ = strconv.ParseBool(cell(row, 7))
	r.Order, _ = strconv.Atoi(cell(row, 15))
	if ts := cell(row, 16); ts != "" {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			r.Timestamp = t
		}
	}
	return r, true
}

func revisionCells(r domain.Revision) []any {
	ts := ""
	if !r.Timestamp.IsZero() {
		ts = r.Timestamp.UTC().Format(time.RFC3339)
	}
	return []any{
		r.ID, r.Work, r.MeetingNo, r.RemarkDate, r.Subject, r.ECM, r.Note, r.Urgent, r.DueDate,
		r.Responsible, r.CurrentHolder, r.Status, r.AssignedTo, r.Remark, r.ForwardedBy, r.Order, ts,
	}
}

func readSheet(f *excelize.File, sheet string) ([]domain.Revision, int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, 0, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	revs := []domain.Revision{}
	for i := 1; i < len(rows); i++ {
		if r, ok := parseRevisionRow(sheet, i+1, rows[i]); ok {
			revs = append(revs, r)
		}
	}
	return revs, len(rows), nil
}

func readUsers(f *excelize.File) ([]domain.User, map[string]int, error) {
	rows, err := f.GetRows(UsersSheet)
	if err != nil {
		return nil, nil, fmt.Errorf("read sheet %s: %w", UsersSheet, err)
	}
	users := []domain.User{}
	index := map[string]int{}
	for i := 1; i < len(rows); i++ {
		id := cell(rows[i], 0)
		if id == "" {
			continue
		}
		index[id] = i + 1
		users = append(users, domain.User{
			ID:           id,
			Name:         cell(rows[i], 1),
			NickName:     cell(rows[i], 2),
			Role:         domain.Role(cell(rows[i], 3)),
			PasswordHash: cell(rows[i], 4),
		})
	}
	return users, index, nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	addr, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, addr, &values)
}

func (w *Workbook) FetchRevisions(ctx context.Context) ([]domain.Revision, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	revs := []domain.Revision{}
	for _, sheet := range w.boards {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		list, _, err := readSheet(f, sheet)
		if err != nil {
			return nil, err
		}
		revs = append(revs, list...)
	}
	return revs, nil
}

func (w *Workbook) FetchUsers(ctx context.Context) ([]domain.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	users, _, err := readUsers(f)
	return users, err
}

// ForwardTask appends the next revision as a new row at the end of the board.
func (w *Workbook) ForwardTask(ctx context.Context, req domain.ForwardRequest) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return "", err
	}
	defer f.Close()

	revs, used, err := readSheet(f, req.Sheet)
	if err != nil {
		return "", err
	}
	next, err := appendRevision(revs, req)
	if err != nil {
		return "", err
	}
	if err := writeRow(f, req.Sheet, used+1, revisionCells(next)); err != nil {
		return "", err
	}
	if err := f.Save(); err != nil {
		return "", err
	}
	return next.ID, nil
}

func (w *Workbook) RegisterUser(ctx context.Context, userID, displayName string) (domain.User, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return domain.User{}, err
	}
	defer f.Close()

	users, index, err := readUsers(f)
	if err != nil {
		return domain.User{}, err
	}
	if u, ok := domain.FindUser(users, userID); ok {
		return u, nil
	}
	u := domain.NewUser(userID, displayName)
	row := len(users) + 2
	for _, r := range index {
		if r >= row {
			row = r + 1
		}
	}
	if err := writeRow(f, UsersSheet, row, []any{u.ID, u.Name, u.NickName, string(u.Role), ""}); err != nil {
		return domain.User{}, err
	}
	return u, f.Save()
}

func (w *Workbook) setUserCell(userID string, col int, value string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	_, index, err := readUsers(f)
	if err != nil {
		return err
	}
	row, ok := index[userID]
	if !ok {
		return ErrUserNotFound
	}
	addr, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := f.SetCellValue(UsersSheet, addr, value); err != nil {
		return err
	}
	return f.Save()
}

func (w *Workbook) SetPassword(ctx context.Context, userID, passwordHash string) error {
	return w.setUserCell(userID, userPasswordColumn, passwordHash)
}

func (w *Workbook) SetRole(ctx context.Context, userID string, role domain.Role) error {
	return w.setUserCell(userID, userRoleColumn, string(role))
}

func (w *Workbook) PasswordHash(ctx context.Context, userID string) (string, error) {
	users, err := w.FetchUsers(ctx)
	if err != nil {
		return "", err
	}
	u, ok := domain.FindUser(users, userID)
	if !ok {
		return "", ErrUserNotFound
	}
	return u.PasswordHash, nil
}

// Import appends revisions below the existing rows of each board and adds
// users that are not present yet.
func (w *Workbook) Import(ctx context.Context, revs []domain.Revision, users []domain.User) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, err := w.open()
	if err != nil {
		return err
	}
	defer f.Close()

	next := map[string]int{}
	for _, r := range revs {
		if _, ok := next[r.Sheet]; !ok {
			_, used, err := readSheet(f, r.Sheet)
			if err != nil {
				return err
			}
			next[r.Sheet] = used + 1
		}
		if err := writeRow(f, r.Sheet, next[r.Sheet], revisionCells(r)); err != nil {
			return err
		}
		next[r.Sheet]++
	}

	existing, index, err := readUsers(f)
	if err != nil {
		return err
	}
	row := len(existing) + 2
	for _, r := range index {
		if r >= row {
			row = r + 1
		}
	}
	for _, u := range users {
		if _, ok := index[u.ID]; ok {
			continue
		}
		if err := writeRow(f, UsersSheet, row, []any{u.ID, u.Name, u.NickName, string(u.Role), u.PasswordHash}); err != nil {
			return err
		}
		index[u.ID] = row
		row++
	}
	return f.Save()
}
