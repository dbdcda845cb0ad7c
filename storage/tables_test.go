package storage

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/bytedance/sonic"

	"agenda-tracker/domain"
)

func TestRevisionEntityRoundTrip(t *testing.T) {
	in := domain.Revision{
		ID: "r9", Sheet: domain.SheetExcom, RowIndex: 12, Work: "Conduct", MeetingNo: "การประชุม 3",
		Subject: "Audit", Responsible: "A (a)", CurrentHolder: "ต่อ", Status: domain.StatusSentForReview,
		AssignedTo: "ต่อ", ForwardedBy: "a", Order: 4, Urgent: true,
		Timestamp: time.Date(2024, 5, 1, 8, 30, 0, 0, time.UTC),
	}
	ent := toRevisionEntity(in)
	if ent.PartitionKey != domain.SheetExcom || ent.RowKey != "00000012" {
		t.Fatalf("unexpected keys %s/%s", ent.PartitionKey, ent.RowKey)
	}
	data, err := sonic.Marshal(ent)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	out, err := decodeRevisionEntity(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Fatalf("timestamp changed: %v", out.Timestamp)
	}
	out.Timestamp = in.Timestamp
	if out != in {
		t.Fatalf("expected %+v, got %+v", in, out)
	}
}

func TestDecodeRevisionEntityRejectsBadRowKey(t *testing.T) {
	if _, err := decodeRevisionEntity([]byte(`{"PartitionKey":"Board","RowKey":"abc"}`)); err == nil {
		t.Fatalf("expected error for non-numeric row key")
	}
}

func TestDecodeUserEntity(t *testing.T) {
	u, err := decodeUserEntity([]byte(`{"PartitionKey":"user","RowKey":"U1","Name":"Tor (ต่อ)","NickName":"ต่อ","Role":"Inspector"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if u.ID != "U1" || u.Role != domain.RoleInspector || u.DisplayName() != "ต่อ" {
		t.Fatalf("unexpected user %+v", u)
	}
}

func TestNextRow(t *testing.T) {
	if got := nextRow(nil); got != firstDataRowKey {
		t.Fatalf("expected first data row %d, got %d", firstDataRowKey, got)
	}
	if got := nextRow([]domain.Revision{{RowIndex: 2}, {RowIndex: 7}, {RowIndex: 3}}); got != 8 {
		t.Fatalf("expected 8, got %d", got)
	}
}

func TestIsStatus(t *testing.T) {
	err := &azcore.ResponseError{StatusCode: http.StatusConflict, ErrorCode: "EntityAlreadyExists"}
	wrapped := errors.Join(errors.New("append"), err)
	if !isStatus(wrapped, http.StatusConflict) || isStatus(wrapped, http.StatusNotFound) {
		t.Fatalf("status matching failed")
	}
	if !isErrorCode(err, "EntityAlreadyExists") {
		t.Fatalf("error code matching failed")
	}
}
