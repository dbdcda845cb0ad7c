package storage

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"

	"agenda-tracker/domain"
)

func remoteServer(t *testing.T, handle func(req map[string]any) any) *RemoteClient {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := sonic.Unmarshal(body, &req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		out, _ := sonic.Marshal(handle(req))
		_, _ = w.Write(out)
	}))
	t.Cleanup(srv.Close)
	return NewRemoteClient(srv.URL, srv.Client())
}

func TestRemoteFetchRevisions(t *testing.T) {
	c := remoteServer(t, func(req map[string]any) any {
		if req["action"] != "getTasks" {
			t.Errorf("unexpected action %v", req["action"])
		}
		return []map[string]any{
			{"id": "r1", "sheet": "Board", "rowIndex": 2, "subject": "Budget", "order": 1, "timestamp": "2024-01-01T09:00:00Z"},
			{"id": "r2", "sheet": "Board", "rowIndex": 3, "subject": "Audit", "order": 1, "timestamp": ""},
		}
	})

	revs, err := c.FetchRevisions(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(revs) != 2 || revs[0].RowIndex != 2 || revs[0].Timestamp.IsZero() || !revs[1].Timestamp.IsZero() {
		t.Fatalf("unexpected revisions %+v", revs)
	}
}

func TestRemoteForwardTask(t *testing.T) {
	var seen map[string]any
	c := remoteServer(t, func(req map[string]any) any {
		seen = req
		return map[string]any{"success": true, "newId": "abc"}
	})

	id, err := c.ForwardTask(context.Background(), domain.ForwardRequest{
		Sheet: "Board", RowIndex: 4, Remark: "ok", NextHolder: "ต่อ", Actor: "a", Action: domain.ActionSubmit,
	})
	if err != nil || id != "abc" {
		t.Fatalf("forward: %q %v", id, err)
	}
	if seen["action"] != "forwardTask" || seen["sheetName"] != "Board" || seen["nextUserName"] != "ต่อ" || seen["actionType"] != "SUBMIT" {
		t.Fatalf("unexpected request %v", seen)
	}
}

func TestRemoteFailuresWrapErrRemote(t *testing.T) {
	c := remoteServer(t, func(req map[string]any) any {
		return map[string]any{"success": false, "error": "row locked"}
	})
	if _, err := c.ForwardTask(context.Background(), domain.ForwardRequest{}); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}
	if err := c.SetPassword(context.Background(), "u1", "hash"); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote, got %v", err)
	}

	down := NewRemoteClient("http://127.0.0.1:1", nil)
	if _, err := down.FetchUsers(context.Background()); !errors.Is(err, ErrRemote) {
		t.Fatalf("expected ErrRemote for unreachable backend, got %v", err)
	}
}

func TestRemoteRegisterUserDefaultsRole(t *testing.T) {
	c := remoteServer(t, func(req map[string]any) any {
		if req["userId"] != "U1" || req["displayName"] != "Somchai" {
			t.Errorf("unexpected request %v", req)
		}
		return map[string]any{"success": true}
	})
	u, err := c.RegisterUser(context.Background(), "U1", "Somchai")
	if err != nil || u.Role != domain.RoleNone || u.ID != "U1" {
		t.Fatalf("register: %+v %v", u, err)
	}
}
