package domain

// AccessState tells the client which screen a signed-in identity may see.
type AccessState string

const (
	AccessGranted         AccessState = "granted"
	AccessPendingApproval AccessState = "pending_approval"
)

// Access gates the dashboard: unknown identities and users without a role wait
// for approval.
func Access(users []User, id string) (User, AccessState) {
	u, ok := FindUser(users, id)
	if !ok || u.Role == "" || u.Role == RoleNone {
		return u, AccessPendingApproval
	}
	return u, AccessGranted
}
