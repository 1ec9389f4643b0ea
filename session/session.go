package session

import "github.com/kbaldwin/punchclock/rpc"

// Info is the persisted record of an authenticated session. It is the sole
// source of truth for "is logged in": created on successful login, destroyed
// on logout or detected expiry. Only the Manager writes it; the store merely
// holds it.
type Info struct {
	Token        string       `json:"token"`
	BaseURL      string       `json:"base_url"`
	UserID       int          `json:"user_id"`
	CompanyID    int          `json:"company_id"`
	EmployeeID   int          `json:"employee_id"`
	EmployeeName string       `json:"employee_name"`
	Username     string       `json:"username"`
	Cookies      []rpc.Cookie `json:"cookies"`
}

// UserInfo is the identity record persisted alongside the session, so
// display surfaces can read who is logged in without deserializing the
// credential-bearing session record.
type UserInfo struct {
	UserID       int    `json:"user_id"`
	Username     string `json:"username"`
	CompanyID    int    `json:"company_id"`
	EmployeeID   int    `json:"employee_id"`
	EmployeeName string `json:"employee_name"`
}
