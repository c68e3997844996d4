package model

import (
	"strings"
	"time"
)

// Role is one of the three static roles.  Legacy rows may carry the older
// names student/teacher/admin; ParseRole folds them into the current set.
type Role string

const (
	RoleMember        Role = "member"
	RoleInstructor    Role = "instructor"
	RoleAdministrator Role = "administrator"
)

// ParseRole normalises a stored or submitted role name.  ok is false for
// anything outside the known set.
func ParseRole(s string) (r Role, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "member", "student":
		return RoleMember, true
	case "instructor", "teacher":
		return RoleInstructor, true
	case "administrator", "admin":
		return RoleAdministrator, true
	}
	return "", false
}

// User represents a row of the `users` table.  CreditScore is written only
// through the credit ledger.
//
// Fields:
//
//	Account      – unique login name, primary key.
//	PasswordHash – bcrypt hash of the password.
//	Name         – display name.
//	Role         – member, instructor or administrator.
//	Phone        – optional contact number.
//	CreditScore  – reputation counter, 0–100, default 100.
//	CreatedAt    – registration timestamp.
type User struct {
	Account      string    // users.account
	PasswordHash string    // users.password_hash
	Name         string    // users.name
	Role         Role      // users.role
	Phone        string    // users.phone
	CreditScore  int       // users.credit_score
	CreatedAt    time.Time // users.created_at
}
