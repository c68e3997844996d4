package model

import "time"

// CreditLog is one append-only entry of a user's credit history.  The most
// recent negative entry is what the restoration cooldown is measured from.
type CreditLog struct {
	ID          int64     // credit_logs.id
	UserAccount string    // credit_logs.user_account
	Delta       int       // credit_logs.delta
	Reason      string    // credit_logs.reason
	CreatedAt   time.Time // credit_logs.created_at
}
