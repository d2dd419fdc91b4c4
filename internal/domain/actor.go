package domain

// Actor identifies the authenticated user and pharmacy a request runs for.
// It is resolved by the caller and passed explicitly into every mutating operation.
type Actor struct {
	PharmacyID int64  `json:"pharmacy_id"`
	UserID     int64  `json:"user_id"`
	Username   string `json:"username"`
	IPAddress  string `json:"ip_address,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// Audit is the audit trail stamped on rows written for an actor.
type Audit struct {
	CreatedBy     int64  `json:"created_by"`
	CreatedByName string `json:"created_by_name,omitempty"`
	IPAddress     string `json:"ip_address,omitempty"`
	SessionID     string `json:"session_id,omitempty"`
}

func (a Actor) Audit() Audit {
	return Audit{
		CreatedBy:     a.UserID,
		CreatedByName: a.Username,
		IPAddress:     a.IPAddress,
		SessionID:     a.SessionID,
	}
}
