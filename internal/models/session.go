package models

// SessionIdentity is written only after full authentication succeeds:
// password check, plus OTP verification when the account requires it.
type SessionIdentity struct {
	UserID    string `json:"userId"`
	FirstName string `json:"fname"`
	LastName  string `json:"lname"`
	UserType  string `json:"userType"`
	UserLevel int    `json:"userLevel"`
}
