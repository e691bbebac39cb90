package models

// Account is the provisional identity the booking API returns after a
// successful password check. It is never stored by this service; only the
// fields needed for the session survive full authentication.
type Account struct {
	UserID           string `json:"user_id"`
	FirstName        string `json:"fname"`
	LastName         string `json:"lname"`
	Email            string `json:"email"`
	UserType         string `json:"user_type"`
	UserLevel        int    `json:"user_level"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
}
