package account

// Account is a stored Klaviyo credential set: a display name tied to a
// private API key for one upstream tenant.
type Account struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	APIKey     string `json:"apiKey"`
	SenderName string `json:"senderName,omitempty"`
}

// Update carries the fields of a partial account update. Nil fields are
// left untouched on the stored record.
type Update struct {
	Name       *string `json:"name"`
	APIKey     *string `json:"apiKey"`
	SenderName *string `json:"senderName"`
}

// Apply merges the update into the account, overwriting only the
// supplied fields.
func (u Update) Apply(acc *Account) {
	if u.Name != nil {
		acc.Name = *u.Name
	}
	if u.APIKey != nil {
		acc.APIKey = *u.APIKey
	}
	if u.SenderName != nil {
		acc.SenderName = *u.SenderName
	}
}
