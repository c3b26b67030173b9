package domain

// UserIdentity is the verified caller identity resolved from the request
// credentials before any chat handling happens.
type UserIdentity struct {
	UserID   string
	Email    string
	Role     string
	FullName string
}

// UserProfile is the persisted profile created on a user's first chat request.
type UserProfile struct {
	UserID    string
	Email     string
	Role      string
	FullName  string
	CreatedAt string
}
