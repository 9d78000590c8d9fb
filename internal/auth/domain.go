package auth

// AdminID is the identity bound to sessions of the single configured admin.
const AdminID int64 = 1

// Admin is the authenticated operator of the billing API.
type Admin struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}
