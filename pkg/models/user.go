package models

// Identity is the signed-in user that scopes the order log.
type Identity struct {
	UID         string `json:"uid" binding:"required"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}
