package model

// User is a dealer or administrator account record stored at users/{uid}.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Approved bool     `json:"approved"`
	Machines []string `json:"machines"`
}
