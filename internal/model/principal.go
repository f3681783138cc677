package model

type Role string

const (
	RoleCompany Role = "company"
	RoleDriver  Role = "driver"
)

type Principal struct {
	UserID string
	Role   Role
}

func (p Principal) IsCompany() bool {
	return p.Role == RoleCompany
}

func (p Principal) IsDriver() bool {
	return p.Role == RoleDriver
}
