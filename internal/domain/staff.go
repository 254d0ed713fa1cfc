package domain

// StaffRole is a back-office role stored on users/{uid}.
type StaffRole string

const (
	RoleAdmin      StaffRole = "admin"
	RoleTeamLead   StaffRole = "team lead"
	RoleTeamMember StaffRole = "team member"
	RoleAuditor    StaffRole = "auditor"
)

// StaffStatus is the account state of a staff user.
type StaffStatus string

const (
	StatusActive   StaffStatus = "active"
	StatusInactive StaffStatus = "inactive"
	StatusSuspend  StaffStatus = "suspend"
)

func ParseStaffRole(raw string) (StaffRole, bool) {
	switch StaffRole(raw) {
	case RoleAdmin, RoleTeamLead, RoleTeamMember, RoleAuditor:
		return StaffRole(raw), true
	}
	return "", false
}

func ParseStaffStatus(raw string) (StaffStatus, bool) {
	switch StaffStatus(raw) {
	case StatusActive, StatusInactive, StatusSuspend:
		return StaffStatus(raw), true
	}
	return "", false
}

// StaffSession identifies an authenticated, active staff member.
type StaffSession struct {
	UID    string      `json:"uid"`
	Role   StaffRole   `json:"role"`
	Status StaffStatus `json:"status"`
}

// Branch is an entry of the branch directory.
type Branch struct {
	BranchID string `json:"branchId"`
	Name     string `json:"name"`
	Code     string `json:"code,omitempty"`
	Address  string `json:"address,omitempty"`
}

func BranchFromDocument(id string, data map[string]any) Branch {
	return Branch{
		BranchID: id,
		Name:     StringValue(data, "name"),
		Code:     StringValue(data, "code"),
		Address:  StringValue(data, "address"),
	}
}
