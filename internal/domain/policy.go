package domain

type Action string

const (
	ActionRentScooter      Action = "rental:start"
	ActionViewAllRentals   Action = "rental:view_all"
	ActionSweepOverdue     Action = "rental:sweep_overdue"
	ActionViewPlatformStat Action = "stats:platform"

	ActionCreateScooter    Action = "scooter:create"
	ActionManageAnyScooter Action = "scooter:manage_any"

	ActionListUsers     Action = "user:list"
	ActionManageUsers   Action = "user:manage"
	ActionCreateAdmin   Action = "user:create_admin"
	ActionResetPassword Action = "user:reset_password"

	ActionViewAllPayments Action = "payment:view_all"
	ActionDrivePayments   Action = "payment:drive"
	ActionRefundPayment   Action = "payment:refund"
)

var capabilities = map[Role]map[Action]bool{
	RoleAdmin: {
		ActionRentScooter:      true,
		ActionViewAllRentals:   true,
		ActionSweepOverdue:     true,
		ActionViewPlatformStat: true,
		ActionCreateScooter:    true,
		ActionManageAnyScooter: true,
		ActionListUsers:        true,
		ActionManageUsers:      true,
		ActionCreateAdmin:      true,
		ActionResetPassword:    true,
		ActionViewAllPayments:  true,
		ActionDrivePayments:    true,
		ActionRefundPayment:    true,
	},
	RoleProvider: {
		ActionRentScooter:   true,
		ActionCreateScooter: true,
	},
	RoleCustomer: {
		ActionRentScooter: true,
	},
}

// Can is the single place role permissions are resolved.
func (r Role) Can(a Action) bool {
	return capabilities[r][a]
}

// Can also requires the account to be active.
func (u *User) Can(a Action) bool {
	return u != nil && u.IsActive && u.Role.Can(a)
}

func CanManageScooter(actor *User, s *Scooter) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	if actor.Role.Can(ActionManageAnyScooter) {
		return true
	}
	return actor.IsProvider() && s.ProviderID == actor.ID
}

// CanViewRental: admins see every rental, providers see rentals of their own
// scooters, everyone sees their own.
func CanViewRental(actor *User, r *Rental, s *Scooter) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	if actor.Role.Can(ActionViewAllRentals) || r.UserID == actor.ID {
		return true
	}
	return s != nil && actor.IsProvider() && s.ProviderID == actor.ID
}

// CanOperateRental covers ending and cancelling.
func CanOperateRental(actor *User, r *Rental) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	return r.UserID == actor.ID || actor.Role.Can(ActionViewAllRentals)
}

func CanRateRental(actor *User, r *Rental) bool {
	return actor != nil && actor.IsActive && r.UserID == actor.ID
}

func CanViewPayment(actor *User, p *Payment, s *Scooter) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	if actor.Role.Can(ActionViewAllPayments) || p.UserID == actor.ID {
		return true
	}
	return s != nil && actor.IsProvider() && s.ProviderID == actor.ID
}

func CanViewUser(actor *User, targetID int32) bool {
	if actor == nil || !actor.IsActive {
		return false
	}
	return actor.ID == targetID || actor.Role.Can(ActionListUsers)
}
