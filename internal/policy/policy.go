// Package policy holds the authenticated principal and the table of which
// role may invoke which workflow action.
package policy

import (
	"fmt"

	"campus-portal/internal/apperr"
)

// Role tags a principal. The three kinds share no identity.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleCoordinator Role = "coordinator"
	RoleStudent     Role = "student"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleCoordinator, RoleStudent:
		return true
	}
	return false
}

// Principal is an authenticated actor. The zero value is anonymous.
type Principal struct {
	Role Role
	ID   uint
}

func Admin(id uint) Principal       { return Principal{Role: RoleAdmin, ID: id} }
func Coordinator(id uint) Principal { return Principal{Role: RoleCoordinator, ID: id} }
func Student(id uint) Principal     { return Principal{Role: RoleStudent, ID: id} }

func (p Principal) Anonymous() bool     { return p.ID == 0 || !p.Role.Valid() }
func (p Principal) IsAdmin() bool       { return !p.Anonymous() && p.Role == RoleAdmin }
func (p Principal) IsCoordinator() bool { return !p.Anonymous() && p.Role == RoleCoordinator }
func (p Principal) IsStudent() bool     { return !p.Anonymous() && p.Role == RoleStudent }

func (p Principal) String() string {
	if p.Anonymous() {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%d", p.Role, p.ID)
}

// Landing returns the page an actor is sent back to after a rejected action.
func (p Principal) Landing() string {
	switch {
	case p.IsAdmin():
		return "/admin/registrations"
	case p.IsCoordinator():
		return "/coordinator/dashboard"
	case p.IsStudent():
		return "/student/dashboard"
	}
	return "/"
}

// LoginPage is where an actor lacking role is sent to sign in.
func LoginPage(role Role) string {
	switch role {
	case RoleAdmin, RoleCoordinator, RoleStudent:
		return "/" + string(role) + "/login"
	}
	return "/"
}

// Action names a guarded workflow transition.
type Action string

const (
	CreateEvent          Action = "create_event"
	ProposeEvent         Action = "propose_event"
	AdminEditEvent       Action = "admin_edit_event"
	CoordinatorEditEvent Action = "coordinator_edit_event"
	ApproveEvent         Action = "approve_event"
	RejectEvent          Action = "reject_event"
	CompleteEvent        Action = "complete_event"
	DeleteEvent          Action = "delete_event"
	RegisterForEvent     Action = "register_for_event"
	ApproveRegistration  Action = "approve_registration"
	RejectRegistration   Action = "reject_registration"
	ViewParticipants     Action = "view_participants"
	ExportParticipants   Action = "export_participants"
	ManageAccounts       Action = "manage_accounts"
	ViewReports          Action = "view_reports"
	ViewOwnRecords       Action = "view_own_records"
	ViewOwnEvents        Action = "view_own_events"
	ViewRegistrations    Action = "view_registrations"
)

// rule describes who may perform an action. Ownership-gated actions are
// completed by Owns once the resource is loaded.
type rule struct {
	roles []Role
	owned bool // coordinators must also own the resource
}

var table = map[Action]rule{
	CreateEvent:          {roles: []Role{RoleAdmin}},
	ProposeEvent:         {roles: []Role{RoleCoordinator}},
	AdminEditEvent:       {roles: []Role{RoleAdmin}},
	CoordinatorEditEvent: {roles: []Role{RoleCoordinator}, owned: true},
	ApproveEvent:         {roles: []Role{RoleAdmin}},
	RejectEvent:          {roles: []Role{RoleAdmin}},
	CompleteEvent:        {roles: []Role{RoleAdmin}},
	DeleteEvent:          {roles: []Role{RoleAdmin}},
	RegisterForEvent:     {roles: []Role{RoleStudent}},
	ApproveRegistration:  {roles: []Role{RoleAdmin}},
	RejectRegistration:   {roles: []Role{RoleAdmin}},
	ViewParticipants:     {roles: []Role{RoleAdmin, RoleCoordinator}, owned: true},
	ExportParticipants:   {roles: []Role{RoleCoordinator}, owned: true},
	ManageAccounts:       {roles: []Role{RoleAdmin}},
	ViewReports:          {roles: []Role{RoleAdmin}},
	ViewOwnRecords:       {roles: []Role{RoleStudent}},
	ViewOwnEvents:        {roles: []Role{RoleCoordinator}},
	ViewRegistrations:    {roles: []Role{RoleAdmin}},
}

// Authorize checks the role half of the policy table.
func Authorize(p Principal, action Action) error {
	r, ok := table[action]
	if !ok {
		return fmt.Errorf("policy: unknown action %q", action)
	}
	if !p.Anonymous() {
		for _, role := range r.roles {
			if p.Role == role {
				return nil
			}
		}
	}
	return deny(p, r.roles[0])
}

// Owns checks the ownership half of the policy table for an event owned by
// coordinatorID (nil for admin-authored events). Admins pass only where the
// table lists them for the action.
func Owns(p Principal, action Action, coordinatorID *uint) error {
	if err := Authorize(p, action); err != nil {
		return err
	}
	if !table[action].owned || p.IsAdmin() {
		return nil
	}
	if coordinatorID == nil || *coordinatorID != p.ID {
		return apperr.Unauthorized("Unauthorized access.", p.Landing())
	}
	return nil
}

// Require checks that p is an authenticated principal of role.
func Require(p Principal, role Role) error {
	if !p.Anonymous() && p.Role == role {
		return nil
	}
	return deny(p, role)
}

func deny(p Principal, want Role) error {
	if p.Anonymous() {
		return apperr.Unauthorized(fmt.Sprintf("Please log in as %s.", article(want)), LoginPage(want))
	}
	return apperr.Unauthorized("You are not allowed to do that.", p.Landing())
}

func article(r Role) string {
	if r == RoleAdmin {
		return "admin"
	}
	return "a " + string(r)
}
