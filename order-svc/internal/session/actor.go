package session

import (
	"strconv"

	"koikhabo/order-svc/internal/apiclient"
)

type Kind string

const (
	KindUser  Kind = "user"
	KindGuest Kind = "guest"
	KindAdmin Kind = "admin"
)

type User struct {
	UserID      int    `json:"user_id"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Institution string `json:"institution,omitempty"`
}

type Guest struct {
	GuestID   int    `json:"guest_id"`
	SessionID string `json:"session_id"`
}

type Admin struct {
	Name string `json:"admin_name"`
}

// Actor is exactly one of a registered user, a guest or an admin. Only the
// field matching Kind is set.
type Actor struct {
	Kind  Kind   `json:"kind"`
	User  *User  `json:"user,omitempty"`
	Guest *Guest `json:"guest,omitempty"`
	Admin *Admin `json:"admin,omitempty"`
}

func NewUser(u User) Actor {
	return Actor{Kind: KindUser, User: &u}
}

func NewGuest(g Guest) Actor {
	return Actor{Kind: KindGuest, Guest: &g}
}

func NewAdmin(a Admin) Actor {
	return Actor{Kind: KindAdmin, Admin: &a}
}

// ID is the owner key orders and reservations are stored under.
func (a Actor) ID() string {
	switch a.Kind {
	case KindUser:
		return "user-" + strconv.Itoa(a.User.UserID)
	case KindGuest:
		return "guest-" + strconv.Itoa(a.Guest.GuestID)
	case KindAdmin:
		return "admin-" + a.Admin.Name
	}
	return ""
}

func (a Actor) IsLoggedIn() bool {
	return a.Kind == KindUser || a.Kind == KindGuest
}

func (a Actor) IsGuest() bool {
	return a.Kind == KindGuest
}

func (a Actor) IsAdmin() bool {
	return a.Kind == KindAdmin
}

// Owner is the backend's view of who places an order.
func (a Actor) Owner() apiclient.Owner {
	switch a.Kind {
	case KindUser:
		return apiclient.Owner{UserID: a.User.UserID}
	case KindGuest:
		return apiclient.Owner{GuestID: a.Guest.GuestID}
	}
	return apiclient.Owner{}
}

// Valid reports whether the payload matches Kind. Decoded actors that fail
// this are treated as absent.
func (a Actor) Valid() bool {
	switch a.Kind {
	case KindUser:
		return a.User != nil && a.Guest == nil && a.Admin == nil
	case KindGuest:
		return a.Guest != nil && a.User == nil && a.Admin == nil
	case KindAdmin:
		return a.Admin != nil && a.User == nil && a.Guest == nil
	}
	return false
}
