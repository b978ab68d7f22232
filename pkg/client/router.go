package client

import "github.com/fixmyward/ward-service/internal/api/dto"

// View is a screen of the client application.
type View string

const (
	ViewHome      View = "home"
	ViewLogin     View = "login"
	ViewSignup    View = "signup"
	ViewForgot    View = "forgot"
	ViewDashboard View = "dashboard"
	ViewReport    View = "report"
)

// Router decides which view is shown for a requested one, given who is signed in.
type Router struct {
	current View
}

// NewRouter starts on the dashboard for a signed-in user, home otherwise.
func NewRouter(user *dto.UserResponse) *Router {
	start := ViewHome
	if user != nil {
		start = ViewDashboard
	}
	return &Router{current: start}
}

// Current is the view being shown.
func (r *Router) Current() View { return r.current }

// Navigate moves to the view Resolve picks and returns it.
func (r *Router) Navigate(requested View, user *dto.UserResponse) View {
	r.current = Resolve(requested, user)
	return r.current
}

// Resolve applies the redirect rules:
// home is always reachable, auth views send signed-in users to the dashboard,
// everything else needs a user, and reporting is for citizens only.
func Resolve(requested View, user *dto.UserResponse) View {
	switch requested {
	case ViewHome:
		return ViewHome
	case ViewLogin, ViewSignup, ViewForgot:
		if user != nil {
			return ViewDashboard
		}
		return requested
	}

	if user == nil {
		return ViewLogin
	}
	if requested == ViewReport && user.Role != "CITIZEN" {
		return ViewDashboard
	}
	if requested == ViewReport {
		return ViewReport
	}
	return ViewDashboard
}
