package server

// Route path constants that do not depend on handoff.Options
const (
	// Provider sign-in
	RouteSignIn   = "/auth/sign-in/{provider}"
	RouteCallback = "/auth/callback/{provider}"

	// Session
	RouteSession = "/auth/session"
	RouteSignOut = "/auth/sign-out"

	signInPrefix   = "/auth/sign-in/"
	callbackPrefix = "auth/callback/"
)
