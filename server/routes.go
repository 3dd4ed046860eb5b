package server

import "net/http"

func (s *Server) initRoutes() {
	// Desktop handoff
	s.RegisterRouteHandler("POST /"+s.opts.ExchangePath, ChainMiddleware(s.ExchangeHandler(), s.APIMiddleware()...))
	s.RegisterRouteHandler("POST /"+s.opts.FastTicketPath, ChainMiddleware(s.FastTicketHandler(), s.APIMiddleware(s.RequireSessionAuth())...))
	s.RegisterRouteHandler("GET /"+s.opts.LoginPath, ChainMiddleware(s.DesktopLoginHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET /"+s.opts.HandoffPath, ChainMiddleware(s.HandoffPageHandler(), s.HTMLMiddleWare()...))

	// Provider sign-in
	s.RegisterRouteHandler("GET "+RouteSignIn, ChainMiddleware(s.SignInHandler(), s.HTMLMiddleWare()...))
	s.RegisterRouteHandler("GET "+RouteCallback, ChainMiddleware(s.CallbackHandler(), s.HTMLMiddleWare(s.CallbackInterceptor)...))

	// Session
	s.RegisterRouteHandler("GET "+RouteSession, ChainMiddleware(s.SessionHandler(), s.APIMiddleware(s.RequireSessionAuth())...))
	s.RegisterRouteHandler("POST "+RouteSignOut, ChainMiddleware(s.SignOutHandler(), s.APIMiddleware()...))

	// CORS preflight for every API route
	s.RegisterRouteHandler("OPTIONS /", ChainMiddleware(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, s.APIMiddleware()...))
}
