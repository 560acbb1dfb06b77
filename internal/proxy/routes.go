package proxy

import (
	"net/http"

	"kite-agent-bridge/internal/types"
)

type route struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Auth        bool   `json:"auth"`
	Description string `json:"description"`
}

func (s *Server) buildRoutes() http.Handler {
	mux := http.NewServeMux()
	public := newRouteGroup(mux, recoverPanics, observe)
	private := public.with(s.requireSession)

	add := func(g *routeGroup, auth bool, method, path, desc string, fn http.HandlerFunc) {
		g.HandleFunc(method+" "+path, fn)
		s.routes = append(s.routes, route{Method: method, Path: path, Auth: auth, Description: desc})
	}

	add(public, false, http.MethodGet, "/{$}", "Service banner", s.handleRoot)
	add(public, false, http.MethodGet, "/health", "Liveness and session summary", s.handleHealth)
	add(public, false, http.MethodGet, "/api/info", "Service version and routes", s.handleInfo)

	add(public, false, http.MethodGet, "/login", "Kite login URL", s.handleLogin)
	add(public, false, http.MethodGet, "/trade/redirect", "Kite login redirect", s.handleRedirect)
	add(public, false, http.MethodGet, "/api/auth/check", "Session status", s.handleAuthCheck)
	add(public, false, http.MethodPost, "/api/auth/token/set", "Install an access token", s.handleSetToken)
	add(public, false, http.MethodPost, "/api/auth/token/renew", "Renew the access token", s.handleRenewToken)

	add(private, true, http.MethodGet, "/api/user/profile", "User profile", s.handleProfile)
	add(private, true, http.MethodGet, "/api/user/margins", "Account margins", s.handleMargins)
	add(private, true, http.MethodGet, "/api/portfolio/holdings", "Holdings", s.handleHoldings)
	add(private, true, http.MethodGet, "/api/portfolio/positions", "Net and day positions", s.handlePositions)
	add(private, true, http.MethodPut, "/api/portfolio/positions/convert", "Convert position product", s.handleConvertPosition)
	add(private, true, http.MethodPost, "/api/orders/place", "Place order", s.handlePlaceOrder)
	add(private, true, http.MethodPut, "/api/orders/modify", "Modify order", s.handleModifyOrder)
	add(private, true, http.MethodDelete, "/api/orders/cancel/{variety}/{order_id}", "Cancel order", s.handleCancelOrder)
	add(private, true, http.MethodDelete, "/api/orders/exit/{variety}/{order_id}", "Exit order", s.handleExitOrder)
	add(private, true, http.MethodGet, "/api/trades", "Trades of the day", s.handleTrades)
	add(private, true, http.MethodPost, "/api/gtt/place", "Place GTT trigger", s.handlePlaceGTT)
	add(private, true, http.MethodDelete, "/api/gtt/delete/{trigger_id}", "Delete GTT trigger", s.handleDeleteGTT)
	add(private, true, http.MethodPost, "/api/market/historical", "Historical candles", s.handleHistorical)

	public.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, http.StatusNotFound, types.Failure("Endpoint not found: "+r.Method+" "+r.URL.Path))
	})

	return mux
}
