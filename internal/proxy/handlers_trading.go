package proxy

import (
	"fmt"
	"net/http"
	"strconv"

	"kite-agent-bridge/internal/types"
)

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	profile, err := s.broker.Profile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, profile)
}

func (s *Server) handleMargins(w http.ResponseWriter, r *http.Request) {
	req := types.MarginsReq{Segment: r.URL.Query().Get("segment")}
	if err := s.check(&req); err != nil {
		writeError(w, r, err)
		return
	}
	margins, err := s.broker.Margins(r.Context(), req.Segment)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, margins)
}

func (s *Server) handleHoldings(w http.ResponseWriter, r *http.Request) {
	holdings, err := s.broker.Holdings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, holdings)
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.broker.Positions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, positions)
}

func (s *Server) handleConvertPosition(w http.ResponseWriter, r *http.Request) {
	var req types.ConvertPositionReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ok, err := s.broker.ConvertPosition(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, ok)
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req types.OrderReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.broker.PlaceOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]string{"order_id": resp.OrderID})
}

func (s *Server) handleModifyOrder(w http.ResponseWriter, r *http.Request) {
	var req types.ModifyOrderReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.broker.ModifyOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]string{"order_id": resp.OrderID})
}

func (s *Server) cancelRequest(r *http.Request) (types.CancelOrderReq, error) {
	req := types.CancelOrderReq{
		Variety:       r.PathValue("variety"),
		OrderID:       r.PathValue("order_id"),
		ParentOrderID: r.URL.Query().Get("parent_order_id"),
	}
	return req, s.check(&req)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	req, err := s.cancelRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.broker.CancelOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]string{"order_id": resp.OrderID})
}

func (s *Server) handleExitOrder(w http.ResponseWriter, r *http.Request) {
	req, err := s.cancelRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.broker.ExitOrder(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]string{"order_id": resp.OrderID})
}

func (s *Server) handleTrades(w http.ResponseWriter, r *http.Request) {
	trades, err := s.broker.Trades(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, trades)
}

func (s *Server) handlePlaceGTT(w http.ResponseWriter, r *http.Request) {
	var req types.GTTReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	resp, err := s.broker.PlaceGTT(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"trigger_id": resp.TriggerID})
}

func (s *Server) handleDeleteGTT(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("trigger_id"))
	if err != nil || id <= 0 {
		writeError(w, r, fmt.Errorf("%w: trigger_id must be a positive integer", types.ErrMissingParameters))
		return
	}
	resp, err := s.broker.DeleteGTT(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, map[string]int{"trigger_id": resp.TriggerID})
}

func (s *Server) handleHistorical(w http.ResponseWriter, r *http.Request) {
	var req types.HistoricalReq
	if err := s.decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	candles, err := s.broker.HistoricalData(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, candles)
}
