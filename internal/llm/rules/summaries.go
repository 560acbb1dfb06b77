package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"kite-agent-bridge/internal/types"
)

// summarize turns one tool result into a short reply. Results that are not
// envelopes (delegation answers) are returned as they are.
func summarize(r toolResult) string {
	var env types.Envelope
	if err := json.Unmarshal([]byte(r.Result), &env); err != nil || env.Status == "" {
		return strings.TrimSpace(r.Result)
	}
	if !env.OK() {
		return "The request failed: " + env.Message
	}

	switch r.Name {
	case "get_holdings":
		return summarizeHoldings(env)
	case "get_positions":
		return summarizePositions(env)
	case "get_profile":
		return summarizeProfile(env)
	case "get_margins":
		return summarizeMargins(env)
	case "get_trades":
		return summarizeTrades(env)
	case "place_order", "modify_order", "cancel_order", "exit_order":
		return summarizeOrder(r.Name, env)
	case "place_gtt", "delete_gtt":
		return summarizeGTT(r.Name, env)
	case "initiate_login_flow":
		return summarizeLogin(env)
	case "web_search":
		return summarizeResearch(env)
	}
	if env.Message != "" {
		return env.Message
	}
	return "Done. " + compact(env.Data)
}

type holding struct {
	Tradingsymbol string  `json:"tradingsymbol"`
	Quantity      int     `json:"quantity"`
	AveragePrice  float64 `json:"average_price"`
	LastPrice     float64 `json:"last_price"`
	PnL           float64 `json:"pnl"`
}

func summarizeHoldings(env types.Envelope) string {
	var hs []holding
	if err := env.DecodeData(&hs); err != nil || len(hs) == 0 {
		return "You have no holdings in your Kite account."
	}
	sort.SliceStable(hs, func(i, j int) bool {
		return float64(hs[i].Quantity)*hs[i].LastPrice > float64(hs[j].Quantity)*hs[j].LastPrice
	})

	var total, pnl float64
	var b strings.Builder
	for _, h := range hs {
		value := float64(h.Quantity) * h.LastPrice
		total += value
		pnl += h.PnL
		fmt.Fprintf(&b, "\n- %s: %d @ %.2f (value %.2f, P&L %.2f)", h.Tradingsymbol, h.Quantity, h.LastPrice, value, h.PnL)
	}
	return fmt.Sprintf("You hold %d stocks worth %.2f with total P&L %.2f. Top holding: %s%s",
		len(hs), total, pnl, hs[0].Tradingsymbol, b.String())
}

type position struct {
	Tradingsymbol string  `json:"tradingsymbol"`
	Product       string  `json:"product"`
	Quantity      int     `json:"quantity"`
	PnL           float64 `json:"pnl"`
}

func summarizePositions(env types.Envelope) string {
	var ps struct {
		Net []position `json:"net"`
		Day []position `json:"day"`
	}
	if err := env.DecodeData(&ps); err != nil {
		return "Could not read your positions."
	}
	var open []position
	var pnl float64
	for _, p := range ps.Net {
		pnl += p.PnL
		if p.Quantity != 0 {
			open = append(open, p)
		}
	}
	if len(open) == 0 {
		return fmt.Sprintf("You have no open positions. Realised P&L today is %.2f.", pnl)
	}
	var b strings.Builder
	for _, p := range open {
		fmt.Fprintf(&b, "\n- %s (%s): %d, P&L %.2f", p.Tradingsymbol, p.Product, p.Quantity, p.PnL)
	}
	return fmt.Sprintf("You have %d open positions with net P&L %.2f.%s", len(open), pnl, b.String())
}

func summarizeProfile(env types.Envelope) string {
	var p struct {
		UserID   string `json:"user_id"`
		UserName string `json:"user_name"`
		Email    string `json:"email"`
		Broker   string `json:"broker"`
	}
	if err := env.DecodeData(&p); err != nil {
		return "Could not read your profile."
	}
	return fmt.Sprintf("You are logged in as %s (%s), email %s.", p.UserName, p.UserID, p.Email)
}

type segmentMargins struct {
	Net       float64 `json:"net"`
	Available struct {
		Cash float64 `json:"cash"`
	} `json:"available"`
}

func summarizeMargins(env types.Envelope) string {
	var all map[string]segmentMargins
	if err := env.DecodeData(&all); err == nil {
		if _, ok := all["equity"]; ok {
			return marginLine("equity", all["equity"]) + " " + marginLine("commodity", all["commodity"])
		}
	}
	var one segmentMargins
	if err := env.DecodeData(&one); err != nil {
		return "Could not read your margins."
	}
	return marginLine("segment", one)
}

func marginLine(name string, m segmentMargins) string {
	return fmt.Sprintf("Available %s margin is %.2f (cash %.2f).", name, m.Net, m.Available.Cash)
}

func summarizeTrades(env types.Envelope) string {
	var trades []struct {
		TradeID         string  `json:"trade_id"`
		Tradingsymbol   string  `json:"tradingsymbol"`
		TransactionType string  `json:"transaction_type"`
		Quantity        float64 `json:"quantity"`
		AveragePrice    float64 `json:"average_price"`
	}
	if err := env.DecodeData(&trades); err != nil || len(trades) == 0 {
		return "You have no trades today."
	}
	var b strings.Builder
	for _, t := range trades {
		fmt.Fprintf(&b, "\n- %s %s %.0f @ %.2f", t.TransactionType, t.Tradingsymbol, t.Quantity, t.AveragePrice)
	}
	return fmt.Sprintf("You have %d trades today.%s", len(trades), b.String())
}

func summarizeOrder(tool string, env types.Envelope) string {
	var data struct {
		OrderID string `json:"order_id"`
	}
	_ = env.DecodeData(&data)
	verb := map[string]string{
		"place_order":  "placed",
		"modify_order": "modified",
		"cancel_order": "cancelled",
		"exit_order":   "exited",
	}[tool]
	return fmt.Sprintf("Order %s %s.", data.OrderID, verb)
}

func summarizeGTT(tool string, env types.Envelope) string {
	var data struct {
		TriggerID int `json:"trigger_id"`
	}
	_ = env.DecodeData(&data)
	if tool == "delete_gtt" {
		return fmt.Sprintf("GTT %d deleted.", data.TriggerID)
	}
	return fmt.Sprintf("GTT %d placed.", data.TriggerID)
}

func summarizeLogin(env types.Envelope) string {
	var data struct {
		LoginURL string `json:"login_url"`
	}
	_ = env.DecodeData(&data)
	return fmt.Sprintf("%s Login URL: %s", strings.TrimSpace(env.Message), data.LoginURL)
}

func summarizeResearch(env types.Envelope) string {
	var res types.ResearchResult
	if err := env.DecodeData(&res); err != nil {
		return "Could not read the search results."
	}
	if len(res.Articles) == 0 && res.Answer == "" {
		return fmt.Sprintf("I found nothing for %q.", res.Query)
	}
	var b strings.Builder
	if res.Answer != "" {
		b.WriteString(res.Answer)
	} else {
		fmt.Fprintf(&b, "Here is what I found for %q:", res.Query)
	}
	for i, a := range res.Articles {
		if i == 5 {
			break
		}
		fmt.Fprintf(&b, "\n- %s (%s) %s", a.Title, a.Source, a.URL)
	}
	return b.String()
}

func compact(raw json.RawMessage) string {
	s := string(raw)
	if len(s) > 500 {
		s = s[:500] + "..."
	}
	return s
}
