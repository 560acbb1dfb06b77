// Package rules is a keyword decider used when no LLM provider is configured.
// It routes a small vocabulary of requests and formats tool results itself.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"kite-agent-bridge/internal/logger"
	"kite-agent-bridge/internal/types"
)

const helpText = "I can help you log in to Kite, show your profile, margins, holdings, positions and trades, " +
	"place or cancel orders (for example \"buy 5 INFY\" or \"cancel order 2301\"), and look up market news. " +
	"What would you like to do?"

var (
	reLogin      = regexp.MustCompile(`(?i)\b(log\s?(me\s)?in|sign\s?(me\s)?in|authenticate|connect (to )?kite)\b`)
	reAuthStatus = regexp.MustCompile(`(?i)\b(am i (logged|signed) in|logged in\?|auth(entication)? status|session status|am i authenticated)\b`)
	reResearch   = regexp.MustCompile(`(?i)\b(news|research|search|latest|happening|headlines|tell me about|what is|who is)\b`)
	reNews       = regexp.MustCompile(`(?i)\b(news|headlines|research)\b`)
	reHoldings   = regexp.MustCompile(`(?i)\b(holdings?|portfolio|stocks i own)\b`)
	rePositions  = regexp.MustCompile(`(?i)\bpositions?\b`)
	reProfile    = regexp.MustCompile(`(?i)\b(profile|who am i|my account)\b`)
	reMargins    = regexp.MustCompile(`(?i)\b(margins?|funds|balance|cash)\b`)
	reTrades     = regexp.MustCompile(`(?i)\b(trades|executions|fills)\b`)
	reOrder      = regexp.MustCompile(`(?i)\b(buy|sell)\s+(\d+)\s+(?:shares?\s+(?:of\s+)?)?([A-Za-z][A-Za-z0-9&\-]*)(?:\s+(?:at|@)\s+(\d+(?:\.\d+)?))?`)
	reCancel     = regexp.MustCompile(`(?i)\b(cancel|exit)\s+order\s+([A-Za-z0-9]+)`)
	reDeleteGTT  = regexp.MustCompile(`(?i)\b(delete|remove)\s+gtt\s+(\d+)`)
	reTopHolding = regexp.MustCompile(`Top holding: ([A-Z0-9&\-]+)`)
)

// RulesDecider needs no API key and makes the same choice for the same
// transcript every time.
type RulesDecider struct{}

func NewRulesDecider() *RulesDecider {
	return &RulesDecider{}
}

func (d *RulesDecider) Decide(ctx context.Context, req types.DecisionRequest) (types.Decision, error) {
	logger.Debug(ctx, "Rules decider called", "agent", req.Agent, "turns", len(req.Transcript))

	switch req.Agent {
	case types.AgentManager:
		return d.manager(req), nil
	case types.AgentAuth:
		return d.auth(req), nil
	case types.AgentKite:
		return d.kite(req), nil
	case types.AgentResearch:
		return d.research(req), nil
	default:
		return types.Decision{}, fmt.Errorf("rules decider has no rules for agent %q", req.Agent)
	}
}

type step struct {
	agent string
	task  string
	// fromTopHolding builds the task from the previous step's top holding.
	fromTopHolding bool
}

// plan classifies one user message into ordered delegations.
func plan(text string) []step {
	switch {
	case reAuthStatus.MatchString(text):
		return []step{{agent: types.AgentKite, task: text}}
	case reLogin.MatchString(text):
		return []step{{agent: types.AgentAuth, task: text}}
	case reHoldings.MatchString(text) && reNews.MatchString(text):
		return []step{
			{agent: types.AgentKite, task: "show my holdings"},
			{agent: types.AgentResearch, fromTopHolding: true},
		}
	case kiteIntent(text) != nil:
		return []step{{agent: types.AgentKite, task: text}}
	case reResearch.MatchString(text):
		return []step{{agent: types.AgentResearch, task: text}}
	default:
		return nil
	}
}

func (d *RulesDecider) manager(req types.DecisionRequest) types.Decision {
	steps := plan(req.LastUserText())
	if len(steps) == 0 {
		return types.Decision{Answer: helpText}
	}

	done := results(req.Transcript)
	if len(done) < len(steps) {
		next := steps[len(done)]
		task := next.task
		if next.fromTopHolding {
			m := reTopHolding.FindStringSubmatch(done[len(done)-1].Result)
			if m == nil {
				return types.Decision{Answer: joinResults(done)}
			}
			task = "latest news about " + m[1] + " stock"
		}
		return call(req, next.agent, map[string]string{"task": task})
	}
	return types.Decision{Answer: joinResults(done)}
}

func (d *RulesDecider) auth(req types.DecisionRequest) types.Decision {
	done := results(req.Transcript)
	if len(done) == 0 {
		return call(req, "initiate_login_flow", map[string]any{})
	}
	return types.Decision{Answer: summarize(done[len(done)-1])}
}

func (d *RulesDecider) research(req types.DecisionRequest) types.Decision {
	done := results(req.Transcript)
	if len(done) == 0 {
		return call(req, "web_search", map[string]string{"query": searchQuery(req.LastUserText())})
	}
	return types.Decision{Answer: summarize(done[len(done)-1])}
}

func (d *RulesDecider) kite(req types.DecisionRequest) types.Decision {
	done := results(req.Transcript)
	if len(done) > 0 {
		return types.Decision{Answer: summarize(done[len(done)-1])}
	}
	intent := kiteIntent(req.LastUserText())
	if intent == nil {
		return types.Decision{Answer: helpText}
	}
	return call(req, intent.tool, intent.args)
}

type intent struct {
	tool string
	args any
}

func kiteIntent(text string) *intent {
	if m := reOrder.FindStringSubmatch(text); m != nil {
		qty, _ := strconv.Atoi(m[2])
		order := map[string]any{
			"exchange":         "NSE",
			"tradingsymbol":    strings.ToUpper(m[3]),
			"transaction_type": strings.ToUpper(m[1]),
			"quantity":         qty,
			"product":          "CNC",
			"order_type":       "MARKET",
		}
		if m[4] != "" {
			price, _ := strconv.ParseFloat(m[4], 64)
			order["order_type"] = "LIMIT"
			order["price"] = price
		}
		return &intent{tool: "place_order", args: order}
	}
	if m := reCancel.FindStringSubmatch(text); m != nil {
		return &intent{tool: strings.ToLower(m[1]) + "_order", args: map[string]string{"variety": "regular", "order_id": m[2]}}
	}
	if m := reDeleteGTT.FindStringSubmatch(text); m != nil {
		id, _ := strconv.Atoi(m[2])
		return &intent{tool: "delete_gtt", args: map[string]int{"trigger_id": id}}
	}

	switch {
	case reAuthStatus.MatchString(text):
		return &intent{tool: "check_authentication_status", args: map[string]any{}}
	case reHoldings.MatchString(text):
		return &intent{tool: "get_holdings", args: map[string]any{}}
	case rePositions.MatchString(text):
		return &intent{tool: "get_positions", args: map[string]any{}}
	case reTrades.MatchString(text):
		return &intent{tool: "get_trades", args: map[string]any{}}
	case reMargins.MatchString(text):
		args := map[string]string{}
		lower := strings.ToLower(text)
		if strings.Contains(lower, "commodity") {
			args["segment"] = "commodity"
		} else if strings.Contains(lower, "equity") {
			args["segment"] = "equity"
		}
		return &intent{tool: "get_margins", args: args}
	case reProfile.MatchString(text):
		return &intent{tool: "get_profile", args: map[string]any{}}
	}
	return nil
}

var fillerWords = regexp.MustCompile(`(?i)^(please\s+)?(can you\s+)?(search( the web)? for|research|look up|find|tell me about|what is the latest( news)? (on|about)|latest news (on|about))\s+`)

func searchQuery(text string) string {
	q := strings.TrimSpace(fillerWords.ReplaceAllString(strings.TrimSpace(text), ""))
	q = strings.TrimRight(q, "?.!")
	if q == "" {
		return strings.TrimSpace(text)
	}
	return q
}

// toolResult pairs a tool turn with the name of the call that produced it.
type toolResult struct {
	Name    string
	Result  string
	IsError bool
}

// results returns the tool results after the last user turn.
func results(transcript []types.Turn) []toolResult {
	start := 0
	for i := len(transcript) - 1; i >= 0; i-- {
		if transcript[i].Role == types.RoleUser {
			start = i + 1
			break
		}
	}
	names := map[string]string{}
	var out []toolResult
	for _, turn := range transcript[start:] {
		switch {
		case turn.Role == types.RoleAssistant && turn.Call != nil:
			names[turn.Call.ID] = turn.Call.Name
		case turn.Role == types.RoleTool:
			out = append(out, toolResult{Name: names[turn.CallID], Result: turn.Result, IsError: turn.IsError})
		}
	}
	return out
}

func call(req types.DecisionRequest, name string, args any) types.Decision {
	raw, err := json.Marshal(args)
	if err != nil {
		raw = []byte("{}")
	}
	return types.Decision{Call: &types.ToolCall{
		ID:        fmt.Sprintf("rules_%s_%d", req.Agent, len(req.Transcript)),
		Name:      name,
		Arguments: raw,
	}}
}

func joinResults(done []toolResult) string {
	parts := make([]string, 0, len(done))
	for _, r := range done {
		if s := strings.TrimSpace(r.Result); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n\n")
}
