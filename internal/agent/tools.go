package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"kite-agent-bridge/internal/interfaces"
	"kite-agent-bridge/internal/types"
)

// Tool is one operation a capability may call. Privileged tools need a live
// broker session and always run after an authentication check.
type Tool struct {
	Name        string
	Description string
	Privileged  bool
	Schema      json.RawMessage
	Run         func(ctx context.Context, args json.RawMessage) types.Envelope
}

// Spec describes the tool to a decider.
func (t Tool) Spec() types.ToolSpec {
	return types.ToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.Schema}
}

type noArgs struct{}

// newTool builds a tool from a typed argument struct. The schema is reflected
// from A and arguments are decoded with unknown fields rejected.
func newTool[A any](name, description string, privileged bool, fn func(ctx context.Context, args A) types.Envelope) Tool {
	return Tool{
		Name:        name,
		Description: description,
		Privileged:  privileged,
		Schema:      schemaOf[A](),
		Run: func(ctx context.Context, raw json.RawMessage) types.Envelope {
			var a A
			if err := decodeArgs(raw, &a); err != nil {
				return types.Failure(fmt.Sprintf("Invalid arguments for %s: %v", name, err))
			}
			return fn(ctx, a)
		},
	}
}

func schemaOf[A any]() json.RawMessage {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(new(A))
	s.Version = ""
	b, err := json.Marshal(s)
	if err != nil {
		return json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return b
}

func decodeArgs(raw json.RawMessage, v any) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type deleteGTTArgs struct {
	TriggerID int `json:"trigger_id" jsonschema:"minimum=1,description=GTT trigger id"`
}

type delegateArgs struct {
	Task string `json:"task" jsonschema:"description=The request for the agent in plain English including any values it needs"`
}

// AuthTools is the login capability's only tool.
func AuthTools(client interfaces.ToolClient) []Tool {
	return []Tool{
		newTool("initiate_login_flow", descInitiateLogin, false, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.InitiateLoginFlow(ctx)
		}),
	}
}

// KiteTools returns the session tools and every privileged trading tool.
func KiteTools(client interfaces.ToolClient) []Tool {
	return []Tool{
		newTool("check_authentication_status", descCheckAuth, false, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.CheckAuthenticationStatus(ctx)
		}),
		newTool("set_access_token", descSetToken, false, func(ctx context.Context, a types.SetAccessTokenReq) types.Envelope {
			return client.SetAccessToken(ctx, a.AccessToken)
		}),
		newTool("renew_access_token", descRenewToken, false, func(ctx context.Context, a types.RenewAccessTokenReq) types.Envelope {
			return client.RenewAccessToken(ctx, a.RefreshToken)
		}),
		newTool("get_profile", descProfile, true, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.GetProfile(ctx)
		}),
		newTool("get_margins", descMargins, true, func(ctx context.Context, a types.MarginsReq) types.Envelope {
			return client.GetMargins(ctx, a.Segment)
		}),
		newTool("get_holdings", descHoldings, true, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.GetHoldings(ctx)
		}),
		newTool("get_positions", descPositions, true, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.GetPositions(ctx)
		}),
		newTool("convert_position", descConvert, true, func(ctx context.Context, a types.ConvertPositionReq) types.Envelope {
			return client.ConvertPosition(ctx, a)
		}),
		newTool("place_order", descPlaceOrder, true, func(ctx context.Context, a types.OrderReq) types.Envelope {
			return client.PlaceOrder(ctx, a)
		}),
		newTool("modify_order", descModifyOrder, true, func(ctx context.Context, a types.ModifyOrderReq) types.Envelope {
			return client.ModifyOrder(ctx, a)
		}),
		newTool("cancel_order", descCancelOrder, true, func(ctx context.Context, a types.CancelOrderReq) types.Envelope {
			return client.CancelOrder(ctx, a)
		}),
		newTool("exit_order", descExitOrder, true, func(ctx context.Context, a types.CancelOrderReq) types.Envelope {
			return client.ExitOrder(ctx, a)
		}),
		newTool("get_trades", descTrades, true, func(ctx context.Context, _ noArgs) types.Envelope {
			return client.GetTrades(ctx)
		}),
		newTool("place_gtt", descPlaceGTT, true, func(ctx context.Context, a types.GTTReq) types.Envelope {
			return client.PlaceGTT(ctx, a)
		}),
		newTool("delete_gtt", descDeleteGTT, true, func(ctx context.Context, a deleteGTTArgs) types.Envelope {
			return client.DeleteGTT(ctx, a.TriggerID)
		}),
		newTool("get_historical_data", descHistorical, true, func(ctx context.Context, a types.HistoricalReq) types.Envelope {
			return client.GetHistoricalData(ctx, a)
		}),
	}
}

// ResearchTools wraps the researcher as a tool. It never touches the broker.
func ResearchTools(researcher interfaces.Researcher) []Tool {
	return []Tool{
		newTool("web_search", descWebSearch, false, func(ctx context.Context, a types.ResearchReq) types.Envelope {
			res, err := researcher.Research(ctx, a.Query)
			if err != nil {
				return types.Failure("Research failed: " + err.Error())
			}
			return types.Success(res, "")
		}),
	}
}

// AllTools lists every tool by name, used by the CLI to call one directly.
func AllTools(client interfaces.ToolClient, researcher interfaces.Researcher) map[string]Tool {
	out := map[string]Tool{}
	tools := append(AuthTools(client), KiteTools(client)...)
	if researcher != nil {
		tools = append(tools, ResearchTools(researcher)...)
	}
	for _, t := range tools {
		out[t.Name] = t
	}
	return out
}
