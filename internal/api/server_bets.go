package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/bet_agent/internal/command"
	"github.com/dgnsrekt/bet_agent/internal/coordinator"
)

func registerBetHandlers(api huma.API, svc Service) {
	type placeBetInput struct {
		Body struct {
			League  string  `json:"league,omitempty" doc:"League, informational only"`
			Game    string  `json:"game" doc:"Game text expected on the bet row, e.g. team names"`
			BetType string  `json:"bet_type" doc:"Bet description, e.g. 'Over 220.5'"`
			Line    string  `json:"line,omitempty" doc:"Line text, falls back to bet_type when empty"`
			Odds    int     `json:"odds,omitempty" doc:"American odds, e.g. -110"`
			Wager   float64 `json:"wager,omitempty" doc:"Stake amount"`
		}
	}
	type placeBetOutput struct {
		Body coordinator.PlaceResult
	}
	huma.Register(api, huma.Operation{OperationID: "place-bet", Method: http.MethodPost, Path: "/api/v1/bets/place", Summary: "Place a bet on the open sportsbook tab", Tags: []string{"Bets"}},
		func(ctx context.Context, input *placeBetInput) (*placeBetOutput, error) {
			cmd := command.Command{
				League:  input.Body.League,
				Game:    input.Body.Game,
				BetType: input.Body.BetType,
				Line:    input.Body.Line,
				Odds:    input.Body.Odds,
				Wager:   input.Body.Wager,
			}
			result, err := svc.PlaceBet(ctx, cmd)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &placeBetOutput{}
			out.Body = result
			return out, nil
		})
}
