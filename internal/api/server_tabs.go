package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/bet_agent/internal/cdpcontrol"
)

func registerTabHandlers(api huma.API, svc Service) {
	type healthOutput struct {
		Body struct {
			Status string `json:"status"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "health", Method: http.MethodGet, Path: "/health", Summary: "Health check", Tags: []string{"Health"}},
		func(ctx context.Context, input *struct{}) (*healthOutput, error) {
			out := &healthOutput{}
			out.Body.Status = "ok"
			return out, nil
		})

	type listTabsOutput struct {
		Body struct {
			Tabs []cdpcontrol.TabInfo `json:"tabs"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "list-tabs", Method: http.MethodGet, Path: "/api/v1/tabs", Summary: "List open sportsbook tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*listTabsOutput, error) {
			tabs, err := svc.ListTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &listTabsOutput{}
			out.Body.Tabs = tabs
			return out, nil
		})

	type refreshTabsOutput struct {
		Body struct {
			Reloaded int `json:"reloaded"`
		}
	}
	huma.Register(api, huma.Operation{OperationID: "refresh-tabs", Method: http.MethodPost, Path: "/api/v1/tabs/refresh", Summary: "Reload all open sportsbook tabs", Tags: []string{"Tabs"}},
		func(ctx context.Context, input *struct{}) (*refreshTabsOutput, error) {
			n, err := svc.RefreshTabs(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &refreshTabsOutput{}
			out.Body.Reloaded = n
			return out, nil
		})
}
