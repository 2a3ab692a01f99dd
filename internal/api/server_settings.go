package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/dgnsrekt/bet_agent/internal/coordinator"
	"github.com/dgnsrekt/bet_agent/internal/settings"
)

func registerSettingsHandlers(api huma.API, svc Service) {
	type settingsOutput struct {
		Body settings.Settings
	}
	huma.Register(api, huma.Operation{OperationID: "get-settings", Method: http.MethodGet, Path: "/api/v1/settings", Summary: "Get agent settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*settingsOutput, error) {
			out := &settingsOutput{}
			out.Body = svc.GetSettings()
			return out, nil
		})

	type putSettingsInput struct {
		Body settings.Settings
	}
	huma.Register(api, huma.Operation{OperationID: "put-settings", Method: http.MethodPut, Path: "/api/v1/settings", Summary: "Update agent settings", Tags: []string{"Settings"}},
		func(ctx context.Context, input *putSettingsInput) (*settingsOutput, error) {
			if err := svc.PutSettings(input.Body); err != nil {
				return nil, mapErr(err)
			}
			out := &settingsOutput{}
			out.Body = svc.GetSettings()
			return out, nil
		})

	type telegramStatusOutput struct {
		Body coordinator.TelegramStatus
	}
	huma.Register(api, huma.Operation{OperationID: "telegram-status", Method: http.MethodGet, Path: "/api/v1/telegram/status", Summary: "Check telegram notification configuration on the tracking service", Tags: []string{"Settings"}},
		func(ctx context.Context, input *struct{}) (*telegramStatusOutput, error) {
			status, err := svc.TelegramStatus(ctx)
			if err != nil {
				return nil, mapErr(err)
			}
			out := &telegramStatusOutput{}
			out.Body = status
			return out, nil
		})
}
