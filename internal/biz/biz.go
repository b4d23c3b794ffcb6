// Package biz contains business logic layer implementations.
// This layer holds the dispatch orchestration and domain rules.
package biz

import (
	"github.com/arithgrey/service-whatsapp/internal/data"
	"github.com/arithgrey/service-whatsapp/pkg/whatsapp"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewMessengerUseCase,
	NewWebhookUseCase,
	NewScheduledDispatcher,
	NewDispatchBreaker,
	NewProviderClient,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(MessageRepo), new(*data.MessageRepo)),
	wire.Bind(new(TemplateRepo), new(*data.TemplateRepo)),
	wire.Bind(new(AlertService), new(*data.LogAlertService)),
	wire.Bind(new(ProviderClient), new(*whatsapp.Client)),
)
