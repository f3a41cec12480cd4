package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/Additional-Code/gobady/internal/cache"
	"github.com/Additional-Code/gobady/internal/config"
	"github.com/Additional-Code/gobady/internal/database"
	"github.com/Additional-Code/gobady/internal/llm"
	"github.com/Additional-Code/gobady/internal/logger"
	"github.com/Additional-Code/gobady/internal/messaging"
	"github.com/Additional-Code/gobady/internal/notification"
	"github.com/Additional-Code/gobady/internal/observability"
	repositorycatalog "github.com/Additional-Code/gobady/internal/repository/catalog"
	repositoryorder "github.com/Additional-Code/gobady/internal/repository/order"
	grpcserver "github.com/Additional-Code/gobady/internal/server/grpc"
	httpserver "github.com/Additional-Code/gobady/internal/server/http"
	servicecatalog "github.com/Additional-Code/gobady/internal/service/catalog"
	servicechatbot "github.com/Additional-Code/gobady/internal/service/chatbot"
	serviceorder "github.com/Additional-Code/gobady/internal/service/order"
	transporthttp "github.com/Additional-Code/gobady/internal/transport/http"
	"github.com/Additional-Code/gobady/internal/worker"
	workerorder "github.com/Additional-Code/gobady/internal/worker/order"
)

// Core provides the foundational modules shared across executables.
var Core = fx.Options(
	config.Module,
	cache.Module,
	database.Module,
	logger.Module,
	messaging.Module,
	notification.Module,
	observability.Module,
	repositorycatalog.Module,
	repositoryorder.Module,
	servicecatalog.Module,
	serviceorder.Module,
)

// HTTP wires the storefront API (HTTP plus gRPC health) on top of the core modules.
var HTTP = fx.Options(
	Core,
	llm.Module,
	servicechatbot.Module,
	httpserver.Module,
	grpcserver.Module,
	transporthttp.Module,
)

// Worker exposes background worker processing.
var Worker = fx.Options(
	Core,
	worker.Module,
	workerorder.Module,
)

// Module is the default application wiring (API only).
var Module = fx.Options(
	HTTP,
	fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
		return logger.FxEvent(l)
	}),
)
