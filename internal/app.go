// internal/app.go
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	router "herdvest-agent/internal/api"
	"herdvest-agent/internal/api/handler"
	"herdvest-agent/internal/config"
	"herdvest-agent/internal/executor"
	"herdvest-agent/internal/network"
	"herdvest-agent/internal/provider"
	"herdvest-agent/internal/service"
	"herdvest-agent/internal/store"
	"herdvest-agent/internal/util"
	"herdvest-agent/internal/wallet"
	"herdvest-agent/pkg/kv"
)

// Application holds all the initialized components of the agent.
type Application struct {
	Config *config.AppConfig
	Logger *slog.Logger
	KV     *kv.Store

	Provider provider.Client
	Session  wallet.Session
	Guard    *network.Guard
	Executor executor.Executor
	Records  store.RecordStore

	Ledger          *service.Ledger
	Roles           *service.RoleView
	ContractService service.ContractService

	// HTTP API
	HTTPHandler http.Handler
}

// NewApplication creates a new Application instance.
func NewApplication() *Application {
	return &Application{}
}

// Initialize initializes all application components.
func (app *Application) Initialize(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	app.Config = cfg

	util.InitLogger()
	app.Logger = util.GetLogger()
	app.Logger.Info("Application configuration loaded successfully.")

	kvStore, err := kv.Open(cfg.ProfileDir)
	if err != nil {
		return fmt.Errorf("failed to open profile store: %w", err)
	}
	app.KV = kvStore
	app.Logger.Info("Profile store opened.", "dir", cfg.ProfileDir)

	app.Provider = provider.NewHTTPClient(cfg.ProviderURL, cfg.ProviderEventsURL, app.Logger)
	app.Session = wallet.NewSession(app.Provider, cfg.SessionPollInterval, app.Logger)
	app.Guard = network.NewGuard(app.Provider, cfg.Chain, app.Logger)
	app.Executor = executor.NewExecutor(app.Provider, cfg.ConfirmPollInterval, app.Logger)
	app.Records = store.NewRecordStore(kvStore, cfg.ReconcileInterval, app.Logger)
	app.Logger.Info("Core components initialized.")

	app.Ledger = service.NewLedger(app.Provider, cfg.ContractAddress)
	app.Roles = service.NewRoleView(app.Ledger, app.Logger)
	app.ContractService = service.NewContractService(
		app.Session,
		app.Guard,
		app.Executor,
		app.Records,
		app.Ledger,
		app.Roles,
		cfg.Chain.CurrencySymbol,
		app.Logger,
	)
	app.Logger.Info("Services initialized.")

	h := handler.NewHandler(app.ContractService, app.Records, app.Session, app.Guard, app.Logger)
	app.HTTPHandler = router.NewRouter(h, app.Logger)
	app.Logger.Info("HTTP router and handlers initialized.")

	return nil
}

// Start launches the background loops: the session's event/poll merge and
// the record store's cross-process watcher. They stop when ctx is
// canceled.
func (app *Application) Start(ctx context.Context) {
	go app.Session.Run(ctx)
	go app.Records.Run(ctx)
	app.Logger.Info("Background loops started.")
}

// Shutdown gracefully shuts down application resources.
func (app *Application) Shutdown(ctx context.Context) error {
	app.Logger.Info("Shutting down application...")
	if app.Executor != nil {
		app.Executor.Close()
	}
	if app.KV != nil {
		if err := app.KV.Close(); err != nil {
			app.Logger.Error("Failed to close profile store", "error", err)
			return fmt.Errorf("failed to close profile store: %w", err)
		}
		app.Logger.Info("Profile store closed.")
	}
	app.Logger.Info("Application shut down gracefully.")
	return nil
}
