package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse-io/authz-go/internal/audit"
	"github.com/gatehouse-io/authz-go/internal/authz"
	"github.com/gatehouse-io/authz-go/internal/breakglass"
	"github.com/gatehouse-io/authz-go/internal/continuous"
	"github.com/gatehouse-io/authz-go/internal/delegation"
	"github.com/gatehouse-io/authz-go/internal/elevation"
	"github.com/gatehouse-io/authz-go/internal/store"
	"github.com/gatehouse-io/authz-go/internal/token"
)

type AppConfig struct {
	// PolicyBackend selects "memory" or "redis".
	PolicyBackend        string
	RevalidationInterval time.Duration
	EnableCORS           bool
}

// App wires the engine and its collaborators: policy store, synthetic grant
// sources, continuous authorization manager, token store, audit sink.
type App struct {
	Engine      *authz.Engine
	Store       store.PolicyStore
	Defaults    *authz.TenantDefaults
	Delegations *delegation.Engine
	BreakGlass  *breakglass.Manager
	Elevations  *elevation.Granter
	Connections *continuous.Manager
	Tokens      *token.Store

	cors bool
}

func NewApp(ctx context.Context, cfg AppConfig) (*App, error) {
	sink := audit.NewSlogSink(slog.Default())

	var ps store.PolicyStore
	switch cfg.PolicyBackend {
	case "redis":
		client, err := store.NewRedisClient(ctx)
		if err != nil {
			return nil, err
		}
		ps = store.NewRedisStore(client)
	default:
		ps = store.NewMemoryStore()
	}

	checker, err := authz.ProvideChecker()
	if err != nil {
		return nil, err
	}

	tokens := token.NewStore()
	bg := breakglass.NewManager(breakglass.DefaultConfig(), tokens, sink)
	elev := elevation.NewGranter(tokens, sink)

	defaults := authz.NewTenantDefaults()
	engine := authz.New(authz.Options{
		Store:    ps,
		Checker:  checker,
		Defaults: defaults,
		Sink:     sink,
	})

	dels := delegation.NewEngine(engine, sink)
	engine.AddSource(dels)
	engine.AddSource(bg)
	engine.AddSource(elev)

	conns := continuous.NewManager(engine, sink)
	if cfg.RevalidationInterval > 0 {
		conns.SetInterval(cfg.RevalidationInterval)
	}
	conns.AddDeadlineHint(elev.NextExpiry)
	dels.OnRevoke(conns.OnPermissionChange)

	return &App{
		Engine:      engine,
		Store:       ps,
		Defaults:    defaults,
		Delegations: dels,
		BreakGlass:  bg,
		Elevations:  elev,
		Connections: conns,
		Tokens:      tokens,
		cors:        cfg.EnableCORS,
	}, nil
}

func (a *App) Router() http.Handler {
	return BuildRouter(Deps{
		Engine:      a.Engine,
		Store:       a.Store,
		Delegations: a.Delegations,
		BreakGlass:  a.BreakGlass,
		Elevations:  a.Elevations,
		Connections: a.Connections,
		Tokens:      a.Tokens,
	}, Options{EnableCORS: a.cors})
}

func (a *App) Shutdown() {
	a.Connections.Shutdown()
	a.BreakGlass.Shutdown()
}
