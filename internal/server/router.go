package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/gatehouse-io/authz-go/internal/authz"
	"github.com/gatehouse-io/authz-go/internal/breakglass"
	"github.com/gatehouse-io/authz-go/internal/continuous"
	"github.com/gatehouse-io/authz-go/internal/delegation"
	"github.com/gatehouse-io/authz-go/internal/elevation"
	"github.com/gatehouse-io/authz-go/internal/handlers"
	mw2 "github.com/gatehouse-io/authz-go/internal/mw"
	"github.com/gatehouse-io/authz-go/internal/store"
	"github.com/gatehouse-io/authz-go/internal/token"
	"github.com/gatehouse-io/authz-go/internal/version"
)

type Options struct {
	EnableCORS bool
}

type Deps struct {
	Engine      *authz.Engine
	Store       store.PolicyStore
	Delegations *delegation.Engine
	BreakGlass  *breakglass.Manager
	Elevations  *elevation.Granter
	Connections *continuous.Manager
	Tokens      *token.Store
}

func BuildRouter(d Deps, opts Options, mw ...func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()

	// baseline
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	if opts.EnableCORS {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Content-Type", "Authorization"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	for _, m := range mw {
		r.Use(m)
	}

	// tracing + logger
	r.Use(mw2.Trace())
	r.Use(mw2.Logger(mw2.LogOpts{
		SkipPaths:     []string{"/healthz", "/version"},
		RedactHeaders: []string{"Authorization"},
	}))

	eval := handlers.NewEvaluateHandler(d.Engine)
	conns := handlers.NewConnectionsHandler(d.Connections)
	dels := handlers.NewDelegationsHandler(d.Delegations)
	bg := handlers.NewBreakGlassHandler(d.BreakGlass)
	elev := handlers.NewElevationsHandler(d.Elevations)

	r.Get("/healthz", healthCheckHandler)
	r.Get("/version", handlers.VersionHandler)

	r.Route("/v1", func(v1 chi.Router) {
		v1.Post("/evaluate", eval.ServeHTTP)
		v1.Post("/evaluate/batch", eval.Batch)

		v1.Post("/connections", conns.Establish)
		v1.Get("/connections/{connectionId}", conns.Get)
		v1.Post("/connections/{connectionId}/revalidate", conns.Revalidate)
		v1.Delete("/connections/{connectionId}", conns.Close)

		v1.Post("/delegations", dels.Create)
		v1.Get("/delegations/{delegationId}", dels.Get)
		v1.Put("/delegations/{delegationId}/approval-chain", dels.ConfigureChain)
		v1.Post("/delegations/{delegationId}/approvals", dels.Approve)
		v1.Delete("/delegations/{delegationId}", dels.Revoke)

		v1.Post("/breakglass", bg.Request)
		v1.Get("/breakglass/{requestId}", bg.Get)
		v1.Post("/breakglass/{requestId}/approvals", bg.Approve)
		v1.Post("/breakglass/{requestId}/deny", bg.Deny)

		v1.Post("/elevations", elev.Request)

		if d.Tokens != nil {
			v1.Post("/tokens/introspect", handlers.NewIntrospectHandler(d.Tokens).ServeHTTP)
		}
	})

	if d.Store != nil {
		policies := handlers.NewPoliciesHandler(d.Store)
		r.Route("/admin/tenants/{tenant}/policies", func(r chi.Router) {
			r.Post("/", policies.Create)
			r.Get("/", policies.List)
			r.Get("/{policyId}", policies.Get)
			r.Put("/{policyId}", policies.Update)
			r.Delete("/{policyId}", policies.Delete)
		})
	}

	return r
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"version": version.Version,
	})
}
