package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gatehouse-io/authz-go/internal/server"
)

func main() {
	app, err := server.NewApp(context.Background(), server.AppConfig{
		PolicyBackend:        os.Getenv("GATEHOUSE_POLICY_BACKEND"),
		RevalidationInterval: revalidationInterval(),
		EnableCORS:           true,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer app.Shutdown()

	addr := os.Getenv("GATEHOUSE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8089"
	}
	log.Printf("listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Fatal(srv.ListenAndServe())
}

func revalidationInterval() time.Duration {
	if v := os.Getenv("GATEHOUSE_REVALIDATION_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil {
			return d
		}
	}
	return 0 // manager default
}
