package authz

import (
	"os"

	"github.com/gatehouse-io/authz-go/internal/policy"
)

// ProvideChecker selects the relationship checker from the environment:
// GATEHOUSE_REBAC=fga wires OpenFGA, anything else uses the request-context
// checker.
func ProvideChecker() (policy.RelationshipChecker, error) {
	switch os.Getenv("GATEHOUSE_REBAC") {
	case "fga":
		return NewOpenFGAChecker(OpenFGAConfig{
			APIURL:  getenv("FGA_API_URL", "http://localhost:8080"),
			StoreID: os.Getenv("FGA_STORE_ID"),
			ModelID: os.Getenv("FGA_MODEL_ID"),
		})
	default:
		return policy.ContextChecker{}, nil
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
