package authz

import (
	"context"
	"fmt"

	fga "github.com/openfga/go-sdk/client"

	"github.com/gatehouse-io/authz-go/internal/types"
)

// OpenFGAChecker answers ReBAC conditions against an external OpenFGA
// store instead of the relationship edges carried in the request context.
type OpenFGAChecker struct {
	c *fga.OpenFgaClient
}

type OpenFGAConfig struct {
	APIURL  string
	StoreID string
	ModelID string // optional but recommended in prod
}

func NewOpenFGAChecker(cfg OpenFGAConfig) (*OpenFGAChecker, error) {
	conf := &fga.ClientConfiguration{
		ApiUrl:  cfg.APIURL,
		StoreId: cfg.StoreID,
	}
	if cfg.ModelID != "" {
		conf.AuthorizationModelId = cfg.ModelID
	}
	client, err := fga.NewSdkClient(conf)
	if err != nil {
		return nil, fmt.Errorf("openfga_client_init: %w", err)
	}
	return &OpenFGAChecker{c: client}, nil
}

func (o *OpenFGAChecker) HasRelation(ctx context.Context, subject, relation, object string, _ types.RequestContext) (bool, error) {
	checkReq := fga.ClientCheckRequest{
		User:     subject,  // e.g. "user:alice"
		Relation: relation, // e.g. "member_of"
		Object:   object,   // e.g. "project:x"
	}
	resp, err := o.c.Check(ctx).Body(checkReq).Execute()
	if err != nil {
		return false, fmt.Errorf("fga_check_error: %w", err)
	}
	return resp.Allowed != nil && *resp.Allowed, nil
}
