package vectorstore

import (
	"context"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/ovterrors"
)

// VikingDBDriver targets a managed VikingDB deployment. The wire protocol
// and endpoint paths match the generic http backend; what differs is the
// project header every request carries.
type VikingDBDriver struct {
	client *remoteClient
}

// NewVikingDBDriver creates a driver against cfg.URL. The project header
// is always "default"; no Config field selects another project.
func NewVikingDBDriver(cfg Config) (*VikingDBDriver, error) {
	if cfg.URL == "" {
		return nil, ovterrors.InvalidArgumentf("vikingdb vector backend requires a URL")
	}
	headers := map[string]string{"X-Vikingdb-Project": "default"}
	client, err := newRemoteClient("vikingdb", cfg, headers)
	if err != nil {
		return nil, err
	}
	return &VikingDBDriver{client: client}, nil
}

func (d *VikingDBDriver) Compile(e filter.Expr) (interface{}, error) {
	dsl, err := compileWireDSL("vikingdb", e, d.client.compileRestrictions)
	if err != nil {
		return nil, err
	}
	if dsl == nil {
		return nil, nil
	}
	return dsl, nil
}

func (d *VikingDBDriver) HasCollection(ctx context.Context, name string) (bool, error) {
	return d.client.hasCollection(ctx, name)
}

func (d *VikingDBDriver) GetCollection(ctx context.Context, name string) (Collection, error) {
	return d.client.getCollection(ctx, name)
}

func (d *VikingDBDriver) CreateCollection(ctx context.Context, name string, schema []FieldSchema) (Collection, error) {
	return d.client.createCollection(ctx, name, schema)
}

func (d *VikingDBDriver) DropCollection(ctx context.Context, name string) error {
	return d.client.dropCollection(ctx, name)
}

func (d *VikingDBDriver) ListCollections(ctx context.Context) ([]string, error) {
	return d.client.listCollections(ctx)
}

func (d *VikingDBDriver) Close() error {
	return d.client.close()
}
