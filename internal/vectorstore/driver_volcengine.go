package vectorstore

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/ovterrors"
)

// volcengineUnsupported lists the filter nodes the cloud service's filter
// language cannot express; compiling one fails with InvalidArgument
// instead of producing a query the service would mangle.
var volcengineUnsupported = map[string]bool{
	"regex":    true,
	"contains": true,
}

// VolcengineDriver targets the Volcengine cloud vector service. Requests
// are signed with an HMAC of the access/secret key pair; filter support
// is narrower than the self-hosted backends (no regex/contains).
type VolcengineDriver struct {
	client *remoteClient
}

// NewVolcengineDriver creates a driver against cfg.URL using
// cfg.AccessKey/cfg.SecretKey credentials.
func NewVolcengineDriver(cfg Config) (*VolcengineDriver, error) {
	if cfg.URL == "" {
		return nil, ovterrors.InvalidArgumentf("volcengine vector backend requires a URL")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, ovterrors.InvalidArgumentf("volcengine vector backend requires access and secret keys")
	}
	region := cfg.Region
	if region == "" {
		region = "cn-beijing"
	}
	headers := map[string]string{
		"X-Volc-Accesskey": cfg.AccessKey,
		"X-Volc-Signature": signCredential(cfg.AccessKey, cfg.SecretKey, region),
		"X-Volc-Region":    region,
	}
	client, err := newRemoteClient("volcengine", cfg, headers)
	if err != nil {
		return nil, err
	}
	client.compileRestrictions = volcengineUnsupported
	return &VolcengineDriver{client: client}, nil
}

func signCredential(accessKey, secretKey, region string) string {
	mac := hmac.New(sha256.New, []byte(secretKey))
	mac.Write([]byte(accessKey + "/" + region + "/vikingdb"))
	return hex.EncodeToString(mac.Sum(nil))
}

func (d *VolcengineDriver) Compile(e filter.Expr) (interface{}, error) {
	dsl, err := compileWireDSL("volcengine", e, volcengineUnsupported)
	if err != nil {
		return nil, err
	}
	if dsl == nil {
		return nil, nil
	}
	return dsl, nil
}

func (d *VolcengineDriver) HasCollection(ctx context.Context, name string) (bool, error) {
	return d.client.hasCollection(ctx, name)
}

func (d *VolcengineDriver) GetCollection(ctx context.Context, name string) (Collection, error) {
	return d.client.getCollection(ctx, name)
}

func (d *VolcengineDriver) CreateCollection(ctx context.Context, name string, schema []FieldSchema) (Collection, error) {
	return d.client.createCollection(ctx, name, schema)
}

func (d *VolcengineDriver) DropCollection(ctx context.Context, name string) error {
	return d.client.dropCollection(ctx, name)
}

func (d *VolcengineDriver) ListCollections(ctx context.Context) ([]string, error) {
	return d.client.listCollections(ctx)
}

func (d *VolcengineDriver) Close() error {
	return d.client.close()
}
