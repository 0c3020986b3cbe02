// Package remote implements the Remote Client (component G): a MongoDB
// client over the curated annotation library, grounded in
// original_source/src/tagscout/client_temp.rs.
package remote

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"logscout/internal/annotation"
)

// Config holds connection settings. Defaults are safe local placeholders —
// the real connection string is supplied only through LOGSCOUT_MONGODB_URI
// (see SPEC_FULL.md §6); no production credential is ever compiled in.
type Config struct {
	URI                    string
	Database               string
	ConnectionTimeout      time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
}

// DefaultConfig returns the connection policy used when no environment
// override is present.
func DefaultConfig() Config {
	return Config{
		URI:                    "mongodb://localhost:27017",
		Database:               "task_TagScoutLibrary",
		ConnectionTimeout:      10 * time.Second,
		ServerSelectionTimeout: 10 * time.Second,
		MaxPoolSize:            10,
		MinPoolSize:            1,
	}
}

const (
	annotationsSuffix = "_annotations"
	configSuffix      = "_config"
	enumsSuffix       = "_enums"
	appName           = "LogScout-LSP-Server"
)

// Error distinguishes the remote-client failure taxonomy from
// SPEC_FULL.md §7 without requiring callers to string-match Error().
type Error struct {
	Kind    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func wrapErr(kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Client wraps a mongo-driver connection to the annotation library.
type Client struct {
	driver   *mongo.Client
	database string
	config   Config
	logger   *zap.Logger
}

// Connect dials MongoDB per cfg. A nil logger is replaced with zap.NewNop().
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := options.Client().
		ApplyURI(cfg.URI).
		SetAppName(appName).
		SetConnectTimeout(cfg.ConnectionTimeout).
		SetServerSelectionTimeout(cfg.ServerSelectionTimeout).
		SetMaxPoolSize(cfg.MaxPoolSize).
		SetMinPoolSize(cfg.MinPoolSize)

	driver, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, wrapErr("ConnectionError", "failed to connect to mongodb", err)
	}
	return &Client{driver: driver, database: cfg.Database, config: cfg, logger: logger}, nil
}

// Close disconnects the underlying driver client.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Disconnect(ctx)
}

// TestConnection pings the admin database, verifying the connection is
// live and authenticated.
func (c *Client) TestConnection(ctx context.Context) error {
	if err := c.driver.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		return wrapErr("ConnectionError", "ping failed", err)
	}
	return nil
}

// ListProducts enumerates every product name with an annotation library by
// listing collections and stripping known suffixes, deduplicating the
// result.
func (c *Client) ListProducts(ctx context.Context) ([]string, error) {
	names, err := c.driver.Database(c.database).ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, wrapErr("QueryError", "failed to list collections", err)
	}
	seen := make(map[string]struct{})
	for _, name := range names {
		product, ok := stripKnownSuffix(name)
		if !ok {
			continue
		}
		seen[product] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func stripKnownSuffix(collection string) (string, bool) {
	for _, suffix := range []string{annotationsSuffix, configSuffix, enumsSuffix} {
		if strings.HasSuffix(collection, suffix) {
			return strings.TrimSuffix(collection, suffix), true
		}
	}
	return "", false
}

// FetchProductAnnotations queries "{product}_annotations" for every
// production-ready annotation. A per-document decode failure is logged and
// skipped rather than aborting the whole fetch.
func (c *Client) FetchProductAnnotations(ctx context.Context, product string) ([]annotation.Annotation, error) {
	return c.fetchFromCollection(ctx, product+annotationsSuffix, bson.D{{Key: "production", Value: true}})
}

func (c *Client) fetchFromCollection(ctx context.Context, collection string, filter bson.D) ([]annotation.Annotation, error) {
	cur, err := c.driver.Database(c.database).Collection(collection).Find(ctx, filter)
	if err != nil {
		return nil, wrapErr("QueryError", fmt.Sprintf("failed to query %s", collection), err)
	}
	defer cur.Close(ctx)

	var out []annotation.Annotation
	for cur.Next(ctx) {
		var a annotation.Annotation
		if err := cur.Decode(&a); err != nil {
			c.logger.Warn("failed to decode annotation document, skipping",
				zap.String("collection", collection), zap.Error(err))
			continue
		}
		out = append(out, a)
	}
	if err := cur.Err(); err != nil {
		return out, wrapErr("QueryError", fmt.Sprintf("cursor error on %s", collection), err)
	}
	return out, nil
}

// ProductAnnotations pairs a product label with its fetched annotations.
type ProductAnnotations struct {
	Product     string
	Annotations []annotation.Annotation
}

// FetchAllAnnotations fetches annotations for every product, tolerating a
// per-product failure: the failing product is logged and skipped so one
// broken collection never blocks a full sync.
func (c *Client) FetchAllAnnotations(ctx context.Context) ([]ProductAnnotations, error) {
	products, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]ProductAnnotations, 0, len(products))
	for _, product := range products {
		annotations, err := c.FetchProductAnnotations(ctx, product)
		if err != nil {
			c.logger.Warn("failed to fetch product annotations, skipping product",
				zap.String("product", product), zap.Error(err))
			continue
		}
		out = append(out, ProductAnnotations{Product: product, Annotations: annotations})
	}
	return out, nil
}

// ConfigDoc is a product-level configuration document, supplemental to the
// core annotation fetch path (grounded in client_temp.rs's
// TagScoutConfig_Data).
type ConfigDoc struct {
	ID         string   `bson:"_id,omitempty" json:"id"`
	Categories []string `bson:"categories" json:"categories"`
	Severities []string `bson:"severities" json:"severities"`
}

// EnumDoc is a product-level named enum document (client_temp.rs's
// TagScoutEnum).
type EnumDoc struct {
	ID         string            `bson:"_id,omitempty" json:"id"`
	Name       string            `bson:"name" json:"name"`
	Production bool              `bson:"production" json:"production"`
	Enum       map[string]string `bson:"enum" json:"enum"`
}

// FetchProductConfig fetches "{product}_config", if present.
func (c *Client) FetchProductConfig(ctx context.Context, product string) ([]ConfigDoc, error) {
	cur, err := c.driver.Database(c.database).Collection(product+configSuffix).Find(ctx, bson.D{})
	if err != nil {
		return nil, wrapErr("QueryError", fmt.Sprintf("failed to query %s config", product), err)
	}
	defer cur.Close(ctx)
	var out []ConfigDoc
	for cur.Next(ctx) {
		var d ConfigDoc
		if err := cur.Decode(&d); err != nil {
			c.logger.Warn("failed to decode config document, skipping", zap.String("product", product), zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out, cur.Err()
}

// FetchProductEnums fetches "{product}_enums", if present.
func (c *Client) FetchProductEnums(ctx context.Context, product string) ([]EnumDoc, error) {
	cur, err := c.driver.Database(c.database).Collection(product+enumsSuffix).Find(ctx, bson.D{})
	if err != nil {
		return nil, wrapErr("QueryError", fmt.Sprintf("failed to query %s enums", product), err)
	}
	defer cur.Close(ctx)
	var out []EnumDoc
	for cur.Next(ctx) {
		var d EnumDoc
		if err := cur.Decode(&d); err != nil {
			c.logger.Warn("failed to decode enum document, skipping", zap.String("product", product), zap.Error(err))
			continue
		}
		out = append(out, d)
	}
	return out, cur.Err()
}

// FetchAllConfigs fetches every product's config document, tolerating
// per-product absence/failure.
func (c *Client) FetchAllConfigs(ctx context.Context) (map[string][]ConfigDoc, error) {
	products, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]ConfigDoc, len(products))
	for _, product := range products {
		docs, err := c.FetchProductConfig(ctx, product)
		if err != nil {
			c.logger.Warn("failed to fetch product config, skipping", zap.String("product", product), zap.Error(err))
			continue
		}
		out[product] = docs
	}
	return out, nil
}

// FetchAllEnums fetches every product's enum documents, tolerating
// per-product absence/failure.
func (c *Client) FetchAllEnums(ctx context.Context) (map[string][]EnumDoc, error) {
	products, err := c.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]EnumDoc, len(products))
	for _, product := range products {
		docs, err := c.FetchProductEnums(ctx, product)
		if err != nil {
			c.logger.Warn("failed to fetch product enums, skipping", zap.String("product", product), zap.Error(err))
			continue
		}
		out[product] = docs
	}
	return out, nil
}
