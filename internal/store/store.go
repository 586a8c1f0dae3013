// Package store persists assets, hazard inputs and loss results.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/aal"
	"github.com/sells-group/hazard-loss/internal/asset"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/vuln"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// AssetRegistry is the read side of the asset register.
type AssetRegistry interface {
	ListAssets(ctx context.Context) ([]asset.Asset, error)
	GetAsset(ctx context.Context, id string) (*asset.Asset, error)
	ListProvinces(ctx context.Context) ([]string, error)
}

// HazardSource provides the raw hazard samples for one hazard.
type HazardSource interface {
	LoadSamples(ctx context.Context, h hazard.Hazard) ([]geospatial.Sample, error)
}

// CurveSource provides the vulnerability curves for one hazard.
type CurveSource interface {
	LoadCurves(ctx context.Context, h hazard.Hazard) ([]*vuln.Curve, error)
}

// ResultTx is the view of result tables inside one incremental update.
type ResultTx interface {
	// DirectLoss returns the stored record, or nil when the asset has none.
	DirectLoss(ctx context.Context, assetID string) (*loss.Record, error)
	PutDirectLoss(ctx context.Context, rec loss.Record) error
	DeleteDirectLoss(ctx context.Context, assetID string) error
	// ApplyDeltas locks the target province rows and adds the deltas. It
	// fails with aal.ErrUnknownProvince if a province row is missing.
	ApplyDeltas(ctx context.Context, deltas []aal.Delta) error
}

// BatchTx is the view of a full recompute: the inputs it reads and the
// tables it replaces, all under one exclusive hold of the result tables.
type BatchTx interface {
	ListAssets(ctx context.Context) ([]asset.Asset, error)
	ListProvinces(ctx context.Context) ([]string, error)
	ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error
}

// ResultStore holds the direct-loss and AAL tables.
type ResultStore interface {
	// Batch runs fn with the result tables held exclusively. No Update, in
	// this process or any other sharing the database, interleaves with it.
	Batch(ctx context.Context, fn func(tx BatchTx) error) error
	// ReplaceResults swaps both tables atomically. It is a Batch that only
	// writes.
	ReplaceResults(ctx context.Context, records []loss.Record, table *aal.Table) error
	// Update runs fn in one transaction, committing only if fn succeeds.
	// It waits for any running Batch.
	Update(ctx context.Context, fn func(tx ResultTx) error) error
	DirectLoss(ctx context.Context, assetID string) (*loss.Record, error)
	AALRows(ctx context.Context) ([]aal.Row, error)
}

// Importer loads reference inputs.
type Importer interface {
	UpsertCurves(ctx context.Context, curves []*vuln.Curve) error
	UpsertSamples(ctx context.Context, samples []geospatial.Sample) error
}

// Store is a complete backend.
type Store interface {
	AssetRegistry
	HazardSource
	CurveSource
	ResultStore
	Importer

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
