package probe

import (
	"context"
	"time"

	"github.com/cloud-bulldozer/avap-bench/pkg/avap"
	"github.com/cloud-bulldozer/avap-bench/pkg/client"
	log "github.com/cloud-bulldozer/avap-bench/pkg/logging"
)

// Fetcher issues the bulk catalog call.
type Fetcher interface {
	SyncCatalog(ctx context.Context, authToken string) (client.CatalogRecord, error)
}

// Options for the bulk transfer probe.
type Options struct {
	AuthToken string
	// SigningKey, when set, checks each package signature as well as its framing.
	SigningKey []byte
	// Timeout bounds the whole exchange. Zero leaves it to the channel defaults.
	Timeout time.Duration
}

// BulkTransferReport describes a single SyncCatalog exchange.
type BulkTransferReport struct {
	ItemCount       int       `json:"itemCount"`
	TotalBytes      int       `json:"totalBytes"`
	DurationSeconds float64   `json:"durationSeconds"`
	VersionHash     string    `json:"versionHash"`
	ValidPackages   int       `json:"validPackages"`
	InvalidPackages int       `json:"invalidPackages"`
	SignatureCheck  bool      `json:"signatureCheck"`
	StartTime       time.Time `json:"startTime"`
	EndTime         time.Time `json:"endTime"`
}

// Megabytes is TotalBytes in MiB.
func (r BulkTransferReport) Megabytes() float64 {
	return float64(r.TotalBytes) / 1024 / 1024
}

// Run fetches the catalog once, sums the code payloads and times the exchange.
// An error here only concerns the probe.
func Run(ctx context.Context, f Fetcher, opts Options) (BulkTransferReport, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	log.Info("📦 Testing SyncCatalog payload")
	start := time.Now()
	cat, err := f.SyncCatalog(ctx, opts.AuthToken)
	if err != nil {
		return BulkTransferReport{}, err
	}
	total := 0
	for _, c := range cat.Commands {
		total += len(c.Code)
	}
	end := time.Now()

	r := BulkTransferReport{
		ItemCount:       len(cat.Commands),
		TotalBytes:      total,
		DurationSeconds: end.Sub(start).Seconds(),
		VersionHash:     cat.VersionHash,
		SignatureCheck:  len(opts.SigningKey) > 0,
		StartTime:       start,
		EndTime:         end,
	}
	if cat.TotalCount != 0 && int(cat.TotalCount) != r.ItemCount {
		log.Warnf("Catalog announces %d items but carried %d", cat.TotalCount, r.ItemCount)
	}
	inspect(&r, cat.Commands, opts.SigningKey)
	return r, nil
}

func inspect(r *BulkTransferReport, commands []client.CommandRecord, key []byte) {
	for _, c := range commands {
		var err error
		if len(key) > 0 {
			_, err = avap.Verify(c.Code, key)
		} else {
			_, err = avap.Parse(c.Code)
		}
		if err != nil {
			r.InvalidPackages++
			log.Debugf("Command %q is not a valid package: %v", c.Name, err)
			continue
		}
		r.ValidPackages++
	}
}
