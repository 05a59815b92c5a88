package probe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/cloud-bulldozer/avap-bench/pkg/avap"
	"github.com/cloud-bulldozer/avap-bench/pkg/client"
	"github.com/cloud-bulldozer/avap-bench/pkg/enginetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeFetcher struct {
	cat client.CatalogRecord
	err error
}

func (f fakeFetcher) SyncCatalog(context.Context, string) (client.CatalogRecord, error) {
	return f.cat, f.err
}

func records(sizes ...int) []client.CommandRecord {
	var out []client.CommandRecord
	for _, n := range sizes {
		out = append(out, client.CommandRecord{Code: bytes.Repeat([]byte{'x'}, n)})
	}
	return out
}

func TestRunSumsPayloads(t *testing.T) {
	r, err := Run(context.Background(), fakeFetcher{cat: client.CatalogRecord{Commands: records(10, 20, 30)}}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 3, r.ItemCount)
	assert.Equal(t, 60, r.TotalBytes)
	assert.GreaterOrEqual(t, r.DurationSeconds, 0.0)
	assert.Equal(t, 3, r.InvalidPackages)
}

func TestRunEmptyCatalog(t *testing.T) {
	r, err := Run(context.Background(), fakeFetcher{}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, r.ItemCount)
	assert.Equal(t, 0, r.TotalBytes)
}

func TestRunPropagatesFailure(t *testing.T) {
	want := &client.RPCError{Code: codes.Unavailable, Detail: "down"}
	_, err := Run(context.Background(), fakeFetcher{err: want}, Options{})
	assert.True(t, errors.Is(err, want))
}

func TestRunInspectsPackages(t *testing.T) {
	key := []byte("avap_secure_signature_key_2026")
	cat := client.CatalogRecord{Commands: []client.CommandRecord{
		{Name: "if", Code: avap.Pack([]byte(`print("hello")`), key)},
		{Name: "while", Code: avap.Pack([]byte("loop"), []byte("other key"))},
		{Name: "raw", Code: []byte("not a package")},
	}}

	r, err := Run(context.Background(), fakeFetcher{cat: cat}, Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.ValidPackages)
	assert.Equal(t, 1, r.InvalidPackages)
	assert.False(t, r.SignatureCheck)

	r, err = Run(context.Background(), fakeFetcher{cat: cat}, Options{SigningKey: key})
	require.NoError(t, err)
	assert.Equal(t, 1, r.ValidPackages)
	assert.Equal(t, 2, r.InvalidPackages)
	assert.True(t, r.SignatureCheck)
}

func TestRunAgainstEngine(t *testing.T) {
	srv, err := enginetest.Start(&enginetest.Engine{Catalog: records(10, 20, 30)})
	require.NoError(t, err)
	defer srv.Close()
	ch, err := client.Connect(context.Background(), srv.Target(), client.Options{DialOptions: srv.DialOptions()})
	require.NoError(t, err)
	defer ch.Close()

	r, err := Run(context.Background(), ch, Options{AuthToken: enginetest.Token})
	require.NoError(t, err)
	assert.Equal(t, 3, r.ItemCount)
	assert.Equal(t, 60, r.TotalBytes)
	assert.Equal(t, "v-3", r.VersionHash)

	_, err = Run(context.Background(), ch, Options{AuthToken: "WRONG_TOKEN"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestMegabytes(t *testing.T) {
	assert.Equal(t, 1.5, BulkTransferReport{TotalBytes: 3 * 512 * 1024}.Megabytes())
}
