package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errx "github.com/retailchat-ai/server/internal/core/error"
)

const seedCSV = `name,id,description,company_name
Red Ceramic Mug,p1,12oz glazed mug,Acme Home
Blue Teapot,p2,1L stoneware teapot,Acme Home
Cork Coasters,p3,set of 6 coasters,Table Co
Coaster Holder,p4,walnut holder for coasters,Table Co
Running Shoes,p5,lightweight trainers,Stride
`

func openSeeded(t *testing.T) *SQLite {
	t.Helper()
	ctx := context.Background()
	s, err := Open(ctx, Config{DSN: filepath.Join(t.TempDir(), "catalog.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	n, err := s.Seed(ctx, strings.NewReader(seedCSV))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	return s
}

func TestSimilarRanksByName(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()

	top, err := s.Similar(ctx, "red mugs", 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "p1", top[0].ID)
	assert.Equal(t, "Acme Home", top[0].CompanyName)

	recs, err := s.Similar(ctx, "Coasters", 3)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Cork Coasters", recs[0].Name)
	assert.Equal(t, "Coaster Holder", recs[1].Name)
}

func TestSimilarOnEmptyCatalog(t *testing.T) {
	s, err := Open(context.Background(), Config{DSN: ":memory:", Table: "empty_catalog"})
	require.NoError(t, err)
	defer s.Close()

	out, err := s.Similar(context.Background(), "anything", 1)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSeedReplacesByID(t *testing.T) {
	s := openSeeded(t)
	ctx := context.Background()
	_, err := s.Seed(ctx, strings.NewReader("id,name,description,company_name\np1,Red Mug XL,big,Acme Home\n"))
	require.NoError(t, err)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestSeedRequiresColumns(t *testing.T) {
	s := openSeeded(t)
	_, err := s.Seed(context.Background(), strings.NewReader("name,id\nx,1\n"))
	assert.True(t, errors.Is(err, errx.ErrValidation))
}

func TestOpenRejectsBadTable(t *testing.T) {
	_, err := Open(context.Background(), Config{DSN: ":memory:", Table: "x; DROP TABLE y"})
	assert.True(t, errors.Is(err, errx.ErrConfig))
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("Red Mug", "red  mug!"))
	assert.Zero(t, Similarity("", "mug"))
	assert.Greater(t, Similarity("red mugs", "Red Ceramic Mug"), Similarity("red mugs", "Blue Teapot"))
	assert.Greater(t, Similarity("shoes", "Running Shoes"), Similarity("shoes", "Cork Coasters"))
}
