package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/retailchat-ai/server/internal/agent/graph/parsers"
	"github.com/retailchat-ai/server/internal/agent/llmtest"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/repo"
	"github.com/retailchat-ai/server/internal/agent/session"
	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/catalog"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/forecast"
)

type fakeCatalog struct {
	products []model.Product
	err      error
}

func (f *fakeCatalog) Similar(ctx context.Context, text string, n int) ([]model.Product, error) {
	if f.err != nil {
		return nil, f.err
	}
	ranked := append([]model.Product(nil), f.products...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return catalog.Similarity(ranked[i].Name, text) > catalog.Similarity(ranked[j].Name, text)
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked, nil
}

type fakeCaptioner struct {
	got    string
	prompt string
	err    error
}

func (f *fakeCaptioner) Caption(ctx context.Context, imageBase64, prompt string) (string, error) {
	f.got, f.prompt = imageBase64, prompt
	if f.err != nil {
		return "", f.err
	}
	return "A red linen shirt with a relaxed fit.", nil
}

var products = []model.Product{
	{Name: "Red Ceramic Mug", ID: "p1", Description: "12oz mug", CompanyName: "Acme Home"},
	{Name: "Blue Teapot", ID: "p2", Description: "1l teapot", CompanyName: "Acme Home"},
	{Name: "Cork Coasters", ID: "p3", Description: "set of 4", CompanyName: "Table Co"},
	{Name: "Coaster Holder", ID: "p4", Description: "walnut", CompanyName: "Table Co"},
}

type fixture struct {
	fs       afero.Fs
	reg      *Registry
	sess     *session.Context
	ctx      context.Context
	llm      *llmtest.Model
	catalog  *fakeCatalog
	captions *fakeCaptioner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	f := &fixture{
		fs:       fs,
		llm:      llmtest.New(llmtest.Rule{System: "single additional item", Reply: "Coasters.\nThey go well."}),
		catalog:  &fakeCatalog{products: products},
		captions: &fakeCaptioner{},
	}
	reg, err := NewRegistry(Deps{
		Fs:        fs,
		Assets:    assets.NewStore(fs, assets.Config{Dir: "/public", URLPrefix: "/assets"}),
		Captioner: f.captions,
		Catalog:   f.catalog,
		ChatModel: f.llm,
	})
	require.NoError(t, err)
	f.reg = reg
	f.sess = session.New("s1", session.SlotsFor("/uploads", "s1"), repo.NewMemoryCartStore())
	f.ctx = session.WithContext(context.Background(), f.sess)
	return f
}

func writeSeries(t *testing.T, fs afero.Fs, path string, n int) {
	t.Helper()
	var b strings.Builder
	b.WriteString("ds,y\n")
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "%s,%d\n", start.AddDate(0, 0, i).Format("2006-01-02"), 100+i%7*3+i)
	}
	require.NoError(t, afero.WriteFile(fs, path, []byte(b.String()), 0o644))
}

func TestDescribeListsEveryToolInOrder(t *testing.T) {
	f := newFixture(t)
	lines := strings.Split(strings.TrimSpace(f.reg.Describe()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Name: Forecast Generator | Description: "))
	assert.True(t, strings.HasPrefix(lines[1], "Name: Product Description Generator | Description: "))
	assert.True(t, strings.HasPrefix(lines[2], "Name: Text to Shop | Description: "))
	assert.Equal(t, []string{NameForecast, NameDescription, NameTextToShop}, f.reg.Names())
}

func TestCallBuildsTypedCalls(t *testing.T) {
	f := newFixture(t)

	call, err := f.reg.Call("text to shop", parsers.Args{"product_name": parsers.Labeled("red mugs"), "quantity": parsers.Scalar("3")})
	require.NoError(t, err)
	assert.Equal(t, TextToShopCall{ProductName: "red mugs", Quantity: 3}, call)

	call, err = f.reg.Call("text_to_shop", parsers.Args{"product_name": parsers.Scalar("mug")})
	require.NoError(t, err)
	assert.Equal(t, 1, call.(TextToShopCall).Quantity)

	call, err = f.reg.Call(NameForecast, parsers.Args{"frequency": parsers.Scalar("Weekly")})
	require.NoError(t, err)
	assert.Equal(t, ForecastCall{Frequency: forecast.Weekly}, call)

	_, err = f.reg.Call(NameTextToShop, parsers.Args{})
	assert.True(t, errors.Is(err, errx.ErrValidation))

	_, err = f.reg.Call("Weather", parsers.Args{})
	assert.True(t, errors.Is(err, errx.ErrClassification))
}

func TestForecastProducesChartAndTable(t *testing.T) {
	f := newFixture(t)
	writeSeries(t, f.fs, f.sess.Slots.Tabular, 60)

	res, err := f.reg.Invoke(f.ctx, ForecastCall{Frequency: forecast.Daily})
	require.NoError(t, err)
	assert.Contains(t, res.Summary, "A daily forecast was generated for the next 30 periods with a 85% prediction interval.")
	require.Len(t, res.Artifacts, 2)

	chart, table := res.Artifacts[0], res.Artifacts[1]
	assert.Equal(t, model.ArtifactChart, chart.Kind)
	ok, err := afero.Exists(f.fs, chart.Path)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(chart.URL, "/assets/forecast_"))

	raw, err := afero.ReadFile(f.fs, table.Path)
	require.NoError(t, err)
	book, err := excelize.OpenReader(bytes.NewReader(raw))
	require.NoError(t, err)
	rows, err := book.GetRows("Forecast")
	require.NoError(t, err)
	assert.Len(t, rows, 91)

	out := f.sess.Drain()
	assert.Equal(t, NameForecast, out.Tool)
	assert.Len(t, out.Artifacts, 2)
}

func TestForecastWithoutUploadIsValidationError(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Invoke(f.ctx, ForecastCall{Frequency: forecast.Daily})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrValidation))

	out := f.sess.Drain()
	require.Len(t, out.Notices, 1)
	assert.Contains(t, out.Notices[0], "Forecast Generator could not run with that input: no CSV file has been uploaded")
}

func TestForecastMissingColumnIsValidationError(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, f.sess.Slots.Tabular, []byte("ds,sales\n2024-01-01,1\n2024-01-02,2\n"), 0o644))
	_, err := f.reg.Invoke(f.ctx, ForecastCall{Frequency: forecast.Daily})
	assert.True(t, errors.Is(err, errx.ErrValidation))
	assert.False(t, errors.Is(err, errx.ErrModelFit))
}

func TestDescriptionReturnsCaptionVerbatim(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, afero.WriteFile(f.fs, f.sess.Slots.Image, []byte("png-bytes"), 0o644))

	res, err := f.reg.Invoke(f.ctx, ProductDescriptionCall{Prompt: " playful tone "})
	require.NoError(t, err)
	assert.Equal(t, "A red linen shirt with a relaxed fit.", res.Summary)
	assert.Equal(t, "cG5nLWJ5dGVz", f.captions.got)
	assert.Equal(t, "playful tone", f.captions.prompt)
	require.Len(t, res.Artifacts, 1)
	assert.Equal(t, model.ArtifactImage, res.Artifacts[0].Kind)

	copied, err := afero.ReadFile(f.fs, res.Artifacts[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(copied))
}

func TestDescriptionFailuresAreUpstream(t *testing.T) {
	f := newFixture(t)
	_, err := f.reg.Invoke(f.ctx, ProductDescriptionCall{})
	assert.True(t, errors.Is(err, errx.ErrUpstream))

	require.NoError(t, afero.WriteFile(f.fs, f.sess.Slots.Image, []byte("png"), 0o644))
	f.captions.err = errx.Upstream("the image captioning service returned 503", nil)
	_, err = f.reg.Invoke(f.ctx, ProductDescriptionCall{})
	assert.True(t, errors.Is(err, errx.ErrUpstream))
}

func TestTextToShopAddsBestMatchAndRecommends(t *testing.T) {
	f := newFixture(t)

	res, err := f.reg.Invoke(f.ctx, TextToShopCall{ProductName: "red mugs", Quantity: 3})
	require.NoError(t, err)

	items, err := f.sess.Cart(f.ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.CartItem{
		Name: "Red Ceramic Mug", ID: "p1", Description: "12oz mug", CompanyName: "Acme Home", Quantity: 3,
	}, items[0])

	assert.Contains(t, res.Summary, "We have automatically added the following to the customer's cart: 3 x Red Ceramic Mug")
	assert.Contains(t, res.Summary, "Please recommend the following items: ")
	assert.Contains(t, res.Summary, "Cork Coasters")
	assert.Contains(t, res.Summary, "Coaster Holder")

	inputs := f.llm.Inputs()
	require.Len(t, inputs, 1)
	assert.Equal(t, "Red Ceramic Mug", llmtest.LastUser(inputs[0]))
}

func TestTextToShopQuantityDefaultsToOne(t *testing.T) {
	f := newFixture(t)
	call, err := f.reg.Call(NameTextToShop, parsers.Args{"product_name": parsers.Scalar("teapot"), "quantity": parsers.Scalar("lots")})
	require.NoError(t, err)
	_, err = f.reg.Invoke(f.ctx, call)
	require.NoError(t, err)

	items, err := f.sess.Cart(f.ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 1, items[0].Quantity)
	assert.Equal(t, "Blue Teapot", items[0].Name)
}

func TestTextToShopNoMatchLeavesCartEmpty(t *testing.T) {
	f := newFixture(t)
	f.catalog.products = nil

	_, err := f.reg.Invoke(f.ctx, TextToShopCall{ProductName: "mug", Quantity: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errx.ErrNotFound))

	items, err := f.sess.Cart(f.ctx)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestTextToShopSurvivesUpsellFailure(t *testing.T) {
	f := newFixture(t)
	f.reg.shop.llm = llmtest.New(llmtest.Rule{Err: errors.New("model down")})

	res, err := f.reg.Invoke(f.ctx, TextToShopCall{ProductName: "mug", Quantity: 2})
	require.NoError(t, err)
	assert.NotContains(t, res.Summary, "Please recommend")
}

func TestUpsellWord(t *testing.T) {
	assert.Equal(t, "Coasters", UpsellWord("Coasters.\nThey match."))
	assert.Equal(t, "Saucer", UpsellWord("  \"Saucer\" "))
	assert.Equal(t, "", UpsellWord("   "))
}

func TestEinoToolReportsErrorsAsText(t *testing.T) {
	f := newFixture(t)
	var shop *registryTool
	for _, bt := range f.reg.Tools() {
		info, err := bt.Info(context.Background())
		require.NoError(t, err)
		if info.Name == "text_to_shop" {
			shop = bt.(*registryTool)
		}
	}
	require.NotNil(t, shop)

	out, err := shop.InvokableRun(f.ctx, `{"product_name": {"title": "red mug"}, "quantity": 2}`)
	require.NoError(t, err)
	assert.Contains(t, out, "2 x Red Ceramic Mug")

	out, err = shop.InvokableRun(f.ctx, `{}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Error: Text to Shop could not run with that input: invalid Text to Shop argument ProductName (required)"))
}

func TestNewRegistryRequiresDeps(t *testing.T) {
	_, err := NewRegistry(Deps{})
	assert.True(t, errors.Is(err, errx.ErrConfig))
}
