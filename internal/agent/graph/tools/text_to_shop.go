package tools

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/retailchat-ai/server/internal/agent/graph/prompts"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/catalog"
	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// ===================================
// Text to Shop
// ===================================

type ShopExecutor struct {
	catalog         catalog.Catalog
	llm             einomodel.BaseChatModel
	recommendations int
}

func (e *ShopExecutor) Run(ctx context.Context, call TextToShopCall) (model.ToolResult, error) {
	sess, err := sessionFrom(ctx)
	if err != nil {
		return model.ToolResult{}, err
	}

	matches, err := e.catalog.Similar(ctx, call.ProductName, 1)
	if err != nil {
		return model.ToolResult{}, err
	}
	if len(matches) == 0 {
		return model.ToolResult{}, errx.NotFound(fmt.Sprintf("no catalog product matches %q", call.ProductName), nil)
	}
	p := matches[0]

	item := model.CartItem{
		Name:        p.Name,
		ID:          p.ID,
		Description: p.Description,
		CompanyName: p.CompanyName,
		Quantity:    call.Quantity,
	}
	if err := sess.AddToCart(ctx, item); err != nil {
		return model.ToolResult{}, err
	}
	logx.Info().
		Str("session_id", sess.ID).
		Str("product_id", p.ID).
		Int("quantity", call.Quantity).
		Msg("added to cart")

	recs := e.recommend(ctx, p.Name)

	return model.ToolResult{
		Tool:    NameTextToShop,
		Summary: shopSummary(item, recs),
	}, nil
}

// recommend asks the model for one upsell word and looks it up in the
// catalog. Failures only drop the recommendations.
func (e *ShopExecutor) recommend(ctx context.Context, product string) []model.Product {
	sys, err := prompts.Upsell(ctx)
	if err != nil {
		logx.Warn().Err(err).Msg("upsell prompt")
		return nil
	}
	resp, err := e.llm.Generate(ctx, []*schema.Message{
		schema.SystemMessage(sys),
		schema.UserMessage(product),
	}, einomodel.WithMaxTokens(16), einomodel.WithTemperature(0))
	if err != nil {
		logx.Warn().Err(err).Str("product", product).Msg("upsell generation failed")
		return nil
	}

	word := UpsellWord(resp.Content)
	if word == "" {
		return nil
	}
	recs, err := e.catalog.Similar(ctx, word, e.recommendations)
	if err != nil {
		logx.Warn().Err(err).Str("upsell", word).Msg("upsell lookup failed")
		return nil
	}
	return recs
}

// UpsellWord keeps the first word of a model reply.
func UpsellWord(reply string) string {
	fields := strings.Fields(strings.ReplaceAll(reply, "\n", " "))
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimFunc(fields[0], func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func shopSummary(item model.CartItem, recs []model.Product) string {
	var b strings.Builder
	fmt.Fprintf(&b, "We have automatically added the following to the customer's cart: %d x %s (id %s",
		item.Quantity, item.Name, item.ID)
	if item.CompanyName != "" {
		fmt.Fprintf(&b, ", sold by %s", item.CompanyName)
	}
	b.WriteString(").")
	if len(recs) > 0 {
		names := make([]string, len(recs))
		for i, r := range recs {
			names[i] = r.Name
		}
		fmt.Fprintf(&b, " Please recommend the following items: %s.", strings.Join(names, ", "))
	}
	return b.String()
}
