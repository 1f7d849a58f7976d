// Package tools is the capability registry: the descriptors the classifier
// chooses from, the typed calls it can produce and the executors behind them.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"github.com/go-playground/validator/v10"

	"github.com/retailchat-ai/server/internal/agent/graph/parsers"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/session"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/forecast"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

const (
	NameForecast    = "Forecast Generator"
	NameDescription = "Product Description Generator"
	NameTextToShop  = "Text to Shop"
)

// Descriptor is the public face of one capability.
type Descriptor struct {
	Name        string
	Function    string
	Description string
	Params      map[string]*schema.ParameterInfo
}

// ToolInfo renders the descriptor for a tool-calling model.
func (d Descriptor) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        d.Function,
		Desc:        d.Description,
		ParamsOneOf: schema.NewParamsOneOfByParams(d.Params),
	}
}

var descriptors = []Descriptor{
	{
		Name:     NameForecast,
		Function: "generate_forecast",
		Description: "Use this tool to generate a time series forecast from an uploaded CSV file with a ds (date) " +
			"column and a y (value) column. It reports how many actual values fell outside the prediction " +
			"interval, error metrics, and produces a chart and a table.",
		Params: map[string]*schema.ParameterInfo{
			"frequency": {
				Type: schema.String,
				Desc: "Frequency of the time series: daily, weekly or monthly. Defaults to daily.",
				Enum: []string{string(forecast.Daily), string(forecast.Weekly), string(forecast.Monthly)},
			},
		},
	},
	{
		Name:     NameDescription,
		Function: "generate_product_description",
		Description: "Use this tool to convert an uploaded product image into a product description for an " +
			"online store. Only use it when the user explicitly asks for a product description.",
		Params: map[string]*schema.ParameterInfo{
			"prompt": {
				Type: schema.String,
				Desc: "Optional instruction for the description, for example the tone or details to include.",
			},
		},
	},
	{
		Name:     NameTextToShop,
		Function: "text_to_shop",
		Description: "Use this tool to help customers shop for items. They will likely name an item they want " +
			"to buy, purchase or add to their cart, optionally with a quantity.",
		Params: map[string]*schema.ParameterInfo{
			"product_name": {
				Type:     schema.String,
				Desc:     "Name of the product the customer wants, as they said it.",
				Required: true,
			},
			"quantity": {
				Type: schema.Integer,
				Desc: "How many the customer wants. Defaults to 1.",
			},
		},
	},
}

// ToolCall is a validated request for one capability.
type ToolCall interface {
	Tool() string
	isToolCall()
}

type ForecastCall struct {
	Frequency forecast.Frequency `validate:"oneof=daily weekly monthly"`
}

type ProductDescriptionCall struct {
	Prompt string `validate:"max=2000"`
}

type TextToShopCall struct {
	ProductName string `validate:"required,max=200"`
	Quantity    int    `validate:"gte=1"`
}

func (ForecastCall) Tool() string           { return NameForecast }
func (ProductDescriptionCall) Tool() string { return NameDescription }
func (TextToShopCall) Tool() string         { return NameTextToShop }

func (ForecastCall) isToolCall()           {}
func (ProductDescriptionCall) isToolCall() {}
func (TextToShopCall) isToolCall()         {}

// Registry holds the capabilities and their executors.
type Registry struct {
	descriptors []Descriptor
	validate    *validator.Validate

	forecast    *ForecastExecutor
	description *DescriptionExecutor
	shop        *ShopExecutor
}

func NewRegistry(d Deps) (*Registry, error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return &Registry{
		descriptors: descriptors,
		validate:    validator.New(),
		forecast:    &ForecastExecutor{fs: d.Fs, assets: d.Assets},
		description: &DescriptionExecutor{fs: d.Fs, assets: d.Assets, captioner: d.Captioner},
		shop:        &ShopExecutor{catalog: d.Catalog, llm: d.ChatModel, recommendations: 3},
	}, nil
}

func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Names returns the registered capability names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.descriptors))
	for i, d := range r.descriptors {
		names[i] = d.Name
	}
	return names
}

// Describe lists every capability, one per line.
func (r *Registry) Describe() string {
	var b strings.Builder
	for _, d := range r.descriptors {
		fmt.Fprintf(&b, "Name: %s | Description: %s\n", d.Name, d.Description)
	}
	return b.String()
}

// Lookup finds a descriptor by display name, ignoring case.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if strings.EqualFold(d.Name, name) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// LookupFunction finds a descriptor by its tool-calling function name.
func (r *Registry) LookupFunction(fn string) (Descriptor, bool) {
	for _, d := range r.descriptors {
		if strings.EqualFold(d.Function, fn) {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Call builds and validates the typed call for name from model arguments.
func (r *Registry) Call(name string, args parsers.Args) (ToolCall, error) {
	d, ok := r.Lookup(name)
	if !ok {
		if d, ok = r.LookupFunction(name); !ok {
			return nil, errx.Classification(fmt.Sprintf("unknown capability %q", name), nil)
		}
	}

	var call ToolCall
	switch d.Name {
	case NameForecast:
		call = ForecastCall{Frequency: forecast.ParseFrequency(args.String("frequency"))}
	case NameDescription:
		call = ProductDescriptionCall{Prompt: args.String("prompt")}
	case NameTextToShop:
		call = TextToShopCall{ProductName: args.String("product_name"), Quantity: args.Int("quantity", 1)}
	}

	if err := r.validate.Struct(call); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return nil, errx.Validation(fmt.Sprintf("invalid %s argument %s (%s)", d.Name, e.Field(), e.Tag()), err)
		}
		return nil, errx.Validation("invalid "+d.Name+" arguments", err)
	}
	return call, nil
}

// Invoke runs call and reports the outcome to the session in ctx: the tool
// name, its artifacts, or a user notice when it failed.
func (r *Registry) Invoke(ctx context.Context, call ToolCall) (model.ToolResult, error) {
	var (
		res model.ToolResult
		err error
	)
	switch c := call.(type) {
	case ForecastCall:
		res, err = r.forecast.Run(ctx, c)
	case ProductDescriptionCall:
		res, err = r.description.Run(ctx, c)
	case TextToShopCall:
		res, err = r.shop.Run(ctx, c)
	default:
		return model.ToolResult{}, errx.Classification(fmt.Sprintf("unsupported call %T", call), nil)
	}
	sess, hasSession := session.FromContext(ctx)
	if err != nil {
		logx.Warn().Err(err).Str("tool", call.Tool()).Msg("capability failed")
		if hasSession {
			sess.Ran(call.Tool())
			sess.Notify(Notice(call.Tool(), err))
		}
		return model.ToolResult{}, err
	}

	if hasSession {
		sess.Ran(res.Tool)
		for _, a := range res.Artifacts {
			sess.Record(a)
		}
	}
	logx.Info().
		Str("tool", res.Tool).
		Int("artifacts", len(res.Artifacts)).
		Msg("capability completed")
	return res, nil
}

// Notice turns a capability error into the message shown to the user.
func Notice(tool string, err error) string {
	msg := errx.MessageOf(err)
	switch {
	case errors.Is(err, errx.ErrValidation):
		return fmt.Sprintf("%s could not run with that input: %s.", tool, msg)
	case errors.Is(err, errx.ErrNotFound):
		return fmt.Sprintf("%s found nothing: %s.", tool, msg)
	case errors.Is(err, errx.ErrModelFit):
		return fmt.Sprintf("%s could not fit a model: %s.", tool, msg)
	case errors.Is(err, errx.ErrUpstream):
		return fmt.Sprintf("%s is unavailable right now: %s. Please try again later.", tool, msg)
	default:
		return fmt.Sprintf("%s failed unexpectedly. Please try again.", tool)
	}
}

// ToolInfos returns the schemas bound to the tool-calling model.
func (r *Registry) ToolInfos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = d.ToolInfo()
	}
	return out
}

// Tools adapts every capability to an eino tool.
func (r *Registry) Tools() []tool.BaseTool {
	out := make([]tool.BaseTool, len(r.descriptors))
	for i, d := range r.descriptors {
		out[i] = &registryTool{reg: r, desc: d}
	}
	return out
}

// registryTool reports capability failures as tool output so the model can
// explain them instead of aborting the run.
type registryTool struct {
	reg  *Registry
	desc Descriptor
}

var _ tool.InvokableTool = (*registryTool)(nil)

func (t *registryTool) Info(context.Context) (*schema.ToolInfo, error) {
	return t.desc.ToolInfo(), nil
}

func (t *registryTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	args, err := parsers.ParseArgs(argumentsInJSON)
	if err != nil {
		logx.Warn().Err(err).Str("tool", t.desc.Name).Msg("unparseable tool arguments; using defaults")
		args = parsers.Args{}
	}
	call, err := t.reg.Call(t.desc.Name, args)
	if err != nil {
		return "Error: " + Notice(t.desc.Name, err), nil
	}
	res, err := t.reg.Invoke(ctx, call)
	if err != nil {
		return "Error: " + Notice(t.desc.Name, err), nil
	}
	return res.Summary, nil
}
