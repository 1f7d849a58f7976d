package tools

import (
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/catalog"
	errx "github.com/retailchat-ai/server/internal/core/error"
)

// Deps are the collaborators the executors need.
type Deps struct {
	Fs        afero.Fs
	Assets    *assets.Store
	Captioner Captioner
	Catalog   catalog.Catalog
	ChatModel einomodel.BaseChatModel // used for upsell suggestions
}

func (d Deps) check() error {
	switch {
	case d.Fs == nil:
		return errx.Config("tools: filesystem is required", nil)
	case d.Assets == nil:
		return errx.Config("tools: asset store is required", nil)
	case d.Captioner == nil:
		return errx.Config("tools: captioning client is required", nil)
	case d.Catalog == nil:
		return errx.Config("tools: product catalog is required", nil)
	case d.ChatModel == nil:
		return errx.Config("tools: chat model is required", nil)
	}
	return nil
}
