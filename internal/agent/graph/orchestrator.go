package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/spf13/afero"

	"github.com/retailchat-ai/server/internal/agent/graph/conversations"
	"github.com/retailchat-ai/server/internal/agent/graph/nodes"
	"github.com/retailchat-ai/server/internal/agent/graph/observers"
	"github.com/retailchat-ai/server/internal/agent/graph/prompts"
	"github.com/retailchat-ai/server/internal/agent/graph/tools"
	"github.com/retailchat-ai/server/internal/agent/model"
	"github.com/retailchat-ai/server/internal/agent/session"
	"github.com/retailchat-ai/server/internal/assets"
	"github.com/retailchat-ai/server/internal/catalog"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/ingest"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// Config holds everything needed to compose the orchestrator end-to-end.
type Config struct {
	Mode         string
	ChatModels   *nodes.ChatModels
	Prompt       model.ResponsePromptConfig
	Conversation model.ConversationConfig

	ConversationRepo model.ConversationRepository
	CartStore        model.CartStore

	Fs        afero.Fs
	UploadDir string
	Assets    *assets.Store
	Captioner tools.Captioner
	Catalog   catalog.Catalog
}

// Orchestrator runs chat turns for many sessions, one turn per session at a time.
type Orchestrator struct {
	runnable compose.Runnable[model.QueryInput, *schema.Message]
	mm       *conversations.MessagesManager
	registry *tools.Registry
	sessions *session.Manager
	ingestor *ingest.Ingestor
}

// File is an attachment sent with a turn.
type File struct {
	Name    string `json:"filename"`
	Content string `json:"content"`
}

// TurnInput is one submission from the chat UI. A nil Submit counts as submitted.
type TurnInput struct {
	SessionID string
	Message   string
	Submit    *bool
	File      *File
}

func (in TurnInput) submitted() bool {
	return in.Submit == nil || *in.Submit
}

// New builds the registry, the conversation manager and the graph.
func New(ctx context.Context, cfg Config) (*Orchestrator, error) {
	if cfg.ChatModels == nil {
		return nil, errx.Config("chat models are required", nil)
	}
	if cfg.ConversationRepo == nil || cfg.CartStore == nil {
		return nil, errx.Config("conversation repository and cart store are required", nil)
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}

	registry, err := tools.NewRegistry(tools.Deps{
		Fs:        cfg.Fs,
		Assets:    cfg.Assets,
		Captioner: cfg.Captioner,
		Catalog:   cfg.Catalog,
		ChatModel: cfg.ChatModels.Helper,
	})
	if err != nil {
		return nil, err
	}

	system, err := prompts.ResponseSystem(ctx, cfg.Prompt, registry.Names())
	if err != nil {
		return nil, err
	}
	mm := conversations.NewMessagesManager(cfg.ConversationRepo, cfg.Conversation, system)

	runnable, err := BuildGraph(ctx, &GraphConfig{
		Mode:            cfg.Mode,
		ChatModels:      cfg.ChatModels,
		MessagesManager: mm,
		Registry:        registry,
		ToolMaxCalls:    cfg.Conversation.Tools.MaxCalls,
	})
	if err != nil {
		return nil, err
	}

	logx.Info().Str("mode", cfg.Mode).Strs("tools", registry.Names()).Msg("orchestrator ready")
	return &Orchestrator{
		runnable: runnable,
		mm:       mm,
		registry: registry,
		sessions: session.NewManager(cfg.UploadDir, cfg.CartStore),
		ingestor: ingest.New(cfg.Fs),
	}, nil
}

func (o *Orchestrator) Registry() *tools.Registry { return o.registry }

// Open starts a new session with a fresh conversation.
func (o *Orchestrator) Open(ctx context.Context) (string, error) {
	sess := o.sessions.Open()
	if err := o.mm.Reset(ctx, sess.ID); err != nil {
		return "", err
	}
	return sess.ID, nil
}

// resolve checks that id is an issued session id. Ids unknown to this process are
// accepted when the conversation store still holds their conversation.
func (o *Orchestrator) resolve(ctx context.Context, id string) error {
	if err := session.ValidID(id); err != nil {
		return err
	}
	if o.sessions.Known(id) {
		return nil
	}
	ok, err := o.mm.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return errx.NotFound(fmt.Sprintf("session %s not found", id), nil)
	}
	_, err = o.sessions.Resume(id)
	return err
}

func (o *Orchestrator) lock(ctx context.Context, id string) (*session.Context, func(), error) {
	if err := o.resolve(ctx, id); err != nil {
		return nil, nil, err
	}
	return o.sessions.Lock(id)
}

// Reset truncates the conversation to its default system message and empties the cart.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) error {
	sess, unlock, err := o.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := o.mm.Reset(ctx, sessionID); err != nil {
		return err
	}
	sess.Drain()
	return sess.EmptyCart(ctx)
}

// Upload stores a file for the next turn without running one.
func (o *Orchestrator) Upload(ctx context.Context, sessionID string, f File) (*ingest.Upload, error) {
	sess, unlock, err := o.lock(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return o.upload(ctx, sess, f)
}

func (o *Orchestrator) upload(ctx context.Context, sess *session.Context, f File) (*ingest.Upload, error) {
	up, err := o.ingestor.Ingest(ctx, sess.Slots, f.Name, f.Content)
	if err != nil {
		return nil, err
	}
	if err := o.mm.Init(ctx, sess.ID); err != nil {
		return nil, err
	}
	note := fmt.Sprintf("A %s file named %s is available for analysis", kindLabel(up.Kind), up.Filename)
	if err := o.mm.EditSystem(ctx, sess.ID, note, true); err != nil {
		return nil, err
	}
	return up, nil
}

func kindLabel(k ingest.Kind) string {
	if k == ingest.KindImage {
		return "product image"
	}
	return "CSV"
}

func (o *Orchestrator) Transcript(ctx context.Context, sessionID string) ([]model.Message, error) {
	if err := o.resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	if err := o.mm.Init(ctx, sessionID); err != nil {
		return nil, err
	}
	return o.mm.Transcript(ctx, sessionID)
}

func (o *Orchestrator) Cart(ctx context.Context, sessionID string) ([]model.CartItem, error) {
	if err := o.resolve(ctx, sessionID); err != nil {
		return nil, err
	}
	sess, err := o.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	return sess.Cart(ctx)
}

// Turn persists an attached file, then runs one chat cycle unless the message
// is blank or was not submitted.
func (o *Orchestrator) Turn(ctx context.Context, in TurnInput) (*model.TurnResult, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, errx.Validation("session id is required", nil)
	}
	sess, unlock, err := o.lock(ctx, in.SessionID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := o.mm.Init(ctx, sess.ID); err != nil {
		return nil, err
	}
	sess.Drain()

	res := &model.TurnResult{Artifacts: []model.Artifact{}}
	if in.File != nil {
		if _, err := o.upload(ctx, sess, *in.File); err != nil {
			if !errors.Is(err, errx.ErrValidation) {
				return nil, err
			}
			res.Notices = append(res.Notices, errx.MessageOf(err))
		}
	}

	query := strings.TrimSpace(in.Message)
	if query == "" || !in.submitted() {
		if query == "" && in.submitted() && in.File == nil {
			res.Notices = append(res.Notices, "Please type a message before sending.")
		}
		res.Skipped = true
		return o.finish(ctx, sess.ID, res)
	}

	out, err := o.runnable.Invoke(session.WithContext(ctx, sess), model.QueryInput{
		ConversationID: sess.ID,
		Query:          query,
	}, compose.WithCallbacks(observers.NewAllCallbacks()))
	outcome := sess.Drain()

	if err != nil {
		logx.Error().Err(err).Str("session_id", sess.ID).Msg("turn failed")
		res.Reply = apology(err)
		if saveErr := o.mm.SaveResponse(ctx, sess.ID, res.Reply); saveErr != nil {
			return nil, saveErr
		}
	} else {
		res.Reply = out.Content
		if total, ok := out.Extra[nodes.ExtraUsageCostTotal].(float64); ok {
			res.CostUSD = total
		}
	}

	res.Tool = outcome.Tool
	res.Artifacts = append(res.Artifacts, outcome.Artifacts...)
	res.Notices = append(res.Notices, outcome.Notices...)
	return o.finish(ctx, sess.ID, res)
}

func (o *Orchestrator) finish(ctx context.Context, sessionID string, res *model.TurnResult) (*model.TurnResult, error) {
	transcript, err := o.mm.Transcript(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	res.Transcript = transcript
	return res, nil
}

// apology is the reply stored when a turn could not complete.
func apology(err error) string {
	if errors.Is(err, errx.ErrUpstream) {
		return "Sorry, " + errx.MessageOf(err) + ". Please try again in a moment."
	}
	return "Sorry, something went wrong while answering. Please try again in a moment."
}
