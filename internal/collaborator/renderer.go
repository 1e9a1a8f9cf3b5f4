package collaborator

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_client"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
)

// MessageRenderer produces the personalized message for one target.
type MessageRenderer interface {
	RenderMessage(ctx context.Context, template, targetID string) (string, error)
}

// Renderer calls the personalization service through a named http client.
// Without one it returns the template unchanged.
type Renderer struct {
	*core.BaseComponent
	Clients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	clientName string
	path       string
	client     *http_client.InstrumentedClient
}

func NewRenderer(clientName, path string) *Renderer {
	if path == "" {
		path = "/render"
	}
	return &Renderer{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_COLLAB_RENDERER, consts.COMPONENT_LOGGING),
		clientName:    clientName,
		path:          path,
	}
}

func NewRendererWithClient(client *http_client.InstrumentedClient, path string) *Renderer {
	r := NewRenderer(client.Name, path)
	r.client = client
	return r
}

func (r *Renderer) Start(ctx context.Context) error {
	if err := r.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if r.client != nil || r.clientName == "" {
		if r.client == nil {
			logging.Info(ctx, "message renderer in passthrough mode")
		}
		return nil
	}
	if r.Clients == nil {
		return fmt.Errorf("renderer client %s configured but http_clients is disabled", r.clientName)
	}
	cli, err := r.Clients.Client(r.clientName)
	if err != nil {
		return err
	}
	r.client = cli
	return nil
}

type renderRequest struct {
	Template string `json:"template"`
	TargetID string `json:"targetId"`
}

type renderResponse struct {
	Message string `json:"message"`
}

func (r *Renderer) RenderMessage(ctx context.Context, template, targetID string) (string, error) {
	if r.client == nil {
		return template, nil
	}
	var out renderResponse
	if _, err := r.client.Do(ctx, http.MethodPost, r.path, nil, nil, renderRequest{Template: template, TargetID: targetID}, &out); err != nil {
		return "", classifyHTTP(err, "render message")
	}
	return out.Message, nil
}

// classifyHTTP maps client failures onto the error taxonomy.
func classifyHTTP(err error, msg string) error {
	var se *http_client.StatusError
	if asStatus(err, &se) {
		switch {
		case se.StatusCode == http.StatusNotFound:
			return errs.Wrap(errs.NotFound, err, msg)
		case se.Temporary():
			return errs.Wrap(errs.TransientExternalFailure, err, msg)
		case se.StatusCode >= 400 && se.StatusCode < 500:
			return errs.Wrap(errs.Invalid, err, msg)
		}
	}
	return errs.Wrap(errs.TransientExternalFailure, err, msg)
}
