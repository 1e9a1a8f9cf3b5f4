package collaborator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/http_client"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
	"github.com/grand-thief-cash/chaos/outreach/internal/dao"
	"github.com/grand-thief-cash/chaos/outreach/internal/errs"
	"github.com/grand-thief-cash/chaos/outreach/internal/model"
)

// TargetDirectory is the CRM view of recipients. Callers wrap it in the crm breaker.
type TargetDirectory interface {
	Profile(ctx context.Context, targetID string) (*model.Target, error)
	MarkTargetContacted(ctx context.Context, targetID string, when time.Time) error
}

// DBDirectory reads the outreach_targets table.
type DBDirectory struct {
	*core.BaseComponent
	Targets dao.TargetDao `infra:"dep:target_dao"`
}

func NewDBDirectory() *DBDirectory {
	return &DBDirectory{BaseComponent: core.NewBaseComponent(bizConsts.COMP_COLLAB_DIRECTORY, consts.COMPONENT_LOGGING)}
}

func (d *DBDirectory) Profile(ctx context.Context, targetID string) (*model.Target, error) {
	t, err := d.Targets.Get(ctx, targetID)
	if dao.IsNotFound(err) {
		return nil, errs.New(errs.NotFound, "target %s not found", targetID)
	}
	if err != nil {
		return nil, fmt.Errorf("load target %s: %w", targetID, err)
	}
	return t, nil
}

func (d *DBDirectory) MarkTargetContacted(ctx context.Context, targetID string, when time.Time) error {
	err := d.Targets.MarkContacted(ctx, targetID, when)
	if dao.IsNotFound(err) {
		return errs.New(errs.NotFound, "target %s not found", targetID)
	}
	if err != nil {
		return fmt.Errorf("mark target %s contacted: %w", targetID, err)
	}
	return nil
}

// HTTPDirectory talks to the CRM over a named http client.
type HTTPDirectory struct {
	*core.BaseComponent
	Clients *http_client.HTTPClientsComponent `infra:"dep:http_clients?"`

	clientName string
	client     *http_client.InstrumentedClient
}

func NewHTTPDirectory(clientName string) *HTTPDirectory {
	return &HTTPDirectory{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_COLLAB_DIRECTORY, consts.COMPONENT_LOGGING),
		clientName:    clientName,
	}
}

func NewHTTPDirectoryWithClient(client *http_client.InstrumentedClient) *HTTPDirectory {
	d := NewHTTPDirectory(client.Name)
	d.client = client
	return d
}

func (d *HTTPDirectory) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	if d.client != nil {
		return nil
	}
	if d.Clients == nil {
		return fmt.Errorf("target directory over http requires the http_clients component")
	}
	cli, err := d.Clients.Client(d.clientName)
	if err != nil {
		return err
	}
	d.client = cli
	return nil
}

func (d *HTTPDirectory) Profile(ctx context.Context, targetID string) (*model.Target, error) {
	var t model.Target
	if _, err := d.client.Get(ctx, "/targets/"+url.PathEscape(targetID), nil, nil, &t); err != nil {
		return nil, classifyHTTP(err, "crm profile "+targetID)
	}
	if t.ID == "" {
		t.ID = targetID
	}
	return &t, nil
}

type contactedRequest struct {
	ContactedAt time.Time `json:"contactedAt"`
}

func (d *HTTPDirectory) MarkTargetContacted(ctx context.Context, targetID string, when time.Time) error {
	path := "/targets/" + url.PathEscape(targetID) + "/contacted"
	if _, err := d.client.Do(ctx, http.MethodPost, path, nil, nil, contactedRequest{ContactedAt: when.UTC()}, nil); err != nil {
		return classifyHTTP(err, "crm mark contacted "+targetID)
	}
	return nil
}

func asStatus(err error, target **http_client.StatusError) bool {
	return errors.As(err, target)
}
