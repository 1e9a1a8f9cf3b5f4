package http_client

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type HTTPClientsComponent struct {
	*core.BaseComponent
	cfg     *HTTPClientsConfig
	mu      sync.RWMutex
	clients map[string]*InstrumentedClient
}

func NewHTTPClientsComponent(cfg *HTTPClientsConfig) *HTTPClientsComponent {
	return &HTTPClientsComponent{
		BaseComponent: core.NewBaseComponent(consts.COMPONENT_HTTP_CLIENTS, consts.COMPONENT_LOGGING),
		cfg:           cfg,
		clients:       map[string]*InstrumentedClient{},
	}
}

func (hc *HTTPClientsComponent) Start(ctx context.Context) error {
	if err := hc.BaseComponent.Start(ctx); err != nil {
		return err
	}
	hc.cfg.applyDefaults()

	hc.mu.Lock()
	for name, cCfg := range hc.cfg.Clients {
		hc.clients[name] = newInstrumentedClient(name, cCfg)
	}
	hc.mu.Unlock()

	logging.Infof(ctx, "http_clients started: %v", hc.names())
	return nil
}

func newInstrumentedClient(name string, cCfg *HTTPClientConfig) *InstrumentedClient {
	underlying := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        cCfg.MaxIdleConns,
		MaxIdleConnsPerHost: cCfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cCfg.IdleConnTimeout,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &InstrumentedClient{
		Name:           name,
		BaseURL:        cCfg.BaseURL,
		DefaultHeaders: cCfg.DefaultHeaders,
		Client: &http.Client{
			Timeout:   cCfg.Timeout,
			Transport: otelhttp.NewTransport(underlying),
		},
		Retry:      cCfg.Retry,
		Underlying: underlying,
	}
}

func (hc *HTTPClientsComponent) Stop(ctx context.Context) error {
	defer func() { _ = hc.BaseComponent.Stop(ctx) }()
	hc.mu.RLock()
	for _, cli := range hc.clients {
		if cli.Underlying != nil {
			cli.Underlying.CloseIdleConnections()
		}
	}
	hc.mu.RUnlock()
	return nil
}

// Client returns a named client.
func (hc *HTTPClientsComponent) Client(name string) (*InstrumentedClient, error) {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	c, ok := hc.clients[name]
	if !ok {
		return nil, fmt.Errorf("http client %s not found", name)
	}
	return c, nil
}

func (hc *HTTPClientsComponent) Default() (*InstrumentedClient, error) {
	return hc.Client(hc.cfg.Default)
}

func (hc *HTTPClientsComponent) names() []string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	out := make([]string, 0, len(hc.clients))
	for n := range hc.clients {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
