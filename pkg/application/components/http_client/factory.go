package http_client

import (
	"fmt"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"
)

type Factory struct{}

func NewFactory() *Factory { return &Factory{} }

func (f *Factory) Create(cfg *HTTPClientsConfig) (core.Component, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, fmt.Errorf("http_clients component disabled")
	}
	for name, c := range cfg.Clients {
		if c == nil {
			return nil, fmt.Errorf("http client %s has empty config", name)
		}
	}
	return NewHTTPClientsComponent(cfg), nil
}
