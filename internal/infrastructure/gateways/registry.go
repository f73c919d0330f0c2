// Package gateways holds the static registry of provider adapters.
package gateways

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
	"payroute.backend/internal/infrastructure/gateways/razorpay"
	"payroute.backend/internal/infrastructure/gateways/sandbox"
	"payroute.backend/internal/infrastructure/gateways/stripe"
)

type Registry struct {
	factories map[string]gateway.Factory
}

func NewRegistry(factories ...gateway.Factory) *Registry {
	registry := &Registry{factories: map[string]gateway.Factory{}}
	for _, factory := range factories {
		if factory == nil {
			continue
		}
		code := normalize(factory.Code())
		if code == "" {
			continue
		}
		registry.factories[code] = factory
	}
	return registry
}

// NewDefaultRegistry registers every built-in provider.
func NewDefaultRegistry(httpClient *http.Client) *Registry {
	return NewRegistry(
		stripe.NewFactory(httpClient),
		razorpay.NewFactory(httpClient),
		sandbox.NewFactory(),
	)
}

func (r *Registry) Exists(code string) bool {
	if r == nil {
		return false
	}
	_, ok := r.factories[normalize(code)]
	return ok
}

func (r *Registry) New(code string, cfg gateway.Config) (gateway.Gateway, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownGateway, code)
	}
	factory, ok := r.factories[normalize(code)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrUnknownGateway, code)
	}
	if cfg.Code == "" {
		cfg.Code = normalize(code)
	}
	return factory.New(cfg)
}

// Codes lists registered providers in lexical order.
func (r *Registry) Codes() []string {
	if r == nil {
		return nil
	}
	codes := make([]string, 0, len(r.factories))
	for code := range r.factories {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

func normalize(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}
