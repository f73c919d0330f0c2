package usecases

import (
	"encoding/json"
	"fmt"
	"strings"

	"payroute.backend/internal/domain/entities"
	domainerrors "payroute.backend/internal/domain/errors"
	"payroute.backend/internal/domain/gateway"
)

// CredentialOpener decrypts sealed gateway credentials
type CredentialOpener interface {
	Seal(plaintext, associated []byte) (string, error)
	Open(sealed string, associated []byte) ([]byte, error)
}

// GatewayResolver turns a stored gateway into a ready adapter.
type GatewayResolver struct {
	provider gateway.Provider
	opener   CredentialOpener
}

func NewGatewayResolver(provider gateway.Provider, opener CredentialOpener) *GatewayResolver {
	return &GatewayResolver{provider: provider, opener: opener}
}

// credentialAAD binds sealed credentials to the gateway they belong to.
func credentialAAD(code string) []byte {
	return []byte("gateway:" + strings.ToLower(code))
}

// SealCredentials encrypts creds for storage on the gateway row.
func (r *GatewayResolver) SealCredentials(code string, creds entities.GatewayCredentials) (string, error) {
	plain, err := json.Marshal(creds)
	if err != nil {
		return "", err
	}
	return r.opener.Seal(plain, credentialAAD(code))
}

func (r *GatewayResolver) credentials(gw *entities.PaymentGateway) (entities.GatewayCredentials, error) {
	var creds entities.GatewayCredentials
	if gw.SealedCredentials == "" {
		return creds, fmt.Errorf("%w: gateway %s has no credentials", domainerrors.ErrConfiguration, gw.Code)
	}
	plain, err := r.opener.Open(gw.SealedCredentials, credentialAAD(gw.Code))
	if err != nil {
		return creds, fmt.Errorf("%w: gateway %s credentials: %v", domainerrors.ErrConfiguration, gw.Code, err)
	}
	if err := json.Unmarshal(plain, &creds); err != nil {
		return creds, fmt.Errorf("%w: gateway %s credentials: %v", domainerrors.ErrConfiguration, gw.Code, err)
	}
	return creds, nil
}

// Resolve builds the adapter for gw. Any failure wraps ErrConfiguration.
func (r *GatewayResolver) Resolve(gw *entities.PaymentGateway, subAccountID string) (gateway.Gateway, error) {
	if gw == nil {
		return nil, fmt.Errorf("%w: gateway not loaded", domainerrors.ErrConfiguration)
	}
	if !r.provider.Exists(gw.ProviderCode()) {
		return nil, fmt.Errorf("%w: %v: %s", domainerrors.ErrConfiguration, domainerrors.ErrUnknownGateway, gw.ProviderCode())
	}
	creds, err := r.credentials(gw)
	if err != nil {
		return nil, err
	}
	adapter, err := r.provider.New(gw.ProviderCode(), gateway.Config{
		Code:         gw.Code,
		BaseURL:      gw.APIBaseURL,
		Credentials:  creds,
		SubAccountID: subAccountID,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domainerrors.ErrConfiguration, err)
	}
	return adapter, nil
}

// Supports reports whether an adapter is registered for provider.
func (r *GatewayResolver) Supports(provider string) bool {
	return r.provider.Exists(provider)
}
