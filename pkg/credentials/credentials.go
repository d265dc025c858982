// Package credentials resolves the remote accounts synced by this service.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
)

// ContextName is the pipeline context provider holding the credentials of
// the account being synced.
const ContextName = "credentials"

// Lookup returns the credentials of one account.
type Lookup interface {
	Get(ctx context.Context, apiKey string) (models.AccountCredentials, error)
}

// StaticProvider serves a fixed set of accounts from configuration.
type StaticProvider struct {
	accounts map[string]models.AccountCredentials
	order    []string
}

func NewStaticProvider(accounts []models.AccountCredentials) (*StaticProvider, error) {
	p := &StaticProvider{accounts: make(map[string]models.AccountCredentials, len(accounts))}
	for _, a := range accounts {
		if a.APIKey == "" {
			return nil, fmt.Errorf("account credentials with an empty api key")
		}
		if _, ok := p.accounts[a.APIKey]; ok {
			return nil, fmt.Errorf("account %s is configured twice", a.APIKey)
		}
		p.accounts[a.APIKey] = a
		p.order = append(p.order, a.APIKey)
	}
	slices.Sort(p.order)
	return p, nil
}

// ParseAccounts reads a JSON object mapping api keys to rest keys.
func ParseAccounts(raw string) ([]models.AccountCredentials, error) {
	if raw == "" {
		return []models.AccountCredentials{}, nil
	}
	var keys map[string]string
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return nil, fmt.Errorf("invalid account credentials: %w", err)
	}
	out := make([]models.AccountCredentials, 0, len(keys))
	for apiKey, restKey := range keys {
		out = append(out, models.AccountCredentials{APIKey: apiKey, RestKey: restKey})
	}
	slices.SortFunc(out, func(a, b models.AccountCredentials) int { return strings.Compare(a.APIKey, b.APIKey) })
	return out, nil
}

// Accounts returns every configured account ordered by api key.
func (p *StaticProvider) Accounts(_ context.Context) ([]models.AccountCredentials, error) {
	out := make([]models.AccountCredentials, 0, len(p.order))
	for _, apiKey := range p.order {
		out = append(out, p.accounts[apiKey])
	}
	return out, nil
}

func (p *StaticProvider) Get(_ context.Context, apiKey string) (models.AccountCredentials, error) {
	a, ok := p.accounts[apiKey]
	if !ok {
		return models.AccountCredentials{}, apperrors.NewNotFoundError("account credentials", "api_key", apiKey)
	}
	return a, nil
}

// ContextProvider exposes the credentials of the synced account to
// pipelines under ContextName.
type ContextProvider struct {
	lookup Lookup
}

func NewContextProvider(lookup Lookup) *ContextProvider {
	return &ContextProvider{lookup: lookup}
}

func (p *ContextProvider) Name() string {
	return ContextName
}

func (p *ContextProvider) Values(ctx context.Context, apiKey string) (map[string]any, error) {
	a, err := p.lookup.Get(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return map[string]any{"api_key": a.APIKey, "rest_key": a.RestKey}, nil
}

// FromContext reads the credentials set by ContextProvider.
func FromContext(pctx pipeline.Context) models.AccountCredentials {
	return models.AccountCredentials{
		APIKey:  pctx.String(ContextName, "api_key"),
		RestKey: pctx.String(ContextName, "rest_key"),
	}
}
