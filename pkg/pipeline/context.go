package pipeline

import (
	"context"
	"fmt"
)

// Context holds the values of every context provider of one pipeline run,
// keyed by provider name.
type Context map[string]map[string]any

// Value returns the value of key from the named provider.
func (c Context) Value(provider, key string) (any, bool) {
	values, ok := c[provider]
	if !ok {
		return nil, false
	}
	v, ok := values[key]
	return v, ok
}

// String returns the value of key from the named provider when it is a
// string.
func (c Context) String(provider, key string) string {
	v, _ := c.Value(provider, key)
	s, _ := v.(string)
	return s
}

// ContextProvider supplies named values to pipelines of one account.
type ContextProvider interface {
	Name() string
	Values(ctx context.Context, apiKey string) (map[string]any, error)
}

// StaticContextProvider returns the same values for every account.
type StaticContextProvider struct {
	ProviderName string
	Data         map[string]any
}

func (p StaticContextProvider) Name() string {
	return p.ProviderName
}

func (p StaticContextProvider) Values(context.Context, string) (map[string]any, error) {
	return p.Data, nil
}

// BuildContext merges the values of every provider for apiKey. Provider
// names must be unique.
func BuildContext(ctx context.Context, apiKey string, providers ...ContextProvider) (Context, error) {
	pctx := Context{}
	for _, p := range providers {
		name := p.Name()
		if _, ok := pctx[name]; ok {
			return nil, fmt.Errorf("pipeline context provider %s is registered twice", name)
		}
		values, err := p.Values(ctx, apiKey)
		if err != nil {
			return nil, fmt.Errorf("pipeline context provider %s: %w", name, err)
		}
		if values == nil {
			values = map[string]any{}
		}
		pctx[name] = values
	}
	return pctx, nil
}
