package llm

import (
	"context"
	"errors"
	"fmt"
)

// RoutePolicy decides which client serves a given request
type RoutePolicy interface {
	// Select returns the target client to use and (optionally) model override
	Select(req *ChatRequest) (Client, string, error)
}

// StaticPolicy routes by req.Model. An exact ByModel entry wins; otherwise
// the provider inferred from the model name picks a ByProvider client; the
// Default client serves everything else.
type StaticPolicy struct {
	Default    Client
	ByModel    map[string]Client
	ByProvider map[Provider]Client
}

func (p StaticPolicy) Select(req *ChatRequest) (Client, string, error) {
	if req != nil && req.Model != "" {
		if c, ok := p.ByModel[req.Model]; ok && c != nil {
			return c, req.Model, nil
		}
		if prov, ok := ProviderFor(req.Model); ok {
			if c, ok := p.ByProvider[prov]; ok && c != nil {
				return c, req.Model, nil
			}
			if p.Default != nil && p.Default.Provider() != prov {
				return nil, "", fmt.Errorf("no %s client configured for model %s", prov, req.Model)
			}
		}
		if p.Default != nil {
			return p.Default, req.Model, nil
		}
		return nil, "", errors.New("no default client configured")
	}
	if p.Default == nil {
		return nil, "", errors.New("no default client configured")
	}
	return p.Default, "", nil
}

// RouterClient implements Client and delegates to inner clients via RoutePolicy.
// Catalog entries pin models per agent; the router lets one handle serve
// agents whose models live at different providers.
type RouterClient struct {
	policy RoutePolicy
}

func NewRouterClient(policy RoutePolicy) *RouterClient { return &RouterClient{policy: policy} }

func (r *RouterClient) Chat(ctx context.Context, req *ChatRequest) (*Response, error) {
	c, modelOverride, err := r.policy.Select(req)
	if err != nil {
		return nil, err
	}
	if modelOverride != "" && req.Model != modelOverride {
		cp := *req
		cp.Model = modelOverride
		req = &cp
	}
	return c.Chat(ctx, req)
}

func (r *RouterClient) Model() string      { return "router" }
func (r *RouterClient) Provider() Provider { return Provider("router") }
func (r *RouterClient) Validate() error {
	if r.policy == nil {
		return errors.New("nil route policy")
	}
	return nil
}
