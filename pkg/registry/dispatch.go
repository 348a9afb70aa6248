package registry

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/unillm/unillm/pkg/config"
)

// Selection is everything the provider layer needs to serve one request:
// the resolved model binding, a rotated credential, and the outbound HTTP
// client matching the pool's network path.
type Selection struct {
	ModelID    string
	ModelName  string
	Credential Credential
	Client     *http.Client
}

// Dispatcher resolves a canonical request's model to a Selection. It owns
// the two outbound clients: the direct one ignores any environment proxy,
// the proxied one is only built when a proxy URL was configured.
type Dispatcher struct {
	registry *Registry
	direct   *http.Client
	proxied  *http.Client
}

// NewDispatcher creates a Dispatcher. proxyURL may be empty; pools marked
// need_proxy then fail dispatch with ErrProxyNotConfigured.
//
// Neither client carries a timeout: streaming responses legitimately outlive
// any fixed deadline, so request lifetime is controlled by context instead.
func NewDispatcher(reg *Registry, proxyURL string) (*Dispatcher, error) {
	d := &Dispatcher{
		registry: reg,
		direct: &http.Client{
			Transport: &http.Transport{Proxy: nil},
		},
	}

	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parsing proxy url: %w", err)
		}
		d.proxied = &http.Client{
			Transport: &http.Transport{Proxy: http.ProxyURL(u)},
		}
	}

	return d, nil
}

// Registry returns the model registry behind this dispatcher.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch resolves the model, rotates its credential pool once, and picks
// the network path. Every failure here is a configuration error surfaced
// before any outbound request is made.
func (d *Dispatcher) Dispatch(modelID string) (*Selection, error) {
	info, err := d.registry.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	cred, err := d.registry.Rotate(info.KeyPoolID)
	if err != nil {
		return nil, err
	}

	client := d.direct
	if cred.NeedProxy {
		if d.proxied == nil {
			return nil, fmt.Errorf("%w (pool %q)", ErrProxyNotConfigured, info.KeyPoolID)
		}
		client = d.proxied
	}

	return &Selection{
		ModelID:    modelID,
		ModelName:  info.Name,
		Credential: cred,
		Client:     client,
	}, nil
}

// ProviderKind reports the provider kind serving this selection.
func (s *Selection) ProviderKind() config.ProviderKind {
	return s.Credential.Provider.Kind
}
