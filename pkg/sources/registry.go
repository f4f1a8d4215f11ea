package sources

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/kerbaras/comicdl/pkg/data"
)

// Registry dispatches URLs to resolvers by second-level domain.
type Registry struct {
	resolvers map[string]Resolver
	allowed   map[string]bool // registrable domains; empty allows any registered source
}

func NewRegistry(allowed []string, resolvers ...Resolver) *Registry {
	r := &Registry{
		resolvers: make(map[string]Resolver),
		allowed:   make(map[string]bool),
	}
	for _, d := range allowed {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			r.allowed[d] = true
		}
	}
	for _, res := range resolvers {
		r.Register(res)
	}
	return r
}

func (r *Registry) Register(res Resolver) {
	r.resolvers[res.Name()] = res
}

// Route validates rawURL's origin and returns the resolver for it.
func (r *Registry) Route(rawURL string) (Resolver, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("%w: %q is not an http(s) url", data.ErrUnsupportedSource, rawURL)
	}
	if len(r.allowed) > 0 && !r.allowed[strings.ToLower(RegistrableDomain(rawURL))] {
		return nil, fmt.Errorf("%w: %s is not allowed", data.ErrUnsupportedSource, u.Hostname())
	}
	res, ok := r.resolvers[strings.ToLower(SecondLevelDomain(rawURL))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", data.ErrUnsupportedSource, u.Hostname())
	}
	return res, nil
}

func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.resolvers))
	for name := range r.resolvers {
		out = append(out, name)
	}
	return out
}
