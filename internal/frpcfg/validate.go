package frpcfg

import (
	"github.com/cockroachdb/errors"
)

// Validate checks structural constraints on a single proxy entry.
//
//nolint:funlen // one clause per constraint reads better than helpers here
func (p *Proxy) Validate() error {
	if p.Name == "" {
		return errors.New("proxy name must not be empty")
	}

	switch p.Type {
	case ProxyTypeHTTP, ProxyTypeHTTPS, ProxyTypeTCP, ProxyTypeUDP:
	default:
		return errors.Newf("proxy %q: unknown type %q", p.Name, p.Type)
	}

	if p.Type == ProxyTypeHTTPS && p.Plugin == nil {
		return errors.Newf("proxy %q: https requires a plugin", p.Name)
	}

	if p.Type != ProxyTypeHTTPS && p.Plugin != nil {
		return errors.Newf("proxy %q: plugin is only valid for https", p.Name)
	}

	if p.Plugin != nil {
		if p.LocalIP != "" || p.LocalPort != 0 || len(p.Locations) != 0 {
			return errors.Newf("proxy %q: plugin excludes localIp, localPort and locations", p.Name)
		}

		if p.Plugin.LocalAddr == "" {
			return errors.Newf("proxy %q: plugin localAddr must not be empty", p.Name)
		}

		if p.Plugin.CrtPath == "" || p.Plugin.KeyPath == "" {
			return errors.Newf("proxy %q: plugin requires crtPath and keyPath", p.Name)
		}
	} else {
		if p.LocalIP == "" {
			return errors.Newf("proxy %q: localIp must not be empty", p.Name)
		}

		if p.LocalPort == 0 {
			return errors.Newf("proxy %q: localPort must not be zero", p.Name)
		}
	}

	switch p.Type {
	case ProxyTypeTCP, ProxyTypeUDP:
		if p.RemotePort == 0 {
			return errors.Newf("proxy %q: %s requires remotePort", p.Name, p.Type)
		}
	case ProxyTypeHTTP, ProxyTypeHTTPS:
		if len(p.CustomDomains) == 0 {
			return errors.Newf("proxy %q: %s requires customDomains", p.Name, p.Type)
		}
	}

	return nil
}

// Validate checks the fragment: every proxy must be valid and names must be
// unique within the fragment.
func (p *ProxyConfig) Validate() error {
	seen := make(map[string]struct{}, len(p.Proxies))

	for i := range p.Proxies {
		if err := p.Proxies[i].Validate(); err != nil {
			return errors.Wrapf(err, "fragment %q", p.Name)
		}

		name := p.Proxies[i].Name
		if _, dup := seen[name]; dup {
			return errors.Newf("fragment %q: duplicate proxy name %q", p.Name, name)
		}

		seen[name] = struct{}{}
	}

	return nil
}

// Validate checks the root configuration.
func (c *ClientConfig) Validate() error {
	if c.ServerAddr == "" {
		return errors.New("serverAddr must not be empty")
	}

	if c.ServerPort == 0 {
		return errors.New("serverPort must not be zero")
	}

	if c.Auth != nil && c.Auth.Token == "" {
		return errors.New("auth token must not be empty")
	}

	if c.Webserver != nil && c.Webserver.Port == 0 {
		return errors.New("webserver port must not be zero")
	}

	for i := range c.Proxies {
		if err := c.Proxies[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}
