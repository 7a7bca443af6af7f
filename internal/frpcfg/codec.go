package frpcfg

import (
	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
)

// Encode renders the root configuration as TOML. Output is deterministic:
// the same value always encodes to the same bytes.
func (c *ClientConfig) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode client config")
	}

	return data, nil
}

// Encode renders the fragment as TOML.
func (p *ProxyConfig) Encode() ([]byte, error) {
	data, err := toml.Marshal(p)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode proxy config %q", p.Name)
	}

	return data, nil
}

// DecodeClientConfig parses a root configuration document.
func DecodeClientConfig(data []byte) (*ClientConfig, error) {
	var cfg ClientConfig

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode client config")
	}

	return &cfg, nil
}

// DecodeProxyConfig parses a fragment document. The fragment name is not
// part of the document and must be supplied by the caller.
func DecodeProxyConfig(name string, data []byte) (*ProxyConfig, error) {
	var cfg ProxyConfig

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrapf(err, "failed to decode proxy config %q", name)
	}

	cfg.Name = name

	return &cfg, nil
}
