/*
Copyright 2020 The cert-manager Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sslconf

import (
	"context"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/cert-manager/sslcontext/pkg/keystore"
	"github.com/cert-manager/sslcontext/pkg/trustchain"
)

// Options is a declarative description of a Config: every field mirrors
// one of the mutators in config.go, so Apply never does anything a caller
// couldn't have done by chaining method calls themselves.
type Options struct {
	TrustFiles       []string `json:"trustFiles,omitempty"`
	KeyFile          string   `json:"keyFile,omitempty"`
	StorePassword    string   `json:"storePassword,omitempty"`
	KeyPassword      *string  `json:"keyPassword,omitempty"`
	EnabledCiphers   []string `json:"enabledCiphers,omitempty"`
	EnabledProtocols []string `json:"enabledProtocols,omitempty"`
	DefaultProtocol  string   `json:"defaultProtocol,omitempty"`
	DoVerify         *bool    `json:"doVerify,omitempty"`
	CheckCRL         *bool    `json:"checkCRL,omitempty"`
	WantClientAuth   *bool    `json:"wantClientAuth,omitempty"`
	NeedClientAuth   *bool    `json:"needClientAuth,omitempty"`
	SoTimeoutMs      *int     `json:"soTimeoutMs,omitempty"`
	ConnectTimeoutMs *int     `json:"connectTimeoutMs,omitempty"`
}

// LoadOptions decodes a YAML (or JSON, which is a YAML subset) document
// into an Options value using sigs.k8s.io/yaml, the same library the
// teacher carries for turning config documents into typed structs.
func LoadOptions(data []byte) (*Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return nil, err
	}
	return &opts, nil
}

// LoadOptionsFile reads and decodes path via LoadOptions.
func LoadOptionsFile(path string) (*Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadOptions(data)
}

// Apply walks opts and calls the corresponding mutator for every
// populated field, in an order chosen so that dirty-marking mutators
// (trust/key material, default protocol) run first and so a partially
// applied Options value on error leaves Config in a state whose already
// applied mutators are individually valid.
func (c *Config) Apply(ctx context.Context, opts *Options) error {
	if opts == nil {
		return nil
	}

	if len(opts.TrustFiles) > 0 {
		material, err := loadTrustFiles(opts.TrustFiles)
		if err != nil {
			return err
		}
		if err := c.SetTrustMaterial(ctx, material); err != nil {
			return err
		}
	}

	if opts.KeyFile != "" {
		data, err := os.ReadFile(opts.KeyFile)
		if err != nil {
			return err
		}
		km, err := keystore.Load(data, opts.StorePassword, opts.KeyPassword)
		if err != nil {
			return err
		}
		if err := c.SetKeyMaterial(ctx, km); err != nil {
			return err
		}
	}

	if opts.DefaultProtocol != "" {
		if err := c.SetDefaultProtocol(ctx, opts.DefaultProtocol); err != nil {
			return err
		}
	}

	if len(opts.EnabledProtocols) > 0 {
		if err := c.SetEnabledProtocols(opts.EnabledProtocols); err != nil {
			return err
		}
	}
	if len(opts.EnabledCiphers) > 0 {
		if err := c.SetEnabledCiphers(opts.EnabledCiphers); err != nil {
			return err
		}
	}
	if opts.DoVerify != nil {
		c.SetDoVerify(*opts.DoVerify)
	}
	if opts.CheckCRL != nil {
		c.SetCheckCRL(*opts.CheckCRL)
	}
	if opts.WantClientAuth != nil {
		c.SetWantClientAuth(*opts.WantClientAuth)
	}
	if opts.NeedClientAuth != nil {
		c.SetNeedClientAuth(*opts.NeedClientAuth)
	}
	if opts.SoTimeoutMs != nil {
		if err := c.SetSoTimeout(*opts.SoTimeoutMs); err != nil {
			return err
		}
	}
	if opts.ConnectTimeoutMs != nil {
		if err := c.SetConnectTimeout(*opts.ConnectTimeoutMs); err != nil {
			return err
		}
	}
	return nil
}

func loadTrustFiles(paths []string) (trustchain.TrustMaterial, error) {
	chain := &trustchain.TrustChain{}
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return trustchain.TrustMaterial{}, err
		}
		material, err := trustchain.FromPEM(f)
		f.Close()
		if err != nil {
			return trustchain.TrustMaterial{}, err
		}
		chain.Add(material)
	}
	return trustchain.FromAnchors(chain.Anchors()...).WithCRLs(chain.CRLs()...), nil
}
