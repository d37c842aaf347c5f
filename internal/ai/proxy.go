package ai

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/modfin/bellman"
	"github.com/modfin/bellman/models/embed"
	"github.com/modfin/bellman/models/gen"
	"github.com/modfin/bellman/services/anthropic"
	"github.com/modfin/bellman/services/openai"
	"github.com/modfin/bellman/services/vertexai"
	"github.com/modfin/bellman/services/voyageai"
	"github.com/modfin/henry/mapz"
	"github.com/modfin/henry/slicez"
)

// APICredentials holds the provider keys, bound from the command line with
// clix. A provider is registered only when its credentials are present.
type APICredentials struct {
	BellmanURL     string `cli:"bellman-url"`
	BellmanKeyName string `cli:"bellman-key-name"`
	BellmanKey     string `cli:"bellman-key"`

	VertexAICredential string `cli:"vertexai-credential"`
	VertexAIProject    string `cli:"vertexai-project"`
	VertexAIRegion     string `cli:"vertexai-region"`

	OpenAIKey    string `cli:"openai-key"`
	AnthropicKey string `cli:"anthropic-key"`
	VoyageAIKey  string `cli:"voyageai-key"`
}

var ErrNoModelProvided = errors.New("no model was provided")
var ErrClientNotFound = errors.New("client not found")

// Proxy routes embedding and generation requests to the client registered
// for the model's provider.
type Proxy struct {
	embeders map[string]embed.Embeder
	gens     map[string]gen.Gen
	logger   *slog.Logger
}

func NewProxy(logger *slog.Logger) *Proxy {
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		embeders: map[string]embed.Embeder{},
		gens:     map[string]gen.Gen{},
		logger:   logger,
	}
}

// New returns a proxy with every provider credentials has keys for.
func New(credentials APICredentials, logger *slog.Logger) (*Proxy, error) {
	p := NewProxy(logger)

	if credentials.AnthropicKey != "" {
		p.RegisterGen(anthropic.New(credentials.AnthropicKey))
	}

	if credentials.OpenAIKey != "" {
		client := openai.New(credentials.OpenAIKey)
		p.RegisterGen(client)
		p.RegisterEmbeder(client)
	}

	if credentials.VertexAIRegion != "" && credentials.VertexAIProject != "" {
		client, err := vertexai.New(vertexai.GoogleConfig{
			Project:    credentials.VertexAIProject,
			Region:     credentials.VertexAIRegion,
			Credential: credentials.VertexAICredential,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create vertexai client: %w", err)
		}
		p.RegisterGen(client)
		p.RegisterEmbeder(client)
	}

	if credentials.VoyageAIKey != "" {
		p.RegisterEmbeder(voyageai.New(credentials.VoyageAIKey))
	}

	if credentials.BellmanKey != "" && credentials.BellmanURL != "" {
		client := bellman.New(credentials.BellmanURL, bellman.Key{
			Name:  credentials.BellmanKeyName,
			Token: credentials.BellmanKey,
		})
		p.RegisterGen(client)
		p.RegisterEmbeder(client)
	}

	return p, nil
}

func (p *Proxy) RegisterEmbeder(embeder embed.Embeder) {
	p.embeders[embeder.Provider()] = embeder
	p.logger.Debug("adding embed provider", "provider", embeder.Provider())
}

func (p *Proxy) RegisterGen(llm gen.Gen) {
	p.gens[llm.Provider()] = llm
	p.logger.Debug("adding llm provider", "provider", llm.Provider())
}

// EmbedProviders lists the registered embedding providers, sorted.
func (p *Proxy) EmbedProviders() []string {
	return sortedKeys(p.embeders)
}

// GenProviders lists the registered generation providers, sorted.
func (p *Proxy) GenProviders() []string {
	return sortedKeys(p.gens)
}

func (p *Proxy) Embed(req embed.Request) (*embed.Response, error) {
	client, ok := p.embeders[req.Model.Provider]
	if !ok || client == nil {
		return nil, fmt.Errorf("no embed client registered for provider '%s' (have %v), %w",
			req.Model.Provider, p.EmbedProviders(), ErrClientNotFound)
	}

	provider, name, err := resolveModel(req.Model.Provider, req.Model.Name)
	if err != nil {
		return nil, err
	}
	req.Model.Provider = provider
	req.Model.Name = name
	return client.Embed(req)
}

func (p *Proxy) Gen(mod gen.Model) (*gen.Generator, error) {
	client, ok := p.gens[mod.Provider]
	if !ok || client == nil {
		return nil, fmt.Errorf("no llm client registered for provider '%s' (have %v), %w",
			mod.Provider, p.GenProviders(), ErrClientNotFound)
	}

	provider, name, err := resolveModel(mod.Provider, mod.Name)
	if err != nil {
		return nil, err
	}
	mod.Provider = provider
	mod.Name = name
	return client.Generator(gen.WithModel(mod)), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := slicez.Map(mapz.Entries(m), func(e mapz.Entry[string, V]) string {
		return e.Key
	})
	slices.Sort(keys)
	return keys
}

// resolveModel unwraps gateway model names: a bellman model is named
// "<provider>/<model>" and is forwarded as that provider's model.
func resolveModel(provider, name string) (string, string, error) {
	if provider == bellman.Provider {
		inner, innerName, found := strings.Cut(name, "/")
		if !found {
			return "", "", fmt.Errorf("invalid bellman model name '%s', %w", name, ErrNoModelProvided)
		}
		provider, name = inner, innerName
	}
	if name == "" {
		return "", "", fmt.Errorf("model name is not set for provider '%s', %w", provider, ErrNoModelProvided)
	}
	return provider, name, nil
}

// ParseModel splits "<provider>/<model>", the format of the model flags.
// Everything after the first slash is the model name, so gateway models
// keep their own provider prefix.
func ParseModel(s string) (provider, name string) {
	provider, name, _ = strings.Cut(s, "/")
	return provider, name
}
