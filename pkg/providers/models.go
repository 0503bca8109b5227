package providers

import (
	"context"

	"github.com/kadirpekel/codegate/pkg/httpclient"
	"github.com/kadirpekel/codegate/pkg/models"
	"github.com/kadirpekel/codegate/pkg/protocol"
)

// Models lists the model names an upstream serves, for provider model
// sync. baseURL is the endpoint's resolved request base: Ollama exposes
// its tag listing, Anthropic versions the models route itself, and the
// OpenAI family serves /models under the base.
func (c *Client) Models(ctx context.Context, providerType models.ProviderType, baseURL, apiKey string) ([]string, error) {
	switch providerType {
	case models.ProviderOllama:
		var tags protocol.OllamaTagsResponse
		if err := c.get(ctx, c.openai, join(baseURL, "/api/tags"), bearerAuth(apiKey), &tags); err != nil {
			return nil, err
		}
		names := make([]string, 0, len(tags.Models))
		for _, model := range tags.Models {
			names = append(names, model.Name)
		}
		return names, nil

	case models.ProviderAnthropic:
		return c.listModels(ctx, c.anthropic, join(baseURL, "/v1/models"), anthropicAuth(apiKey))

	default:
		return c.listModels(ctx, c.openai, join(baseURL, "/models"), bearerAuth(apiKey))
	}
}

// listModels reads the {"data":[{"id":…}]} listing shape, which
// Anthropic's model listing shares with the OpenAI family.
func (c *Client) listModels(ctx context.Context, hc *httpclient.Client, url string, auth authFunc) ([]string, error) {
	var list protocol.OpenAIModelList
	if err := c.get(ctx, hc, url, auth, &list); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(list.Data))
	for _, model := range list.Data {
		names = append(names, model.ID)
	}
	return names, nil
}
