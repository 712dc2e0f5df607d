package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

const cypherPrompt = `Task: Generate a Cypher query for the user question.

Schema:
- Node: Entity (property: name)
- Relationship: RELATION (properties: name, source)

Rules:
1. Return only the Cypher query, no explanations.
2. Use CONTAINS with toLower() for fuzzy matching.
3. Extract the keywords from the question and match on them.
4. Limit the result to 20 rows.

Query template:
MATCH (s:Entity)-[r:RELATION]->(o:Entity) WHERE toLower(s.name) CONTAINS toLower("keyword") OR toLower(o.name) CONTAINS toLower("keyword") RETURN s.name AS subject, r.name AS predicate, o.name AS object, r.source AS source LIMIT 20

Question: %s

Cypher:`

const cypherRetryPrompt = `The previous Cypher query failed. Generate a corrected query.

Schema:
- Node: Entity (property: name)
- Relationship: RELATION (properties: name, source)

Failed query:
%s

Error:
%s

Rules:
1. Return only the corrected Cypher query, no explanations.
2. Use CONTAINS with toLower() for fuzzy matching.
3. Limit the result to 20 rows.

Question: %s

Cypher:`

const extractionPrompt = `You are a knowledge extraction assistant. Extract knowledge triplets from the given text.

Task:
1. Read the text carefully.
2. Identify the important entities (people, places, concepts, methods).
3. Identify the relationships between those entities.
4. Output each relationship as a (subject, predicate, object) triplet.

Requirements:
- Subject and object must be concrete entities or concepts.
- The predicate must clearly express the relationship.
- Avoid vague or overly abstract relationships.
- Every triplet must be semantically correct for the text.

Respond with this JSON format only, no other text:
[
    {"subject": "name", "predicate": "relation", "object": "name"}
]

Text:
%s`

const answerPrompt = `You are a knowledge assistant. Answer the user question using the provided context.

Context:
%s

Question: %s

Answer based strictly on the context above. If the context does not contain the relevant information, say so explicitly. Be accurate, detailed and well structured.`

// ClientFunctions defines the interface for the language model client.
type ClientFunctions interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Translate(ctx context.Context, question string) (string, error)
	RepairQuery(ctx context.Context, question string, failedCypher string, queryErr error) (string, error)
	ExtractTriplets(ctx context.Context, text string, source string) ([]model.Triplet, error)
	Answer(ctx context.Context, question string, evidenceContext string) (string, error)
}

// Client talks to an Ollama server over its generate API.
type Client struct {
	baseUrl string
	model   string
	client  *http.Client
	log     *slog.Logger
}

// NewClient creates a language model client and verifies that the
// configured model is served.
func NewClient(ctx context.Context, baseUrl string, modelName string, timeout time.Duration, logger *slog.Logger) (*Client, error) {
	client := &Client{
		baseUrl: strings.TrimRight(baseUrl, "/"),
		model:   modelName,
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}

	if err := client.checkModel(ctx); err != nil {
		return nil, err
	}

	logger.Info("Connected to language model", slog.String("url", baseUrl), slog.String("model", modelName))

	return client, nil
}

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// checkModel verifies that the configured model is available on the
// server's tag list.
func (c *Client) checkModel(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseUrl+"/api/tags", nil)
	if err != nil {
		return helper.NewError("create model check request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Join(model.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Join(model.ErrModelUnavailable, fmt.Errorf("model server returned status %d", resp.StatusCode))
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return errors.Join(model.ErrModelUnavailable, err)
	}

	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}

	return errors.Join(model.ErrModelUnavailable, fmt.Errorf("model %v not found on server", c.model))
}

// Generate sends a raw prompt to the model and returns its completion.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]any{
			"temperature": 0.1,
		},
	})
	if err != nil {
		return "", helper.NewError("marshal generate request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return "", helper.NewError("create generate request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", errors.Join(model.ErrBackendTimeout, err)
		}
		return "", errors.Join(model.ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", errors.Join(model.ErrModelUnavailable, fmt.Errorf("model server returned status %d: %s", resp.StatusCode, string(respBody)))
	}

	var response generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", helper.NewError("decode generate response", err)
	}
	if response.Error != "" {
		return "", errors.Join(model.ErrModelUnavailable, errors.New(response.Error))
	}

	return response.Response, nil
}

// Translate turns a natural language question into a Cypher query over
// the Entity/RELATION schema.
func (c *Client) Translate(ctx context.Context, question string) (string, error) {
	response, err := c.Generate(ctx, fmt.Sprintf(cypherPrompt, question))
	if err != nil {
		return "", err
	}
	return CleanCypher(response), nil
}

// RepairQuery asks for a corrected Cypher query after a failed
// execution, feeding the failed query and the store's error back to the
// model. Callers give this one attempt before degrading.
func (c *Client) RepairQuery(ctx context.Context, question string, failedCypher string, queryErr error) (string, error) {
	response, err := c.Generate(ctx, fmt.Sprintf(cypherRetryPrompt, failedCypher, queryErr.Error(), question))
	if err != nil {
		return "", err
	}
	return CleanCypher(response), nil
}

// ExtractTriplets pulls knowledge triplets out of a text passage. The
// source is attached to every triplet for provenance.
func (c *Client) ExtractTriplets(ctx context.Context, text string, source string) ([]model.Triplet, error) {
	response, err := c.Generate(ctx, fmt.Sprintf(extractionPrompt, text))
	if err != nil {
		return nil, err
	}

	triplets, err := ParseTriplets(response)
	if err != nil {
		return nil, helper.NewError("parse extracted triplets", err)
	}

	rid := model.DocumentRID(source)
	for i := range triplets {
		triplets[i].Source = source
		triplets[i].DocumentRID = rid
	}

	return triplets, nil
}

// Answer generates a grounded answer to the question from the fused
// evidence context.
func (c *Client) Answer(ctx context.Context, question string, evidenceContext string) (string, error) {
	return c.Generate(ctx, fmt.Sprintf(answerPrompt, evidenceContext, question))
}

// CleanCypher strips markdown fences and language tags the model tends
// to wrap generated queries in.
func CleanCypher(response string) string {
	clean := strings.TrimSpace(response)
	clean = strings.TrimPrefix(clean, "```cypher")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	clean = strings.TrimPrefix(clean, "cypher\n")
	return strings.TrimSpace(clean)
}

// ParseTriplets decodes the model's JSON triplet list, tolerating prose
// around the array.
func ParseTriplets(response string) ([]model.Triplet, error) {
	clean := strings.TrimSpace(response)

	start := strings.Index(clean, "[")
	end := strings.LastIndex(clean, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no triplet array in response: %.80q", clean)
	}

	var raw []struct {
		Subject   string `json:"subject"`
		Predicate string `json:"predicate"`
		Object    string `json:"object"`
	}
	if err := json.Unmarshal([]byte(clean[start:end+1]), &raw); err != nil {
		return nil, fmt.Errorf("invalid triplet json: %v", err)
	}

	triplets := make([]model.Triplet, 0, len(raw))
	for _, t := range raw {
		subject := strings.TrimSpace(t.Subject)
		predicate := strings.TrimSpace(t.Predicate)
		object := strings.TrimSpace(t.Object)
		if subject == "" || predicate == "" || object == "" {
			continue
		}
		triplets = append(triplets, model.Triplet{
			Subject:   subject,
			Predicate: predicate,
			Object:    object,
		})
	}

	return triplets, nil
}
