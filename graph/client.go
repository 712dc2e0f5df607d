package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/siherrmann/fusionrag/helper"
	"github.com/siherrmann/fusionrag/model"
)

// QueryResult carries the matched rows together with the Cypher text
// that produced them, for provenance.
type QueryResult struct {
	Cypher string           `json:"cypher"`
	Rows   []map[string]any `json:"rows"`
}

// Triplets maps rows onto fact triplets. Rows bound to the canonical
// subject/predicate/object columns map directly; other shapes are
// flattened into the subject field so no evidence is silently dropped.
func (r *QueryResult) Triplets() []model.Triplet {
	triplets := make([]model.Triplet, 0, len(r.Rows))
	for _, row := range r.Rows {
		t := model.Triplet{}
		if s, ok := row["subject"].(string); ok {
			t.Subject = s
			t.Predicate, _ = row["predicate"].(string)
			t.Object, _ = row["object"].(string)
		} else {
			parts := make([]string, 0, len(row))
			for k, v := range row {
				parts = append(parts, fmt.Sprintf("%s=%v", k, v))
			}
			t.Subject = strings.Join(parts, ", ")
		}
		if src, ok := row["source"].(string); ok {
			t.Source = src
			t.DocumentRID = model.DocumentRID(src)
		}
		triplets = append(triplets, t)
	}
	return triplets
}

// ClientFunctions defines the interface for the graph query client.
type ClientFunctions interface {
	Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error)
	KeywordSearch(ctx context.Context, question string, limit int) (*QueryResult, error)
	LoadTriplets(ctx context.Context, triplets []model.Triplet) (int, error)
	DeleteBySource(ctx context.Context, source string) error
	Clear(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Client issues Cypher queries against the fact graph. It executes and
// returns raw rows; question-to-Cypher translation belongs to the
// planner's LLM collaborator, not here.
type Client struct {
	driver neo4j.DriverWithContext
	log    *slog.Logger
}

// NewClient connects to the graph store and verifies the connection.
func NewClient(ctx context.Context, uri, user, password string, logger *slog.Logger) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, helper.NewError("create neo4j driver", err)
	}

	client := &Client{
		driver: driver,
		log:    logger,
	}

	if err := client.Ping(ctx); err != nil {
		return nil, err
	}

	logger.Info("Connected to graph store", slog.String("uri", uri))

	return client, nil
}

// Ping verifies the graph store connection.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return errors.Join(model.ErrGraphQuery, err)
	}
	return nil
}

// Close releases the driver and its connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Query executes a Cypher query and returns the bound rows. A malformed
// or unexecutable query is reported with the offending query text
// attached; callers decide whether to retry with a regenerated query or
// degrade to vector-only evidence.
func (c *Client) Query(ctx context.Context, cypher string, params map[string]any) (*QueryResult, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := neo4j.ExecuteRead(ctx, session, func(tx neo4j.ManagedTransaction) ([]*neo4j.Record, error) {
		result, err := tx.Run(ctx, cypher, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, errors.Join(model.ErrGraphQuery, fmt.Errorf("query %q: %v", cypher, err))
	}

	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		rows = append(rows, row)
	}

	return &QueryResult{Cypher: cypher, Rows: rows}, nil
}

// keywordSearchCypher matches triplets whose subject, predicate or
// object contains any of the question's keywords.
const keywordSearchCypher = `
MATCH (s:Entity)-[r:RELATION]->(o:Entity)
WHERE ANY(keyword IN $keywords WHERE
    s.name CONTAINS keyword OR
    o.name CONTAINS keyword OR
    r.name CONTAINS keyword
)
RETURN s.name AS subject, r.name AS predicate, o.name AS object, r.source AS source
LIMIT $limit`

// KeywordSearch retrieves triplets matching the question's keywords. It
// is the fallback path when Cypher translation yields nothing usable.
func (c *Client) KeywordSearch(ctx context.Context, question string, limit int) (*QueryResult, error) {
	keywords := ExtractKeywords(question)
	if len(keywords) == 0 {
		return &QueryResult{Cypher: keywordSearchCypher}, nil
	}

	return c.Query(ctx, keywordSearchCypher, map[string]any{
		"keywords": keywords,
		"limit":    limit,
	})
}

// LoadTriplets bulk-loads extracted triplets into the graph, merging
// entity nodes and creating one RELATION edge per triplet. This is the
// graph write path of ingestion.
func (c *Client) LoadTriplets(ctx context.Context, triplets []model.Triplet) (int, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	loaded := 0
	for _, t := range triplets {
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}

		_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, `
				MERGE (s:Entity {name: $subject})
				MERGE (o:Entity {name: $object})
				CREATE (s)-[r:RELATION {name: $predicate, source: $source}]->(o)
				RETURN s, r, o`,
				map[string]any{
					"subject":   t.Subject,
					"predicate": t.Predicate,
					"object":    t.Object,
					"source":    t.Source,
				})
			if err != nil {
				return nil, err
			}
			return result.Consume(ctx)
		})
		if err != nil {
			return loaded, errors.Join(model.ErrGraphQuery, err)
		}
		loaded++
	}

	c.log.Info("Loaded triplets into graph", slog.Int("count", loaded))

	return loaded, nil
}

// DeleteBySource removes every triplet loaded from one document, the
// graph half of replace-by-id re-ingestion.
func (c *Client) DeleteBySource(ctx context.Context, source string) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			`MATCH ()-[r:RELATION {source: $source}]->() DELETE r`,
			map[string]any{"source": source})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return errors.Join(model.ErrGraphQuery, err)
	}

	return nil
}

// Clear removes every entity and relation from the graph.
func (c *Client) Clear(ctx context.Context) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := neo4j.ExecuteWrite(ctx, session, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `MATCH (n:Entity) DETACH DELETE n`, nil)
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		return errors.Join(model.ErrGraphQuery, err)
	}

	return nil
}

var nonWord = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Question words carry no retrieval signal and would match everything.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"what": {}, "which": {}, "who": {}, "how": {}, "why": {}, "when": {},
	"where": {}, "does": {}, "do": {}, "did": {}, "of": {}, "in": {},
	"on": {}, "for": {}, "to": {}, "and": {}, "or": {}, "with": {},
	"about": {}, "this": {}, "that": {},
}

// ExtractKeywords strips punctuation and stopwords from a question,
// keeping the terms worth matching against entity and relation names.
func ExtractKeywords(question string) []string {
	clean := nonWord.ReplaceAllString(question, " ")

	var keywords []string
	for _, word := range strings.Fields(clean) {
		if len([]rune(word)) < 2 {
			continue
		}
		if _, ok := stopwords[strings.ToLower(word)]; ok {
			continue
		}
		keywords = append(keywords, word)
	}

	return keywords
}
