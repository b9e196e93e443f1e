package neo4jmirror

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/lawgraph-backend/internal/kg"
	"github.com/yungbote/lawgraph-backend/internal/platform/envutil"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// Mirror exports the in-memory crime↔article graph to a Neo4j instance so
// graph tooling can browse it. The service never reads it back; retrieval
// always runs against the in-memory graph.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

// NewFromEnv returns (nil, nil) when NEO4J_URI is unset; mirroring is
// opt-in.
func NewFromEnv(log *logger.Logger) (*Mirror, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jmirror: logger required")
	}

	uri := envutil.Str("NEO4J_URI", "")
	if uri == "" {
		return nil, nil
	}
	user := envutil.Str("NEO4J_USER", "neo4j")
	password := envutil.Str("NEO4J_PASSWORD", "")
	database := envutil.Str("NEO4J_DATABASE", "")
	timeout := envutil.Seconds("NEO4J_TIMEOUT_SECONDS", 10*time.Second)

	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""), func(cfg *neo4j.Config) {
		cfg.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jmirror: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jmirror: verify connectivity: %w", err)
	}

	return &Mirror{
		driver:   driver,
		database: database,
		log:      log.With("service", "Neo4jMirror"),
	}, nil
}

// Export upserts every crime, article, and MAPS_TO edge. Idempotent;
// reruns after a corpus refresh converge to the new graph.
func (m *Mirror) Export(ctx context.Context, graph *kg.Graph) error {
	session := m.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.database})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, e := range graph.Edges() {
			_, err := tx.Run(ctx, `
				MERGE (c:Crime {name: $crime})
				MERGE (a:Article {number: $number})
				SET a.title = $title, a.doc_id = $doc_id
				MERGE (c)-[r:MAPS_TO]->(a)
				SET r.confidence = $confidence,
				    r.case_count = $case_count,
				    r.rare_crime = $rare`,
				map[string]any{
					"crime":      e.Crime,
					"number":     e.ArticleNumber,
					"title":      e.ArticleTitle,
					"doc_id":     e.ArticleID,
					"confidence": e.Confidence,
					"case_count": e.CaseCount,
					"rare":       e.RareCrime,
				})
			if err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("neo4jmirror: export: %w", err)
	}
	m.log.Info("knowledge graph mirrored", "edges", len(graph.Edges()))
	return nil
}

func (m *Mirror) Close(ctx context.Context) error {
	if m == nil || m.driver == nil {
		return nil
	}
	return m.driver.Close(ctx)
}
