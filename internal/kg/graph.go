package kg

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/lawgraph-backend/internal/artifacts"
	"github.com/yungbote/lawgraph-backend/internal/domain"
	"github.com/yungbote/lawgraph-backend/internal/platform/logger"
)

// rareCaseCountThreshold marks low-frequency crime↔article pairs. Rare
// edges get a confidence floor so certain but uncommon mappings still
// surface.
const (
	rareCaseCountThreshold = 20
	rareConfidenceFloor    = 0.7
)

type Edge struct {
	Crime         string  `json:"crime"`
	ArticleNumber int     `json:"article_number"`
	ArticleID     string  `json:"article_id"`
	ArticleTitle  string  `json:"article_title"`
	CaseCount     int     `json:"case_count"`
	Confidence    float64 `json:"confidence"`
	RareCrime     bool    `json:"rare_crime"`
}

// Entities is the detected-entity input to Expand.
type Entities struct {
	Crimes   []string
	Articles []int
}

// Expansion is the neighbor union plus a weighted keyword set built from
// crime names and article titles, weights = edge confidence.
type Expansion struct {
	Crimes     []string           `json:"crimes"`
	ArticleIDs []string           `json:"article_ids"`
	Keywords   map[string]float64 `json:"keywords"`
}

// Graph is the crime↔article bipartite graph, built once at startup from
// the curated mapping table and the case corpus, immutable afterwards.
type Graph struct {
	log *logger.Logger

	edgesByCrime   map[string][]*Edge
	edgesByArticle map[int][]*Edge
	casesByPair    map[string][]string
	articleByNum   map[int]*domain.Document
	crimes         []string

	articleRef *regexp.Regexp
}

func pairKey(crime string, article int) string {
	return crime + "\x00" + strconv.Itoa(article)
}

func Build(log *logger.Logger, bundle *artifacts.Bundle) (*Graph, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	g := &Graph{
		log:            log.With("service", "KnowledgeGraph"),
		edgesByCrime:   map[string][]*Edge{},
		edgesByArticle: map[int][]*Edge{},
		casesByPair:    map[string][]string{},
		articleByNum:   map[int]*domain.Document{},
		articleRef:     regexp.MustCompile(`第([0-9０-９零一二三四五六七八九十百千]+)条`),
	}
	for _, a := range bundle.Articles {
		g.articleByNum[a.ArticleNumber] = a
	}

	caseByID := make(map[string]*domain.Document, len(bundle.Cases))
	for _, c := range bundle.Cases {
		caseByID[c.CaseID] = c
	}

	// Accumulate per (crime, article) pair across mapping rows: every
	// accusation of the mapped case contributes one observation.
	type acc struct {
		count   int
		confSum float64
		cases   []string
	}
	pairs := map[string]*acc{}
	for _, row := range bundle.Mapping {
		doc := caseByID[row.CaseID]
		if doc == nil {
			continue
		}
		for _, crime := range doc.Accusations {
			crime = strings.TrimSpace(crime)
			if crime == "" {
				continue
			}
			key := pairKey(crime, row.ArticleNumber)
			a := pairs[key]
			if a == nil {
				a = &acc{}
				pairs[key] = a
			}
			a.count++
			a.confSum += row.Confidence
			a.cases = append(a.cases, doc.ID)
		}
	}

	for key, a := range pairs {
		sep := strings.IndexByte(key, 0)
		crime := key[:sep]
		num, _ := strconv.Atoi(key[sep+1:])
		art := g.articleByNum[num]
		if art == nil {
			return nil, fmt.Errorf("%w: kg edge references unknown article %d", domain.ErrArtifactCorruption, num)
		}
		conf := a.confSum / float64(a.count)
		rare := a.count < rareCaseCountThreshold
		if rare && conf < rareConfidenceFloor {
			conf = rareConfidenceFloor
		}
		e := &Edge{
			Crime:         crime,
			ArticleNumber: num,
			ArticleID:     art.ID,
			ArticleTitle:  art.Title,
			CaseCount:     a.count,
			Confidence:    conf,
			RareCrime:     rare,
		}
		g.edgesByCrime[crime] = append(g.edgesByCrime[crime], e)
		g.edgesByArticle[num] = append(g.edgesByArticle[num], e)
		sort.Strings(a.cases)
		g.casesByPair[key] = dedupe(a.cases)
	}

	for crime, edges := range g.edgesByCrime {
		sortEdges(edges)
		g.crimes = append(g.crimes, crime)
	}
	for _, edges := range g.edgesByArticle {
		sortEdges(edges)
	}
	sort.Strings(g.crimes)

	g.log.Info("knowledge graph built",
		"crimes", len(g.edgesByCrime),
		"articles", len(g.edgesByArticle),
		"pairs", len(g.casesByPair),
	)
	return g, nil
}

// sortEdges orders by confidence desc, then case_count desc, then the
// opposite endpoint for determinism.
func sortEdges(edges []*Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Confidence != edges[j].Confidence {
			return edges[i].Confidence > edges[j].Confidence
		}
		if edges[i].CaseCount != edges[j].CaseCount {
			return edges[i].CaseCount > edges[j].CaseCount
		}
		if edges[i].ArticleNumber != edges[j].ArticleNumber {
			return edges[i].ArticleNumber < edges[j].ArticleNumber
		}
		return edges[i].Crime < edges[j].Crime
	})
}

func (g *Graph) Crimes() []string { return g.crimes }

func (g *Graph) Edges() []*Edge {
	out := make([]*Edge, 0, len(g.casesByPair))
	for _, edges := range g.edgesByCrime {
		out = append(out, edges...)
	}
	return out
}

func (g *Graph) RelatedArticles(crime string, limit int) []*Edge {
	edges := g.edgesByCrime[strings.TrimSpace(crime)]
	return capEdges(edges, limit)
}

func (g *Graph) RelatedCrimes(articleNumber, limit int) []*Edge {
	edges := g.edgesByArticle[articleNumber]
	return capEdges(edges, limit)
}

func (g *Graph) CasesFor(crime string, articleNumber, limit int) []string {
	ids := g.casesByPair[pairKey(strings.TrimSpace(crime), articleNumber)]
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids
}

func (g *Graph) HasCrime(crime string) bool {
	_, ok := g.edgesByCrime[strings.TrimSpace(crime)]
	return ok
}

func (g *Graph) HasArticle(articleNumber int) bool {
	_, ok := g.edgesByArticle[articleNumber]
	return ok
}

// Expand produces the union of neighbors of the detected entities and a
// weighted keyword set (crime names + article titles, weight = edge
// confidence; keyword keeps its max weight across edges).
func (g *Graph) Expand(entities Entities) Expansion {
	exp := Expansion{Keywords: map[string]float64{}}
	seenCrime := map[string]bool{}
	seenArticle := map[string]bool{}

	addKeyword := func(kw string, w float64) {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			return
		}
		if w > exp.Keywords[kw] {
			exp.Keywords[kw] = w
		}
	}
	addEdge := func(e *Edge) {
		if !seenCrime[e.Crime] {
			seenCrime[e.Crime] = true
			exp.Crimes = append(exp.Crimes, e.Crime)
		}
		if !seenArticle[e.ArticleID] {
			seenArticle[e.ArticleID] = true
			exp.ArticleIDs = append(exp.ArticleIDs, e.ArticleID)
		}
		addKeyword(e.Crime, e.Confidence)
		addKeyword(e.ArticleTitle, e.Confidence)
	}

	for _, crime := range entities.Crimes {
		for _, e := range g.edgesByCrime[strings.TrimSpace(crime)] {
			addEdge(e)
		}
	}
	for _, num := range entities.Articles {
		for _, e := range g.edgesByArticle[num] {
			addEdge(e)
		}
	}
	sort.Strings(exp.Crimes)
	sort.Strings(exp.ArticleIDs)
	return exp
}

// MatchEntities scans free text for known crime names and 第N条 article
// references. Used by the classification fallback and the router.
func (g *Graph) MatchEntities(query string) Entities {
	var ent Entities
	for _, crime := range g.crimes {
		// Crime names in queries usually drop the "罪" suffix.
		stem := strings.TrimSuffix(crime, "罪")
		if stem == "" {
			stem = crime
		}
		if strings.Contains(query, stem) {
			ent.Crimes = append(ent.Crimes, crime)
		}
	}
	for _, m := range g.articleRef.FindAllStringSubmatch(query, -1) {
		if num, ok := parseArticleNumber(m[1]); ok && g.articleByNum[num] != nil {
			ent.Articles = append(ent.Articles, num)
		}
	}
	return ent
}

func (g *Graph) ArticleByNumber(num int) *domain.Document {
	return g.articleByNum[num]
}

func capEdges(edges []*Edge, limit int) []*Edge {
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	out := make([]*Edge, len(edges))
	copy(out, edges)
	return out
}

func dedupe(ids []string) []string {
	out := ids[:0]
	var prev string
	for i, id := range ids {
		if i > 0 && id == prev {
			continue
		}
		out = append(out, id)
		prev = id
	}
	return out
}

var cnNumeral = map[rune]int{
	'零': 0, '一': 1, '二': 2, '三': 3, '四': 4,
	'五': 5, '六': 6, '七': 7, '八': 8, '九': 9,
}

// parseArticleNumber handles arabic, full-width, and simple Chinese
// numerals up to the thousands (criminal-law articles stop at 452).
func parseArticleNumber(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	// Arabic / full-width digits.
	ascii := strings.Map(func(r rune) rune {
		if r >= '０' && r <= '９' {
			return '0' + (r - '０')
		}
		return r
	}, s)
	if n, err := strconv.Atoi(ascii); err == nil {
		return n, true
	}

	total, section := 0, 0
	for _, r := range s {
		switch r {
		case '千':
			if section == 0 {
				section = 1
			}
			total += section * 1000
			section = 0
		case '百':
			if section == 0 {
				section = 1
			}
			total += section * 100
			section = 0
		case '十':
			if section == 0 {
				section = 1
			}
			total += section * 10
			section = 0
		default:
			d, ok := cnNumeral[r]
			if !ok {
				return 0, false
			}
			section = section*10 + d
		}
	}
	total += section
	if total <= 0 {
		return 0, false
	}
	return total, true
}
