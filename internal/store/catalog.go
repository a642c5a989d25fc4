package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	_ "github.com/glebarez/go-sqlite"
)

var ErrProjectNotFound = errors.New("project not found")

// searchStopwords are dropped from search queries; they describe what the user
// wants to know rather than which project they mean.
var searchStopwords = map[string]bool{
	"the": true, "and": true, "for": true, "price": true, "prices": true,
	"what": true, "whats": true, "how": true, "much": true, "is": true,
	"in": true, "of": true, "at": true, "show": true, "me": true,
	"roi": true, "yield": true, "buy": true, "near": true,
}

type CatalogStore struct {
	DB *sql.DB
}

func NewCatalogStore(dbPath string) (*CatalogStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS projects (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			developer TEXT,
			city TEXT,
			country TEXT,
			area TEXT,
			price_from TEXT,
			unit_types TEXT,
			handover TEXT,
			status TEXT,
			thumbnail_url TEXT,
			tags TEXT,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE INDEX IF NOT EXISTS idx_projects_name ON projects(name);`,
	}
	for _, q := range queries {
		if _, err = db.Exec(q); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &CatalogStore{DB: db}, nil
}

func (c *CatalogStore) Close() error {
	return c.DB.Close()
}

func (c *CatalogStore) Upsert(ctx context.Context, p Project) error {
	if p.ID == "" || p.Name == "" {
		return fmt.Errorf("project requires id and name")
	}
	query := `INSERT INTO projects (id, name, developer, city, country, area, price_from, unit_types, handover, status, thumbnail_url, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, developer = excluded.developer, city = excluded.city,
			country = excluded.country, area = excluded.area, price_from = excluded.price_from,
			unit_types = excluded.unit_types, handover = excluded.handover, status = excluded.status,
			thumbnail_url = excluded.thumbnail_url, tags = excluded.tags, updated_at = CURRENT_TIMESTAMP`
	_, err := c.DB.ExecContext(ctx, query,
		p.ID, p.Name, p.Developer, p.City, p.Country, p.Area, p.PriceFrom,
		strings.Join(p.UnitTypes, ","), p.Handover, p.Status, p.ThumbnailURL, strings.Join(p.Tags, ","))
	return err
}

const projectColumns = `id, name, developer, city, country, area, price_from, unit_types, handover, status, thumbnail_url, tags`

func (c *CatalogStore) Get(ctx context.Context, id string) (Project, error) {
	row := c.DB.QueryRowContext(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("%w: %s", ErrProjectNotFound, id)
	}
	return p, err
}

// All returns every project ordered by name.
func (c *CatalogStore) All(ctx context.Context) ([]Project, error) {
	rows, err := c.DB.QueryContext(ctx, `SELECT `+projectColumns+` FROM projects ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// Search finds projects whose name, developer, area, tags or unit types
// contain any of the query's significant words. Name hits rank above the
// rest; ties
// are broken by name so results are stable.
func (c *CatalogStore) Search(ctx context.Context, query string, limit int) ([]Project, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []any
	for _, t := range terms {
		clauses = append(clauses, `(lower(name) LIKE ? OR lower(developer) LIKE ? OR lower(area) LIKE ? OR lower(tags) LIKE ? OR lower(unit_types) LIKE ?)`)
		like := "%" + t + "%"
		args = append(args, like, like, like, like, like)
	}
	q := `SELECT ` + projectColumns + ` FROM projects WHERE ` + strings.Join(clauses, " OR ")

	rows, err := c.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		p     Project
		score int
	}
	var hits []scored
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		hits = append(hits, scored{p: p, score: relevance(p, terms)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].p.Name < hits[j].p.Name
	})

	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Project, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out, nil
}

func searchTerms(query string) []string {
	var terms []string
	for _, f := range strings.Fields(strings.ToLower(query)) {
		f = strings.Trim(f, ".,?!'\"()")
		if len(f) < 3 || searchStopwords[f] {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

func relevance(p Project, terms []string) int {
	name := strings.ToLower(p.Name)
	other := strings.ToLower(p.Developer + " " + p.Area + " " + strings.Join(p.Tags, " ") + " " + strings.Join(p.UnitTypes, " "))
	score := 0
	for _, t := range terms {
		if strings.Contains(name, t) {
			score += 2
		} else if strings.Contains(other, t) {
			score++
		}
	}
	return score
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (Project, error) {
	var p Project
	var developer, city, country, area, price, units, handover, status, thumb, tags sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &developer, &city, &country, &area, &price, &units, &handover, &status, &thumb, &tags); err != nil {
		return Project{}, err
	}
	p.Developer = developer.String
	p.City = city.String
	p.Country = country.String
	p.Area = area.String
	p.PriceFrom = price.String
	p.UnitTypes = splitList(units.String)
	p.Handover = handover.String
	p.Status = status.String
	p.ThumbnailURL = thumb.String
	p.Tags = splitList(tags.String)
	return p, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
