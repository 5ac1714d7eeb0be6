// Package catalog holds the fixed set of account-usage audit checks in two
// categories: registrable checks built on the Query abstraction, and
// text-only checks that exist purely as worksheet SQL.
package catalog

import (
	"context"
	"embed"
	"fmt"
	"sort"

	"github.com/snowsentry/snowsentry/internal/core/domain"
)

//go:embed queries/*.sql
var queryFS embed.FS

// Kind distinguishes the two catalog categories.
type Kind string

const (
	KindRegistrable Kind = "registrable"
	KindTextOnly    Kind = "text-only"
)

// CheckInfo is a catalog listing entry.
type CheckInfo struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Catalog is a read-only table of audit checks, built once at startup.
type Catalog struct {
	registrable map[string]domain.Query
	textOnly    map[string]string
}

// Load builds the catalog from the embedded query files and the text-only
// constants. It fails if any query file is unreadable.
func Load() (*Catalog, error) {
	numFailures, err := domain.NewSimpleQuery(queryFS, "queries/num_failures.sql", "NUM_FAILURES",
		domain.Schema{
			{Name: "user_name", Type: "string"},
			{Name: "error_message", Type: "string"},
			{Name: "num_of_failures", Type: "integer"},
		})
	if err != nil {
		return nil, fmt.Errorf("building catalog: %w", err)
	}

	accountadminOwnership := domain.NewSprocOnlyQuery("ACCOUNTADMIN_OWNERSHIP",
		domain.Schema{
			{Name: "GRANTED_ON", Type: "string"},
			{Name: "NAME", Type: "string"},
			{Name: "OWNER", Type: "string"},
		},
		accountadminOwnershipHandler,
	)

	c := &Catalog{
		registrable: map[string]domain.Query{
			numFailures.Name():           numFailures,
			accountadminOwnership.Name(): accountadminOwnership,
		},
		textOnly: make(map[string]string, len(textOnlySources)),
	}
	for name, raw := range textOnlySources {
		c.textOnly[name] = domain.ResolveNamespace(raw)
	}
	return c, nil
}

// accountadminOwnershipHandler lists USER and ROLE objects owned by the
// ACCOUNTADMIN role. SHOW GRANTS output cannot be filtered in the same
// statement, so the filter and projection happen here.
func accountadminOwnershipHandler(ctx context.Context, s domain.Session) ([]map[string]any, error) {
	rows, err := s.Query(ctx, "SHOW GRANTS TO ROLE accountadmin")
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		if asString(row["privilege"]) != "OWNERSHIP" {
			continue
		}
		grantedOn := asString(row["granted_on"])
		if grantedOn != "USER" && grantedOn != "ROLE" {
			continue
		}
		out = append(out, map[string]any{
			"GRANTED_ON": grantedOn,
			"NAME":       row["name"],
			"OWNER":      row["grantee_name"],
		})
	}
	return out, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// Registrable returns the named registrable check.
func (c *Catalog) Registrable(name string) (domain.Query, bool) {
	q, ok := c.registrable[name]
	return q, ok
}

// Text returns the SQL text of the named check, in either category.
// Handler-only checks return domain.ErrNoTextForm; unknown names return
// domain.ErrNotFound.
func (c *Catalog) Text(name string) (string, error) {
	if q, ok := c.registrable[name]; ok {
		return q.Text()
	}
	if sql, ok := c.textOnly[name]; ok {
		return sql, nil
	}
	return "", fmt.Errorf("%w: %s", domain.ErrNotFound, name)
}

// List returns all checks sorted by name.
func (c *Catalog) List() []CheckInfo {
	infos := make([]CheckInfo, 0, len(c.registrable)+len(c.textOnly))
	for name := range c.registrable {
		infos = append(infos, CheckInfo{Name: name, Kind: KindRegistrable})
	}
	for name := range c.textOnly {
		infos = append(infos, CheckInfo{Name: name, Kind: KindTextOnly})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// Has reports whether the catalog contains the named check.
func (c *Catalog) Has(name string) bool {
	_, reg := c.registrable[name]
	_, txt := c.textOnly[name]
	return reg || txt
}

// AddTextOnly adds a text-only check, resolving the schema-namespace token.
// Names must not collide with existing entries.
func (c *Catalog) AddTextOnly(name, rawSQL string) error {
	if name == "" {
		return fmt.Errorf("check name must not be empty")
	}
	if c.Has(name) {
		return fmt.Errorf("check %s already exists", name)
	}
	c.textOnly[name] = domain.ResolveNamespace(rawSQL)
	return nil
}
