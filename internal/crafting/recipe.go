package crafting

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/sahilm/fuzzy"
	"gopkg.in/yaml.v3"

	"bountybot/internal/ledger"
	"bountybot/internal/outcome"
)

//go:embed recipes.yaml
var defaultRecipes []byte

var ErrInvalidRecipe = errors.New("invalid recipe")

var recipeIDRE = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,31}$`)

type Recipe struct {
	ID     string              `json:"id" yaml:"id"`
	Name   string              `json:"name" yaml:"name"`
	Cost   int64               `json:"cost" yaml:"cost"`
	Inputs []ledger.ItemAmount `json:"inputs" yaml:"inputs"`
	Output ledger.ItemAmount   `json:"output" yaml:"output"`
}

// Catalog is the fixed recipe list, in file order.
type Catalog struct {
	recipes []Recipe
	byID    map[string]int
	names   []string
}

type recipeFile struct {
	Recipes []Recipe `yaml:"recipes"`
}

func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultRecipes)
}

func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCatalog(raw)
}

func ParseCatalog(raw []byte) (*Catalog, error) {
	var f recipeFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("recipes yaml: %w", err)
	}
	return NewCatalog(f.Recipes)
}

func NewCatalog(recipes []Recipe) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]int, len(recipes))}
	for _, r := range recipes {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if _, dup := c.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidRecipe, r.ID)
		}
		c.byID[r.ID] = len(c.recipes)
		c.recipes = append(c.recipes, r)
		c.names = append(c.names, strings.ToLower(r.displayName()))
	}
	return c, nil
}

func (r Recipe) displayName() string {
	if strings.TrimSpace(r.Name) != "" {
		return r.Name
	}
	return r.ID
}

func (r Recipe) validate() error {
	if !recipeIDRE.MatchString(r.ID) {
		return fmt.Errorf("%w: id %q", ErrInvalidRecipe, r.ID)
	}
	if r.Cost < 0 {
		return fmt.Errorf("%w: %s: negative cost", ErrInvalidRecipe, r.ID)
	}
	seen := make(map[string]bool, len(r.Inputs))
	for _, in := range r.Inputs {
		if strings.TrimSpace(in.ItemID) == "" || in.Amount < 1 {
			return fmt.Errorf("%w: %s: inputs need an item and amount >= 1", ErrInvalidRecipe, r.ID)
		}
		if seen[in.ItemID] {
			return fmt.Errorf("%w: %s: input %q listed twice", ErrInvalidRecipe, r.ID, in.ItemID)
		}
		seen[in.ItemID] = true
	}
	if strings.TrimSpace(r.Output.ItemID) == "" || r.Output.Amount < 1 {
		return fmt.Errorf("%w: %s: output needs an item and amount >= 1", ErrInvalidRecipe, r.ID)
	}
	return nil
}

func (c *Catalog) List() []Recipe {
	return append([]Recipe(nil), c.recipes...)
}

func (c *Catalog) Get(id string) (Recipe, bool) {
	i, ok := c.byID[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return Recipe{}, false
	}
	return c.recipes[i], true
}

// Resolve looks a recipe up by 1-based list index, id, exact name, then fuzzy
// name match. Several fuzzy hits return ErrAmbiguousRecipe with candidates.
func (c *Catalog) Resolve(query string) (Recipe, []Recipe, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return Recipe{}, nil, outcome.ErrUnknownRecipe
	}
	if n, err := strconv.Atoi(q); err == nil {
		if n >= 1 && n <= len(c.recipes) {
			return c.recipes[n-1], nil, nil
		}
		return Recipe{}, nil, outcome.ErrUnknownRecipe
	}
	if r, ok := c.Get(q); ok {
		return r, nil, nil
	}
	for i, name := range c.names {
		if name == q {
			return c.recipes[i], nil, nil
		}
	}

	matches := fuzzy.Find(q, c.names)
	switch len(matches) {
	case 0:
		return Recipe{}, nil, outcome.ErrUnknownRecipe
	case 1:
		return c.recipes[matches[0].Index], nil, nil
	}
	candidates := make([]Recipe, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, c.recipes[m.Index])
	}
	return Recipe{}, candidates, outcome.ErrAmbiguousRecipe
}
