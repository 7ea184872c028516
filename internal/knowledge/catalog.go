// Package knowledge selects the day's educational topic from a static
// catalog without repeating topics until the catalog is exhausted.
package knowledge

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrEmptyCatalog is returned when a catalog holds no topics at all.
var ErrEmptyCatalog = errors.New("knowledge: catalog has no topics")

// Category is a named, ordered group of topics.
type Category struct {
	Name   string
	Topics []string
}

// Catalog is the immutable category -> topics mapping. Category order
// follows the configuration document.
type Catalog struct {
	categories []Category
}

// Entry is one (category, topic) pair.
type Entry struct {
	Category string `json:"category"`
	Topic    string `json:"topic"`
}

// NewCatalog copies the given categories. Blank topics are dropped.
func NewCatalog(categories []Category) (*Catalog, error) {
	c := &Catalog{}
	seen := make(map[string]bool)
	for _, cat := range categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return nil, fmt.Errorf("knowledge: category with empty name")
		}
		if seen[name] {
			return nil, fmt.Errorf("knowledge: duplicate category %q", name)
		}
		seen[name] = true

		topics := make([]string, 0, len(cat.Topics))
		for _, t := range cat.Topics {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, t)
			}
		}
		c.categories = append(c.categories, Category{Name: name, Topics: topics})
	}

	if c.Size() == 0 {
		return nil, ErrEmptyCatalog
	}
	return c, nil
}

// Categories returns a copy of the catalog contents.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		out[i] = Category{Name: cat.Name, Topics: append([]string(nil), cat.Topics...)}
	}
	return out
}

// Entries flattens the catalog in document order.
func (c *Catalog) Entries() []Entry {
	var out []Entry
	for _, cat := range c.categories {
		for _, t := range cat.Topics {
			out = append(out, Entry{Category: cat.Name, Topic: t})
		}
	}
	return out
}

// Size is the total number of (category, topic) pairs.
func (c *Catalog) Size() int {
	n := 0
	for _, cat := range c.categories {
		n += len(cat.Topics)
	}
	return n
}

// CategoryList is the YAML form of a catalog: a mapping of category name
// to topic list whose key order is preserved.
type CategoryList []Category

// UnmarshalYAML decodes a mapping node while keeping document order.
func (s *CategoryList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("knowledge: categories must be a mapping, got line %d", node.Line)
	}

	out := make(CategoryList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var topics []string
		if err := value.Decode(&topics); err != nil {
			return fmt.Errorf("knowledge: category %q: %w", key.Value, err)
		}
		out = append(out, Category{Name: key.Value, Topics: topics})
	}

	*s = out
	return nil
}

// MarshalYAML renders the catalog back as an ordered mapping.
func (s CategoryList) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, cat := range s {
		var topics yaml.Node
		if err := topics.Encode(cat.Topics); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: cat.Name},
			&topics,
		)
	}
	return node, nil
}
