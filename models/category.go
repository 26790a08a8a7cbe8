package models

import (
	"fmt"
	"strconv"
	"strings"
)

// Category is a site-defined classification used to scope a search.
type Category struct {
	Name string `yaml:"name" json:"name"`
	Code int    `yaml:"code" json:"code"`
}

// Slug renders the category as it appears in listing paths,
// e.g. "books magazines" / 267 becomes "books_magazines_267".
func (c Category) Slug() string {
	return strings.Join(strings.Fields(c.Name), "_") + "_" + strconv.Itoa(c.Code)
}

func (c Category) String() string {
	return c.Slug()
}

// Categories lists the site's top-level categories.
var Categories = []Category{
	{Name: "antiques", Code: 20081},
	{Name: "art", Code: 550},
	{Name: "baby", Code: 2984},
	{Name: "books magazines", Code: 267},
	{Name: "business industrial", Code: 12576},
	{Name: "cameras photo", Code: 625},
	{Name: "cell phones accessories", Code: 15032},
	{Name: "clothing shoes accessories", Code: 11450},
	{Name: "coins paper money", Code: 11116},
	{Name: "collectibles", Code: 1},
	{Name: "computers tablets networking", Code: 580581},
	{Name: "consumer electronics", Code: 293},
	{Name: "crafts", Code: 14339},
	{Name: "dolls bears", Code: 237},
	{Name: "ebay motors", Code: 6000},
	{Name: "entertainment memorabilia", Code: 45100},
	{Name: "everything else", Code: 99},
	{Name: "gift cards coupons", Code: 172008},
	{Name: "health beauty", Code: 26395},
	{Name: "home garden", Code: 11700},
	{Name: "jewelry watches", Code: 281},
	{Name: "movies tv", Code: 11232},
	{Name: "music", Code: 11233},
	{Name: "musical instruments gear", Code: 619},
	{Name: "pet supplies", Code: 1281},
	{Name: "pottery glass", Code: 870},
	{Name: "real estate", Code: 10542},
	{Name: "specialty services", Code: 316},
	{Name: "sporting goods", Code: 888},
	{Name: "sports mem cards fan shop", Code: 64482},
	{Name: "stamps", Code: 260},
	{Name: "tickets experiences", Code: 1305},
	{Name: "toys hobbies", Code: 220},
	{Name: "travel", Code: 3252},
	{Name: "video games consoles", Code: 1249},
}

// LookupCategory resolves a category by display name, slug-style name
// ("books_magazines") or numeric code.
func LookupCategory(key string) (Category, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Category{}, fmt.Errorf("empty category")
	}
	if code, err := strconv.Atoi(key); err == nil {
		for _, c := range Categories {
			if c.Code == code {
				return c, nil
			}
		}
		return Category{}, fmt.Errorf("unknown category code %d", code)
	}

	name := strings.ToLower(strings.Join(strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == ' ' || r == '-'
	}), " "))
	for _, c := range Categories {
		if c.Name == name {
			return c, nil
		}
	}
	return Category{}, fmt.Errorf("unknown category %q", key)
}

// LookupCategories resolves each key, failing on the first unknown one.
func LookupCategories(keys []string) ([]Category, error) {
	out := make([]Category, 0, len(keys))
	for _, key := range keys {
		c, err := LookupCategory(key)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
