package scraper

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-watchcount/models"
)

// Addresser builds listing URLs. The zero value is not useful; set both
// fields or use NewAddresser.
type Addresser struct {
	BaseURL  string
	MinPrice int
}

func NewAddresser(baseURL string, minPrice int) Addresser {
	return Addresser{BaseURL: strings.TrimRight(baseURL, "/"), MinPrice: minPrice}
}

// Target returns the results page for one seller in one category starting
// at offset. Query keys are always emitted as minPrice, offset, seller.
func (a Addresser) Target(category models.Category, seller string, offset int) string {
	query := url.Values{}
	query.Set("minPrice", strconv.Itoa(a.MinPrice))
	query.Set("offset", strconv.Itoa(offset))
	query.Set("seller", seller)

	var b strings.Builder
	b.WriteString(strings.TrimRight(a.BaseURL, "/"))
	b.WriteString("/live/-/")
	b.WriteString(url.PathEscape(category.Slug()))
	b.WriteString("/all?")
	b.WriteString(query.Encode())
	return b.String()
}
