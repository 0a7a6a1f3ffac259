package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const MaxPageLimit = 100

// Page is a parsed ?page=&limit= pair for chat history and the notification feed.
type Page struct {
	Number int
	Limit  int
}

func (p Page) Offset() int {
	return (p.Number - 1) * p.Limit
}

// TotalPages is how many pages of this size hold total rows.
func (p Page) TotalPages(total int64) int {
	if p.Limit <= 0 {
		return 0
	}
	return int((total + int64(p.Limit) - 1) / int64(p.Limit))
}

// Apply limits query to this page.
func (p Page) Apply(query *gorm.DB) *gorm.DB {
	return query.Offset(p.Offset()).Limit(p.Limit)
}

// ParsePage reads the page from the query string. Missing or bad values fall back to the
// first page of defaultLimit rows; limits are capped at MaxPageLimit.
func ParsePage(c *fiber.Ctx, defaultLimit int) Page {
	p := Page{
		Number: atoiOr(c.Query("page"), 1),
		Limit:  atoiOr(c.Query("limit"), defaultLimit),
	}
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

func atoiOr(s string, fallback int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return fallback
}
