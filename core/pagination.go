package core

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// Page is a 1-based page request. Out of range values are clamped by Clean.
type Page struct {
	Number  int `query:"page" json:"page"`
	PerPage int `query:"per_page" json:"per_page"`
}

func (p Page) Clean() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = DefaultPerPage
	}
	if p.PerPage > MaxPerPage {
		p.PerPage = MaxPerPage
	}
	return p
}

func (p Page) Limit() int { return p.Clean().PerPage }

func (p Page) Offset() int {
	c := p.Clean()
	return (c.Number - 1) * c.PerPage
}

// TotalPages returns the number of pages needed to show total rows.
func (p Page) TotalPages(total int) int {
	if total <= 0 {
		return 0
	}
	per := p.Limit()
	return (total + per - 1) / per
}

// Paginated is one page of results plus the arithmetic a list view needs.
type Paginated struct {
	Items      interface{} `json:"items"`
	Page       int         `json:"page"`
	PerPage    int         `json:"per_page"`
	Total      int         `json:"total"`
	TotalPages int         `json:"total_pages"`
}

func NewPaginated(items interface{}, page Page, total int) Paginated {
	c := page.Clean()
	return Paginated{
		Items:      items,
		Page:       c.Number,
		PerPage:    c.PerPage,
		Total:      total,
		TotalPages: c.TotalPages(total),
	}
}
