package orders

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Page is 1-based.
type Page struct {
	Number int
	Size   int
}

func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

type PageResult struct {
	Items  []Order `json:"content"`
	Number int     `json:"page"`
	Size   int     `json:"size"`
	Total  int     `json:"totalElements"`
}

func EmptyPage(p Page) PageResult {
	return PageResult{Items: []Order{}, Number: p.Number, Size: p.Size}
}
