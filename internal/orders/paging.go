package orders

const (
	DefaultPage     = 1
	DefaultPageSize = 5
)

// Page is a 1-based page request.
type Page struct {
	Number int
	Size   int
}

func (p Page) Validate() error {
	if p.Number < 1 || p.Size < 1 {
		return ErrInvalidPage
	}
	return nil
}

func (p Page) Offset() int { return (p.Number - 1) * p.Size }

// TotalPages is ceil(total/size).
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 0
	}
	return (total + size - 1) / size
}

// Purchase history sort keys.
const (
	SortByDate        = "date_time"
	SortByTotal       = "total_amount"
	SortByItemCount   = "number_of_items"
	SortByFulfillment = "fulfillment_status"
)

// NormalizeSort maps unknown sort keys to SortByDate.
func NormalizeSort(s string) string {
	switch s {
	case SortByDate, SortByTotal, SortByItemCount, SortByFulfillment:
		return s
	}
	return SortByDate
}
