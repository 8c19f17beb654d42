package orders

type FulfillmentStatus string

const (
	StatusPending   FulfillmentStatus = "PENDING"
	StatusFulfilled FulfillmentStatus = "FULFILLED"
)

var validNext = map[FulfillmentStatus]map[FulfillmentStatus]bool{
	StatusPending:   {StatusFulfilled: true},
	StatusFulfilled: {},
}

func CanTransition(from, to FulfillmentStatus) bool {
	return validNext[from][to]
}
