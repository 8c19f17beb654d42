package orders

// NextOrderID returns the value the order id generator must hand out next:
// whichever is larger of its own next value and one past the highest id
// already stored. Rows loaded with explicit ids bypass the generator.
func NextOrderID(sequenceNext, maxExisting int64) int64 {
	if maxExisting+1 > sequenceNext {
		return maxExisting + 1
	}
	return sequenceNext
}
