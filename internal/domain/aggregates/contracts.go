package aggregates

// TxOwnership records who opens the transaction an aggregate write runs in.
type TxOwnership string

// TxOwnedByAggregate means each write method runs inside a transaction it opened itself.
const TxOwnedByAggregate TxOwnership = "aggregate_owned"

// Contract is the write policy an aggregate declares. The write path checks it on every call.
type Contract struct {
	Name        string
	TxOwnership TxOwnership
	Notes       string
}

type Aggregate interface {
	Contract() Contract
}

// RequiresAggregateOwnedTx reports whether a write must see the aggregate's own transaction.
func (c Contract) RequiresAggregateOwnedTx() bool {
	return c.TxOwnership == TxOwnedByAggregate
}
