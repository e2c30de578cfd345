package mongo

import (
	"time"

	"carrental/internal/domain/shared/daterange"
	"carrental/internal/domain/shared/money"
)

type moneyDocument struct {
	Amount   int64  `bson:"amount"`
	Currency string `bson:"currency"`
}

func newMoney(m money.Money) moneyDocument {
	return moneyDocument{Amount: m.Amount, Currency: m.Currency}
}

func (d moneyDocument) toMoney() money.Money {
	return money.Money{Amount: d.Amount, Currency: d.Currency}
}

type rangeDocument struct {
	Start time.Time `bson:"start"`
	End   time.Time `bson:"end"`
}

func newRange(r daterange.Range) rangeDocument {
	return rangeDocument{Start: r.Start.UTC(), End: r.End.UTC()}
}

func (d rangeDocument) toRange() daterange.Range {
	return daterange.Range{Start: d.Start.UTC(), End: d.End.UTC()}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
