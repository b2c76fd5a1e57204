package services

import (
	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
)

// Ledgers holds the ledger drivers available to a process
type Ledgers map[models.Ledger]interfaces.LedgerDriver

// NewLedgers indexes drivers by ledger
func NewLedgers(drivers ...interfaces.LedgerDriver) Ledgers {
	l := make(Ledgers, len(drivers))
	for _, d := range drivers {
		l[d.Ledger()] = d
	}
	return l
}

// Driver returns the driver of ledger, a validation error if none is configured
func (l Ledgers) Driver(ledger models.Ledger) (interfaces.LedgerDriver, error) {
	d, ok := l[ledger]
	if !ok {
		return nil, NewClientError("ledger %q is not supported by this oracle", ledger)
	}
	return d, nil
}

// Instrument binds an instrument contract on ledger
func (l Ledgers) Instrument(ledger models.Ledger, address string) (interfaces.InstrumentContract, error) {
	d, err := l.Driver(ledger)
	if err != nil {
		return nil, err
	}
	instrument, err := d.Instrument(address)
	if err != nil {
		return nil, WrapClientError(err, "invalid instrument %s on %s", address, ledger)
	}
	return instrument, nil
}
