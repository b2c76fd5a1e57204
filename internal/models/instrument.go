package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// InstrumentState is the lifecycle state of an instrument contract
type InstrumentState string

const (
	InstrumentStateCreated  InstrumentState = "Created"
	InstrumentStateIssued   InstrumentState = "Issued"
	InstrumentStateRedeemed InstrumentState = "Redeemed"
	InstrumentStateUnknown  InstrumentState = "Unknown"
)

// HolderBalance is one raw balance line read from an instrument contract
type HolderBalance struct {
	Address       string
	Balance       *big.Int
	LockedBalance *big.Int
}

// InstrumentPosition is a legal entity's position in an instrument
type InstrumentPosition struct {
	InstrumentAddress  string          `json:"instrumentAddress"`
	Ledger             Ledger          `json:"ledger"`
	LegalEntityAddress string          `json:"legalEntityAddress"`
	Balance            int64           `json:"balance"`
	LockedBalance      int64           `json:"lockedBalance"`
	UnlockedBalance    int64           `json:"unlockedBalance"`
	Percentage         decimal.Decimal `json:"percentage"`
}
