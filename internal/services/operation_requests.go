package services

import (
	"time"

	"github.com/castframework/cast1-sub000/internal/models"
)

// SubscriptionRequest is a primary market subscription of an investor to an instrument
type SubscriptionRequest struct {
	OperationID               string                                     `json:"operationId" binding:"required"`
	TradeID                   string                                     `json:"tradeId"`
	TradeDate                 time.Time                                  `json:"tradeDate"`
	SettlementDate            time.Time                                  `json:"settlementDate"`
	InstrumentAddress         string                                     `json:"instrumentAddress" binding:"required"`
	InstrumentLedger          models.Ledger                              `json:"instrumentLedger" binding:"required"`
	Investor                  models.ParticipantAddresses                `json:"investor"`
	Issuer                    models.ParticipantAddressesWithoutDelivery `json:"issuer"`
	DeliveryQuantity          int64                                      `json:"deliveryQuantity" binding:"required,gt=0"`
	PaymentAmount             int64                                      `json:"paymentAmount" binding:"gte=0"`
	PaymentCurrency           string                                     `json:"paymentCurrency" binding:"required"`
	SettlementModel           models.SettlementModel                     `json:"settlementModel" binding:"required"`
	IntermediateAccountIBAN   string                                     `json:"intermediateAccountIBAN"`
	HoldableTokenAddress      string                                     `json:"holdableTokenAddress"`
	AdditionalReaderAddresses []string                                   `json:"additionalReaderAddresses"`
}

// TradeRequest is a secondary market trade between two holders
type TradeRequest struct {
	OperationID               string                      `json:"operationId" binding:"required"`
	TradeID                   string                      `json:"tradeId"`
	TradeDate                 time.Time                   `json:"tradeDate"`
	SettlementDate            time.Time                   `json:"settlementDate"`
	InstrumentAddress         string                      `json:"instrumentAddress" binding:"required"`
	InstrumentLedger          models.Ledger               `json:"instrumentLedger" binding:"required"`
	Buyer                     models.ParticipantAddresses `json:"buyer"`
	Seller                    models.ParticipantAddresses `json:"seller"`
	DeliveryQuantity          int64                       `json:"deliveryQuantity" binding:"required,gt=0"`
	PaymentAmount             int64                       `json:"paymentAmount" binding:"gte=0"`
	PaymentCurrency           string                      `json:"paymentCurrency" binding:"required"`
	SettlementModel           models.SettlementModel      `json:"settlementModel" binding:"required"`
	IntermediateAccountIBAN   string                      `json:"intermediateAccountIBAN"`
	HoldableTokenAddress      string                      `json:"holdableTokenAddress"`
	AdditionalReaderAddresses []string                    `json:"additionalReaderAddresses"`
}

// RedemptionRequest redeems every outstanding position of an instrument
type RedemptionRequest struct {
	OperationID               string                                     `json:"operationId" binding:"required"`
	TradeID                   string                                     `json:"tradeId"`
	TradeDate                 time.Time                                  `json:"tradeDate"`
	SettlementDate            time.Time                                  `json:"settlementDate"`
	InstrumentAddress         string                                     `json:"instrumentAddress" binding:"required"`
	InstrumentLedger          models.Ledger                              `json:"instrumentLedger" binding:"required"`
	Issuer                    models.ParticipantAddressesWithoutDelivery `json:"issuer"`
	Participants              []models.ParticipantAddresses              `json:"participants" binding:"dive"`
	PaymentAmountPerUnit      int64                                      `json:"paymentAmountPerUnit" binding:"gte=0"`
	PaymentCurrency           string                                     `json:"paymentCurrency" binding:"required"`
	SettlementModel           models.SettlementModel                     `json:"settlementModel" binding:"required"`
	IntermediateAccountIBAN   string                                     `json:"intermediateAccountIBAN"`
	HoldableTokenAddress      string                                     `json:"holdableTokenAddress"`
	AdditionalReaderAddresses []string                                   `json:"additionalReaderAddresses"`
}
