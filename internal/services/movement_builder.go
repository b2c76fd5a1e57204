package services

import (
	"time"

	"github.com/google/uuid"

	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// settlementTerms are the fields every settlement transaction of one operation shares
type settlementTerms struct {
	OperationID               string
	TradeID                   string
	TradeDate                 time.Time
	SettlementDate            time.Time
	InstrumentAddress         string
	InstrumentLedger          models.Ledger
	PaymentCurrency           string
	SettlementModel           models.SettlementModel
	IntermediateAccountIBAN   string
	HoldableTokenAddress      string
	AdditionalReaderAddresses []string
	OperationType             models.OperationType
}

// dvpLeg is one delivery against payment exchange between a deliverer and a payer
type dvpLeg struct {
	Deliverer        models.ParticipantAddresses // sends the tokens, receives the cash
	Payer            models.ParticipantAddresses // sends the cash, receives the tokens
	DeliveryQuantity int64
	PaymentAmount    int64
}

func validateSettlementModel(model models.SettlementModel, iban, holdableToken string) error {
	switch model {
	case models.SettlementModelIndirect:
		if iban == "" {
			return NewClientError("intermediateAccountIBAN is required for the %s settlement model", model)
		}
		if holdableToken != "" {
			return NewClientError("holdableTokenAddress must be empty for the %s settlement model", model)
		}
	case models.SettlementModelDirect:
		if holdableToken == "" {
			return NewClientError("holdableTokenAddress is required for the %s settlement model", model)
		}
		if iban != "" {
			return NewClientError("intermediateAccountIBAN must be empty for the %s settlement model", model)
		}
	default:
		return NewClientError("unknown settlement model %q", model)
	}
	return nil
}

func newMovement(operationID string, kind models.MovementType, sender, receiver string, sequence int) *models.Movement {
	m := &models.Movement{
		ID:                    uuid.NewString(),
		MovementType:          kind,
		SenderAccountNumber:   sender,
		ReceiverAccountNumber: receiver,
		Sequence:              sequence,
	}
	if kind == models.MovementTypeCash {
		m.PaymentReference = utils.PaymentReference(operationID, m.ID)
	}
	return m
}

// buildDVPMovements returns the cash legs followed by the token leg. DIRECT pays
// peer to peer; INDIRECT routes the cash through the intermediate account.
func buildDVPMovements(terms settlementTerms, leg dvpLeg) []*models.Movement {
	payer := leg.Payer.PaymentAccountNumber
	payee := leg.Deliverer.PaymentAccountNumber
	token := func(seq int) *models.Movement {
		return newMovement(terms.OperationID, models.MovementTypeToken,
			leg.Deliverer.DeliveryAddress, leg.Payer.DeliveryAddress, seq)
	}

	if terms.SettlementModel == models.SettlementModelDirect {
		return []*models.Movement{
			newMovement(terms.OperationID, models.MovementTypeCash, payer, payee, 0),
			token(1),
		}
	}
	return []*models.Movement{
		newMovement(terms.OperationID, models.MovementTypeCash, payer, terms.IntermediateAccountIBAN, 0),
		newMovement(terms.OperationID, models.MovementTypeCash, terms.IntermediateAccountIBAN, payee, 1),
		token(2),
	}
}

// newSettlementTransaction assembles and hashes a settlement transaction. For
// redemptions the cash flows from the deliverer's counterparty (the issuer), so
// the payment side is passed explicitly.
func newSettlementTransaction(terms settlementTerms, leg dvpLeg, paymentSender, paymentReceiver models.ParticipantAddresses,
	movements []*models.Movement) (*models.SettlementTransaction, error) {
	readers := terms.AdditionalReaderAddresses
	if readers == nil {
		readers = []string{}
	}
	st := &models.SettlementTransaction{
		ID:                                 uuid.NewString(),
		SettlementType:                     models.SettlementTypeDVP,
		SettlementDate:                     terms.SettlementDate.UTC(),
		TradeDate:                          terms.TradeDate.UTC(),
		TradeID:                            terms.TradeID,
		OperationID:                        terms.OperationID,
		InstrumentPublicAddress:            terms.InstrumentAddress,
		InstrumentLedger:                   terms.InstrumentLedger,
		DeliveryQuantity:                   leg.DeliveryQuantity,
		DeliverySenderAccountNumber:        leg.Deliverer.DeliveryAddress,
		DeliveryReceiverAccountNumber:      leg.Payer.DeliveryAddress,
		PaymentAmount:                      leg.PaymentAmount,
		PaymentCurrency:                    terms.PaymentCurrency,
		PaymentSenderAccountNumber:         paymentSender.PaymentAccountNumber,
		PaymentReceiverAccountNumber:       paymentReceiver.PaymentAccountNumber,
		PaymentSenderLegalEntityID:         paymentSender.LegalEntityID,
		PaymentReceiverLegalEntityID:       paymentReceiver.LegalEntityID,
		SettlementModel:                    terms.SettlementModel,
		IntermediateAccountIBAN:            terms.IntermediateAccountIBAN,
		HoldableTokenAddress:               terms.HoldableTokenAddress,
		AdditionalReaderAddresses:          readers,
		SettlementTransactionOperationType: terms.OperationType,
		Movements:                          movements,
	}
	if err := validateMovementCount(st); err != nil {
		return nil, err
	}
	hash, err := utils.StructuralHash(st.HashFields())
	if err != nil {
		return nil, WrapClientError(err, "hash settlement transaction %s", st.ID)
	}
	st.Hash = hash
	return st, nil
}

// BuildSubscription creates the settlement transaction of a subscription. The
// issuer delivers tokens from issuerDelivery and the investor pays.
func BuildSubscription(req *SubscriptionRequest, issuerDelivery string) (*models.SettlementTransaction, error) {
	if err := validateSettlementModel(req.SettlementModel, req.IntermediateAccountIBAN, req.HoldableTokenAddress); err != nil {
		return nil, err
	}
	terms := settlementTerms{
		OperationID:               req.OperationID,
		TradeID:                   req.TradeID,
		TradeDate:                 req.TradeDate,
		SettlementDate:            req.SettlementDate,
		InstrumentAddress:         req.InstrumentAddress,
		InstrumentLedger:          req.InstrumentLedger,
		PaymentCurrency:           req.PaymentCurrency,
		SettlementModel:           req.SettlementModel,
		IntermediateAccountIBAN:   req.IntermediateAccountIBAN,
		HoldableTokenAddress:      req.HoldableTokenAddress,
		AdditionalReaderAddresses: req.AdditionalReaderAddresses,
		OperationType:             models.OperationTypeSubscription,
	}
	leg := dvpLeg{
		Deliverer:        req.Issuer.WithDelivery(issuerDelivery),
		Payer:            req.Investor,
		DeliveryQuantity: req.DeliveryQuantity,
		PaymentAmount:    req.PaymentAmount,
	}
	return newSettlementTransaction(terms, leg, leg.Payer, leg.Deliverer, buildDVPMovements(terms, leg))
}

// BuildTrade creates the settlement transaction of a trade: the seller delivers, the buyer pays
func BuildTrade(req *TradeRequest) (*models.SettlementTransaction, error) {
	if err := validateSettlementModel(req.SettlementModel, req.IntermediateAccountIBAN, req.HoldableTokenAddress); err != nil {
		return nil, err
	}
	terms := settlementTerms{
		OperationID:               req.OperationID,
		TradeID:                   req.TradeID,
		TradeDate:                 req.TradeDate,
		SettlementDate:            req.SettlementDate,
		InstrumentAddress:         req.InstrumentAddress,
		InstrumentLedger:          req.InstrumentLedger,
		PaymentCurrency:           req.PaymentCurrency,
		SettlementModel:           req.SettlementModel,
		IntermediateAccountIBAN:   req.IntermediateAccountIBAN,
		HoldableTokenAddress:      req.HoldableTokenAddress,
		AdditionalReaderAddresses: req.AdditionalReaderAddresses,
		OperationType:             models.OperationTypeTrade,
	}
	leg := dvpLeg{
		Deliverer:        req.Seller,
		Payer:            req.Buyer,
		DeliveryQuantity: req.DeliveryQuantity,
		PaymentAmount:    req.PaymentAmount,
	}
	return newSettlementTransaction(terms, leg, leg.Payer, leg.Deliverer, buildDVPMovements(terms, leg))
}

// redemptionBuilder creates one settlement transaction per redeemed investor.
// Under INDIRECT every transaction shares the issuer->settler cash movement.
type redemptionBuilder struct {
	terms  settlementTerms
	issuer models.ParticipantAddresses
	shared *models.Movement
}

func newRedemptionBuilder(req *RedemptionRequest, issuerDelivery string) (*redemptionBuilder, error) {
	if err := validateSettlementModel(req.SettlementModel, req.IntermediateAccountIBAN, req.HoldableTokenAddress); err != nil {
		return nil, err
	}
	b := &redemptionBuilder{
		terms: settlementTerms{
			OperationID:               req.OperationID,
			TradeID:                   req.TradeID,
			TradeDate:                 req.TradeDate,
			SettlementDate:            req.SettlementDate,
			InstrumentAddress:         req.InstrumentAddress,
			InstrumentLedger:          req.InstrumentLedger,
			PaymentCurrency:           req.PaymentCurrency,
			SettlementModel:           req.SettlementModel,
			IntermediateAccountIBAN:   req.IntermediateAccountIBAN,
			HoldableTokenAddress:      req.HoldableTokenAddress,
			AdditionalReaderAddresses: req.AdditionalReaderAddresses,
			OperationType:             models.OperationTypeRedemption,
		},
		issuer: req.Issuer.WithDelivery(issuerDelivery),
	}
	if req.SettlementModel == models.SettlementModelIndirect {
		b.shared = newMovement(req.OperationID, models.MovementTypeCash,
			b.issuer.PaymentAccountNumber, req.IntermediateAccountIBAN, 0)
	}
	return b, nil
}

// build returns the settlement transaction redeeming quantity tokens of investor
func (b *redemptionBuilder) build(investor models.ParticipantAddresses, quantity, amount int64) (*models.SettlementTransaction, error) {
	leg := dvpLeg{
		Deliverer:        investor,
		Payer:            b.issuer,
		DeliveryQuantity: quantity,
		PaymentAmount:    amount,
	}
	token := newMovement(b.terms.OperationID, models.MovementTypeToken, investor.DeliveryAddress, b.issuer.DeliveryAddress, 0)

	var movements []*models.Movement
	if b.shared != nil {
		token.Sequence = 2
		movements = []*models.Movement{
			b.shared,
			newMovement(b.terms.OperationID, models.MovementTypeCash, b.terms.IntermediateAccountIBAN, investor.PaymentAccountNumber, 1),
			token,
		}
	} else {
		token.Sequence = 1
		movements = []*models.Movement{
			newMovement(b.terms.OperationID, models.MovementTypeCash, b.issuer.PaymentAccountNumber, investor.PaymentAccountNumber, 0),
			token,
		}
	}
	return newSettlementTransaction(b.terms, leg, b.issuer, investor, movements)
}

// validateMovementCount checks the 2 (DIRECT) or 3 (INDIRECT) legs shape:
// one TOKEN movement plus one or two CASH movements
func validateMovementCount(st *models.SettlementTransaction) error {
	want := 2
	if st.SettlementModel == models.SettlementModelIndirect {
		want = 3
	}
	if len(st.Movements) != want {
		return NewClientError("%s settlement transaction needs %d movements, got %d", st.SettlementModel, want, len(st.Movements))
	}
	tokens := 0
	for _, m := range st.Movements {
		if m.MovementType == models.MovementTypeToken {
			tokens++
		}
	}
	if tokens != 1 {
		return NewClientError("settlement transaction needs exactly one %s movement, got %d", models.MovementTypeToken, tokens)
	}
	return nil
}
