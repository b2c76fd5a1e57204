package models

// ParticipantAddresses bundles the on-chain and off-chain identifiers of one party
type ParticipantAddresses struct {
	DeliveryAddress      string `json:"deliveryAddress" binding:"required"`      // ledger address
	PaymentAccountNumber string `json:"paymentAccountNumber" binding:"required"` // IBAN-like cash account
	LegalEntityID        string `json:"legalEntityId" binding:"required"`
}

// ParticipantAddressesWithoutDelivery is used for the issuer side, whose
// delivery address is always read from the instrument contract
type ParticipantAddressesWithoutDelivery struct {
	PaymentAccountNumber string `json:"paymentAccountNumber" binding:"required"`
	LegalEntityID        string `json:"legalEntityId" binding:"required"`
}

// WithDelivery completes the bundle with an authoritative delivery address
func (p ParticipantAddressesWithoutDelivery) WithDelivery(deliveryAddress string) ParticipantAddresses {
	return ParticipantAddresses{
		DeliveryAddress:      deliveryAddress,
		PaymentAccountNumber: p.PaymentAccountNumber,
		LegalEntityID:        p.LegalEntityID,
	}
}
