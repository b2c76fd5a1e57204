package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

// addressSet is an append-only set of normalized addresses per ledger
type addressSet map[models.Ledger]map[string]bool

// mark adds address and reports whether it was absent
func (s addressSet) mark(ledger models.Ledger, address string) bool {
	key := utils.NormalizeAddress(address)
	if s[ledger] == nil {
		s[ledger] = make(map[string]bool)
	}
	if s[ledger][key] {
		return false
	}
	s[ledger][key] = true
	return true
}

func (s addressSet) unmark(ledger models.Ledger, address string) {
	delete(s[ledger], utils.NormalizeAddress(address))
}

func (s addressSet) contains(ledger models.Ledger, address string) bool {
	return s[ledger][utils.NormalizeAddress(address)]
}

// participantRoles are the per instrument addresses attached to every notification
type participantRoles struct {
	issuer    string
	settler   string
	registrar string
}

// EventCorrelatorService subscribes to every instrument and factory of the
// configured ledgers and turns their events into notifications enriched with
// the stored settlement transactions
type EventCorrelatorService struct {
	ledgers   Ledgers
	store     interfaces.SettlementTransactionStore
	publisher NotificationPublisher
	logger    *logrus.Logger
	now       func() time.Time

	ctx         context.Context
	instruments addressSet
	factories   addressSet
	mu          sync.Mutex
}

// NewEventCorrelatorService creates a new EventCorrelatorService
func NewEventCorrelatorService(ledgers Ledgers, store interfaces.SettlementTransactionStore,
	publisher NotificationPublisher, logger *logrus.Logger) *EventCorrelatorService {
	return &EventCorrelatorService{
		ledgers:     ledgers,
		store:       store,
		publisher:   publisher,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		ctx:         context.Background(),
		instruments: make(addressSet),
		factories:   make(addressSet),
	}
}

// Start discovers the instruments and factories of every ledger and
// subscribes to them. Subscriptions live until ctx is done.
func (s *EventCorrelatorService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.WithField("ledgers", len(s.ledgers)).Info("🚀 Starting event correlator")
	var errs []error
	for ledger, driver := range s.ledgers {
		if err := s.discover(ctx, driver); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", ledger, err))
		}
	}
	return errors.Join(errs...)
}

func (s *EventCorrelatorService) discover(ctx context.Context, driver interfaces.LedgerDriver) error {
	registry := driver.Registry()
	ledger := driver.Ledger()

	instruments, err := registry.GetAllInstruments(ctx)
	if err != nil {
		return fmt.Errorf("list instruments: %w", err)
	}
	for _, address := range instruments {
		if _, err := s.SubscribeInstrument(ctx, ledger, address); err != nil {
			s.logger.WithFields(logrus.Fields{"ledger": ledger, "instrument": address}).
				WithError(err).Error("failed to subscribe to instrument")
		}
	}

	factoryTypes, err := registry.GetAllFactoryTypes(ctx)
	if err != nil {
		return fmt.Errorf("list factory types: %w", err)
	}
	for _, factoryType := range factoryTypes {
		factory, err := registry.GetFactory(ctx, factoryType)
		if err != nil {
			return fmt.Errorf("resolve factory %s: %w", factoryType, err)
		}
		if _, err := s.SubscribeFactory(ctx, ledger, factory); err != nil {
			s.logger.WithFields(logrus.Fields{"ledger": ledger, "factory": factory}).
				WithError(err).Error("failed to subscribe to factory")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"ledger":      ledger,
		"instruments": len(instruments),
		"factories":   len(factoryTypes),
	}).Info("ledger discovery complete")
	return nil
}

// SubscribeInstrument subscribes to the events of an instrument once per
// process. Returns false when the instrument was already subscribed.
func (s *EventCorrelatorService) SubscribeInstrument(ctx context.Context, ledger models.Ledger, address string) (bool, error) {
	s.mu.Lock()
	added := s.instruments.mark(ledger, address)
	s.mu.Unlock()
	if !added {
		return false, nil
	}

	instrument, err := s.ledgers.Instrument(ledger, address)
	if err == nil {
		err = instrument.SubscribeEvents(ctx, s.HandleEvent)
	}
	if err != nil {
		s.mu.Lock()
		s.instruments.unmark(ledger, address)
		s.mu.Unlock()
		return false, err
	}
	metrics.SubscribedContracts.WithLabelValues(string(ledger), "instrument").Inc()
	s.logger.WithFields(logrus.Fields{"ledger": ledger, "instrument": address}).Info("subscribed to instrument events")
	return true, nil
}

// SubscribeFactory subscribes to the listing events of a factory once per process
func (s *EventCorrelatorService) SubscribeFactory(ctx context.Context, ledger models.Ledger, factory string) (bool, error) {
	s.mu.Lock()
	added := s.factories.mark(ledger, factory)
	s.mu.Unlock()
	if !added {
		return false, nil
	}

	driver, err := s.ledgers.Driver(ledger)
	if err == nil {
		err = driver.Registry().SubscribeInstrumentListed(ctx, factory, s.HandleInstrumentListed)
	}
	if err != nil {
		s.mu.Lock()
		s.factories.unmark(ledger, factory)
		s.mu.Unlock()
		return false, err
	}
	metrics.SubscribedContracts.WithLabelValues(string(ledger), "factory").Inc()
	s.logger.WithFields(logrus.Fields{"ledger": ledger, "factory": factory}).Info("subscribed to factory events")
	return true, nil
}

// IsInstrumentSubscribed reports whether address already has a subscription
func (s *EventCorrelatorService) IsInstrumentSubscribed(ledger models.Ledger, address string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.instruments.contains(ledger, address)
}

// HandleInstrumentListed publishes the listing and subscribes to the new instrument
func (s *EventCorrelatorService) HandleInstrumentListed(evt *models.InstrumentListedEvent) {
	s.publisher.Publish(&models.RegistryNotification{
		ID:                models.EventNotificationID(evt.TransactionHash, evt.LogIndex, models.NotificationInstrumentListed),
		NotificationName:  models.NotificationInstrumentListed,
		Ledger:            evt.Ledger,
		InstrumentAddress: evt.InstrumentAddress,
		FactoryAddress:    evt.FactoryAddress,
		TransactionHash:   evt.TransactionHash,
		Timestamp:         s.now(),
	})
	metrics.EventsProcessed.WithLabelValues(string(evt.Ledger), string(models.EventInstrumentListed)).Inc()

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()
	if _, err := s.SubscribeInstrument(ctx, evt.Ledger, evt.InstrumentAddress); err != nil {
		s.logger.WithFields(logrus.Fields{
			"ledger":     evt.Ledger,
			"instrument": evt.InstrumentAddress,
		}).WithError(err).Error("failed to subscribe to listed instrument")
	}
}

// HandleEvent turns one instrument event into a notification
func (s *EventCorrelatorService) HandleEvent(evt models.InstrumentEvent, meta models.EventMeta, decodeErr error) {
	if decodeErr != nil {
		s.publishError(meta, decodeErr)
		return
	}

	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	var n *models.ContractNotification
	switch e := evt.(type) {
	case *models.TransferEvent:
		n = s.transferNotification(e)
	case *models.SettlementEvent:
		n = s.settlementNotification(ctx, e)
	default:
		s.publishError(meta, fmt.Errorf("unhandled event %s", evt.Name()))
		return
	}
	metrics.EventsProcessed.WithLabelValues(string(meta.Ledger), string(evt.Name())).Inc()
	s.publisher.Publish(n)
}

func (s *EventCorrelatorService) transferNotification(e *models.TransferEvent) *models.ContractNotification {
	return &models.ContractNotification{
		ID:                models.EventNotificationID(e.TransactionHash, e.LogIndex, models.NotificationTransfer),
		NotificationName:  models.NotificationTransfer,
		Ledger:            e.Ledger,
		InstrumentAddress: e.InstrumentAddress,
		TransactionHash:   e.TransactionHash,
		BlockNumber:       e.BlockNumber,
		LightSettlementTransactions: []models.LightSettlementTransaction{{
			ID:                            models.PlaceholderNoData,
			DeliverySenderAccountNumber:   e.From,
			DeliveryReceiverAccountNumber: e.To,
			IssuerAddress:                 models.PlaceholderNoData,
			SettlerAddress:                models.PlaceholderNoData,
			RegistrarAddress:              models.PlaceholderNoData,
		}},
		SettlementTransactionOperationType: models.OperationTypeNone,
		Timestamp:                          s.now(),
	}
}

func (s *EventCorrelatorService) settlementNotification(ctx context.Context, e *models.SettlementEvent) *models.ContractNotification {
	name := models.NotificationName(e.EventName)
	roles := s.readRoles(ctx, e.Ledger, e.InstrumentAddress)

	lights := make([]models.LightSettlementTransaction, 0, len(e.SettlementTransactionIDs))
	for _, packed := range e.SettlementTransactionIDs {
		light := models.LightSettlementTransaction{
			ID:                            models.PlaceholderUndefined,
			DeliverySenderAccountNumber:   models.PlaceholderUndefined,
			DeliveryReceiverAccountNumber: models.PlaceholderUndefined,
			IssuerAddress:                 roles.issuer,
			SettlerAddress:                roles.settler,
			RegistrarAddress:              roles.registrar,
		}
		id, err := utils.IntegerToUUID(packed)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"event": e.EventName, "tx": e.TransactionHash}).
				WithError(err).Warn("cannot unpack settlement transaction id")
			lights = append(lights, light)
			continue
		}
		light.ID = id

		st, err := s.store.GetByID(ctx, id)
		if err != nil || st == nil {
			s.logger.WithFields(logrus.Fields{
				"settlement_transaction_id": id,
				"event":                     e.EventName,
			}).WithError(err).Warn("settlement transaction not found for event")
		} else {
			light.DeliverySenderAccountNumber = st.DeliverySenderAccountNumber
			light.DeliveryReceiverAccountNumber = st.DeliveryReceiverAccountNumber
		}
		lights = append(lights, light)
	}

	operationType := models.OperationTypeFromEventName(e.EventName)
	if e.OperationTypeCode != nil {
		operationType = models.OperationTypeFromCode(*e.OperationTypeCode)
	}

	return &models.ContractNotification{
		ID:                                 models.EventNotificationID(e.TransactionHash, e.LogIndex, name),
		NotificationName:                   name,
		Ledger:                             e.Ledger,
		InstrumentAddress:                  e.InstrumentAddress,
		TransactionHash:                    e.TransactionHash,
		BlockNumber:                        e.BlockNumber,
		LightSettlementTransactions:        lights,
		SettlementTransactionOperationType: operationType,
		Timestamp:                          s.now(),
	}
}

// readRoles reads the issuer, settler and registrar of an instrument for one event
func (s *EventCorrelatorService) readRoles(ctx context.Context, ledger models.Ledger, address string) participantRoles {
	roles := participantRoles{
		issuer:    models.PlaceholderUndefined,
		settler:   models.PlaceholderUndefined,
		registrar: models.PlaceholderUndefined,
	}
	instrument, err := s.ledgers.Instrument(ledger, address)
	if err != nil {
		return roles
	}
	read := func(role string, fn func(context.Context) (string, error), dst *string) {
		v, err := fn(ctx)
		if err != nil {
			s.logger.WithFields(logrus.Fields{"instrument": address, "role": role}).
				WithError(err).Warn("failed to read instrument role")
			return
		}
		*dst = v
	}
	read("owner", instrument.Owner, &roles.issuer)
	read("settler", instrument.Settler, &roles.settler)
	read("registrar", instrument.Registrar, &roles.registrar)
	return roles
}

func (s *EventCorrelatorService) publishError(meta models.EventMeta, err error) {
	metrics.EventsFailed.WithLabelValues(string(meta.Ledger)).Inc()
	s.logger.WithFields(logrus.Fields{
		"ledger":     meta.Ledger,
		"instrument": meta.InstrumentAddress,
		"tx":         meta.TransactionHash,
	}).WithError(err).Error("failed to handle instrument event")

	s.publisher.Publish(&models.ErrorNotification{
		ID:                models.EventNotificationID(meta.TransactionHash, meta.LogIndex, models.NotificationEventHandlingError),
		NotificationName:  models.NotificationEventHandlingError,
		Ledger:            meta.Ledger,
		InstrumentAddress: meta.InstrumentAddress,
		TransactionHash:   meta.TransactionHash,
		Message:           err.Error(),
		Timestamp:         s.now(),
	})
}
