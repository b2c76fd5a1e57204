package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/models"
	"github.com/castframework/cast1-sub000/internal/utils"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fakeStore is an in-memory SettlementTransactionStore recording its calls
type fakeStore struct {
	mu      sync.Mutex
	records []*models.SettlementTransaction

	createErr error
	getErr    error
	refErr    error

	createCalls int
	batchCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{}
}

func (s *fakeStore) Create(ctx context.Context, st *models.SettlementTransaction) (*models.SettlementTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	for _, r := range s.records {
		if r.ID == st.ID {
			return nil, interfaces.ErrSettlementTransactionExists
		}
	}
	s.records = append(s.records, st)
	return st, nil
}

func (s *fakeStore) CreateBatch(ctx context.Context, sts []*models.SettlementTransaction) ([]*models.SettlementTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batchCalls++
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.records = append(s.records, sts...)
	return sts, nil
}

func (s *fakeStore) GetByID(ctx context.Context, id string) (*models.SettlementTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, r := range s.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, interfaces.ErrSettlementTransactionNotFound
}

func (s *fakeStore) GetByPaymentReference(ctx context.Context, ref string) ([]*models.SettlementTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refErr != nil {
		return nil, s.refErr
	}
	var out []*models.SettlementTransaction
	for _, r := range s.records {
		for _, m := range r.Movements {
			if m.PaymentReference == ref {
				out = append(out, r)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetByInstrument(ctx context.Context, ledger models.Ledger, address string) ([]*models.SettlementTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.SettlementTransaction
	for _, r := range s.records {
		if r.InstrumentLedger == ledger && (address == "" || utils.SameAddress(r.InstrumentPublicAddress, address)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) GetByTimeRange(ctx context.Context, begin, end time.Time) ([]*models.SettlementTransaction, error) {
	return nil, errors.New("not implemented")
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// fakeInstrument is an InstrumentContract recording every submission
type fakeInstrument struct {
	mu sync.Mutex

	address   string
	owner     string
	settler   string
	registrar string
	state     models.InstrumentState
	balances  []models.HolderBalance
	statuses  map[string]models.SettlementTransactionStatus // packed id -> status

	ownerErr     error
	settlerErr   error
	stateErr     error
	submitErr    error
	subscribeErr error
	confirmErrs  map[string]error // packed id -> error

	subscriptionCalls []interfaces.SettlementTransactionCall
	tradeCalls        []interfaces.SettlementTransactionCall
	redemptionCalls   [][]interfaces.SettlementTransactionCall
	cancelCalls       []interfaces.SettlementTransactionCall
	receivedCalls     []*big.Int
	transferredCalls  []*big.Int
	roleReads         int

	handler interfaces.InstrumentEventHandler
	txSeq   int
}

func newFakeInstrument(address string) *fakeInstrument {
	return &fakeInstrument{
		address:     address,
		owner:       "0xISS",
		settler:     "0xSET",
		registrar:   "0xREG",
		state:       models.InstrumentStateIssued,
		statuses:    make(map[string]models.SettlementTransactionStatus),
		confirmErrs: make(map[string]error),
	}
}

func (f *fakeInstrument) nextTx(prefix string) string {
	f.txSeq++
	return fmt.Sprintf("0x%s%d", prefix, f.txSeq)
}

func (f *fakeInstrument) Address() string { return f.address }

func (f *fakeInstrument) Owner(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleReads++
	return f.owner, f.ownerErr
}

func (f *fakeInstrument) Settler(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleReads++
	return f.settler, f.settlerErr
}

func (f *fakeInstrument) Registrar(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roleReads++
	return f.registrar, nil
}

func (f *fakeInstrument) CurrentState(ctx context.Context) (models.InstrumentState, error) {
	return f.state, f.stateErr
}

func (f *fakeInstrument) GetFullBalances(ctx context.Context) ([]models.HolderBalance, error) {
	return f.balances, nil
}

func (f *fakeInstrument) GetSettlementTransactionStatus(ctx context.Context, id *big.Int) (models.SettlementTransactionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[id.String()]; ok {
		return s, nil
	}
	return models.SettlementTransactionStatusUnknown, nil
}

func (f *fakeInstrument) InitiateSubscription(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscriptionCalls = append(f.subscriptionCalls, call)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextTx("sub"), nil
}

func (f *fakeInstrument) InitiateTrade(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tradeCalls = append(f.tradeCalls, call)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextTx("trade"), nil
}

func (f *fakeInstrument) InitiateRedemption(ctx context.Context, calls []interfaces.SettlementTransactionCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redemptionCalls = append(f.redemptionCalls, calls)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextTx("red"), nil
}

func (f *fakeInstrument) ConfirmPaymentReceived(ctx context.Context, id *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receivedCalls = append(f.receivedCalls, id)
	if err := f.confirmErrs[id.String()]; err != nil {
		return "", err
	}
	return "0xrcv-" + id.String(), nil
}

func (f *fakeInstrument) ConfirmPaymentTransferred(ctx context.Context, id *big.Int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferredCalls = append(f.transferredCalls, id)
	if err := f.confirmErrs[id.String()]; err != nil {
		return "", err
	}
	return "0xtrf-" + id.String(), nil
}

func (f *fakeInstrument) CancelSettlementTransaction(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelCalls = append(f.cancelCalls, call)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.nextTx("cancel"), nil
}

func (f *fakeInstrument) SubscribeEvents(ctx context.Context, handler interfaces.InstrumentEventHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.handler = handler
	return nil
}

// fakeRegistry is an InstrumentRegistry over fixed listings
type fakeRegistry struct {
	mu          sync.Mutex
	instruments []string
	factories   map[string]string // type -> address
	listed      map[string]interfaces.InstrumentListedHandler
}

func (r *fakeRegistry) GetAllInstruments(ctx context.Context) ([]string, error) {
	return r.instruments, nil
}

func (r *fakeRegistry) GetAllFactoryTypes(ctx context.Context) ([]string, error) {
	var out []string
	for t := range r.factories {
		out = append(out, t)
	}
	return out, nil
}

func (r *fakeRegistry) GetFactory(ctx context.Context, factoryType string) (string, error) {
	addr, ok := r.factories[factoryType]
	if !ok {
		return "", fmt.Errorf("unknown factory type %s", factoryType)
	}
	return addr, nil
}

func (r *fakeRegistry) SubscribeInstrumentListed(ctx context.Context, factoryAddress string, handler interfaces.InstrumentListedHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listed == nil {
		r.listed = make(map[string]interfaces.InstrumentListedHandler)
	}
	r.listed[factoryAddress] = handler
	return nil
}

// fakeDriver is a LedgerDriver over fake instruments
type fakeDriver struct {
	mu          sync.Mutex
	ledger      models.Ledger
	instruments map[string]*fakeInstrument
	registry    *fakeRegistry
	binds       map[string]int
}

func newFakeDriver(ledger models.Ledger, instruments ...*fakeInstrument) *fakeDriver {
	d := &fakeDriver{
		ledger:      ledger,
		instruments: make(map[string]*fakeInstrument),
		registry:    &fakeRegistry{factories: map[string]string{}},
		binds:       make(map[string]int),
	}
	for _, i := range instruments {
		d.add(i)
	}
	return d
}

func (d *fakeDriver) add(i *fakeInstrument) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instruments[utils.NormalizeAddress(i.address)] = i
}

func (d *fakeDriver) Ledger() models.Ledger { return d.ledger }

func (d *fakeDriver) Instrument(address string) (interfaces.InstrumentContract, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key := utils.NormalizeAddress(address)
	d.binds[key]++
	i, ok := d.instruments[key]
	if !ok {
		return nil, fmt.Errorf("no instrument at %s", address)
	}
	return i, nil
}

func (d *fakeDriver) Registry() interfaces.InstrumentRegistry { return d.registry }

// recordingPublisher collects published notifications
type recordingPublisher struct {
	mu            sync.Mutex
	notifications []models.Notification
}

func (p *recordingPublisher) Publish(n models.Notification) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifications = append(p.notifications, n)
}

func (p *recordingPublisher) all() []models.Notification {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Notification(nil), p.notifications...)
}

func mustPack(id string) *big.Int {
	n, err := utils.UUIDToInteger(id)
	if err != nil {
		panic(err)
	}
	return n
}
