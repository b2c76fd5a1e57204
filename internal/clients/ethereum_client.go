package clients

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"

	"github.com/castframework/cast1-sub000/internal/config"
	"github.com/castframework/cast1-sub000/internal/interfaces"
	"github.com/castframework/cast1-sub000/internal/metrics"
	"github.com/castframework/cast1-sub000/internal/models"
)

// ErrReadOnlyLedger is returned by submitting calls when no signing key is configured
var ErrReadOnlyLedger = errors.New("ledger driver has no signing key")

var (
	instrumentStateCodes = map[uint8]models.InstrumentState{
		0: models.InstrumentStateCreated,
		1: models.InstrumentStateIssued,
		2: models.InstrumentStateRedeemed,
	}

	settlementStatusCodes = map[uint8]models.SettlementTransactionStatus{
		0: models.SettlementTransactionStatusUnknown,
		1: models.SettlementTransactionStatusInitiated,
		2: models.SettlementTransactionStatusPaymentReceived,
		3: models.SettlementTransactionStatusPaymentTransferred,
		4: models.SettlementTransactionStatusCanceled,
	}
)

// settlementTransactionTuple mirrors the contract's settlement transaction struct
type settlementTransactionTuple struct {
	Id                            *big.Int
	OperationId                   *big.Int
	DeliverySenderAccountNumber   common.Address
	DeliveryReceiverAccountNumber common.Address
	DeliveryQuantity              *big.Int
	TxHash                        string
}

func toTuple(call interfaces.SettlementTransactionCall) (settlementTransactionTuple, error) {
	if !common.IsHexAddress(call.DeliverySenderAccountNumber) {
		return settlementTransactionTuple{}, fmt.Errorf("invalid delivery sender address %q", call.DeliverySenderAccountNumber)
	}
	if !common.IsHexAddress(call.DeliveryReceiverAccountNumber) {
		return settlementTransactionTuple{}, fmt.Errorf("invalid delivery receiver address %q", call.DeliveryReceiverAccountNumber)
	}
	return settlementTransactionTuple{
		Id:                            call.ID,
		OperationId:                   call.OperationID,
		DeliverySenderAccountNumber:   common.HexToAddress(call.DeliverySenderAccountNumber),
		DeliveryReceiverAccountNumber: common.HexToAddress(call.DeliveryReceiverAccountNumber),
		DeliveryQuantity:              call.DeliveryQuantity,
		TxHash:                        call.TxHash,
	}, nil
}

// EthereumClient is the EVM ledger driver
type EthereumClient struct {
	backend bind.ContractBackend
	logs    ethereum.LogFilterer // log subscriptions, usually a websocket endpoint
	closers []func()

	chainID  *big.Int
	key      *ecdsa.PrivateKey
	from     common.Address
	gasLimit uint64

	registryAddress  common.Address
	resubscribeDelay time.Duration

	instrumentABI abi.ABI
	registryABI   abi.ABI
	factoryABI    abi.ABI

	// PendingNonceAt is racy across concurrent submissions
	txMu sync.Mutex

	logger *logrus.Logger
}

// NewEthereumClient dials the configured endpoints
func NewEthereumClient(ctx context.Context, cfg config.EthereumConfig, logger *logrus.Logger) (*EthereumClient, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ethereum rpc_url is required")
	}

	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC: %w", err)
	}
	closers := []func(){rpc.Close}

	var logs ethereum.LogFilterer = rpc
	if cfg.WSURL != "" && cfg.WSURL != cfg.RPCURL {
		ws, err := ethclient.DialContext(ctx, cfg.WSURL)
		if err != nil {
			rpc.Close()
			return nil, fmt.Errorf("failed to connect to websocket endpoint: %w", err)
		}
		logs = ws
		closers = append(closers, ws.Close)
	}

	chainID := big.NewInt(cfg.ChainID)
	if cfg.ChainID == 0 {
		if chainID, err = rpc.ChainID(ctx); err != nil {
			rpc.Close()
			return nil, fmt.Errorf("failed to read chain id: %w", err)
		}
	}

	var key *ecdsa.PrivateKey
	if cfg.PrivateKey != "" {
		if key, err = crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x")); err != nil {
			rpc.Close()
			return nil, fmt.Errorf("invalid ethereum private key: %w", err)
		}
	}

	c, err := newEthereumClient(rpc, logs, chainID, key, cfg, logger)
	if err != nil {
		rpc.Close()
		return nil, err
	}
	c.closers = closers

	logger.WithFields(logrus.Fields{
		"chain_id": chainID.String(),
		"from":     c.from.Hex(),
		"registry": c.registryAddress.Hex(),
		"readonly": key == nil,
	}).Info("Ethereum ledger driver ready")
	return c, nil
}

func newEthereumClient(backend bind.ContractBackend, logs ethereum.LogFilterer, chainID *big.Int, key *ecdsa.PrivateKey, cfg config.EthereumConfig, logger *logrus.Logger) (*EthereumClient, error) {
	instrumentABI, err := abi.JSON(strings.NewReader(instrumentABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse instrument ABI: %w", err)
	}
	registryABI, err := abi.JSON(strings.NewReader(registryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}
	factoryABI, err := abi.JSON(strings.NewReader(factoryABIJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to parse factory ABI: %w", err)
	}

	if cfg.RegistryAddress != "" && !common.IsHexAddress(cfg.RegistryAddress) {
		return nil, fmt.Errorf("invalid registry address %q", cfg.RegistryAddress)
	}

	c := &EthereumClient{
		backend:          backend,
		logs:             logs,
		chainID:          chainID,
		key:              key,
		gasLimit:         cfg.GasLimit,
		registryAddress:  common.HexToAddress(cfg.RegistryAddress),
		resubscribeDelay: time.Duration(cfg.ResubscribeDelay) * time.Second,
		instrumentABI:    instrumentABI,
		registryABI:      registryABI,
		factoryABI:       factoryABI,
		logger:           logger,
	}
	if key != nil {
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}
	if c.resubscribeDelay <= 0 {
		c.resubscribeDelay = 5 * time.Second
	}
	return c, nil
}

// Close releases the RPC connections
func (c *EthereumClient) Close() {
	for _, closeFn := range c.closers {
		closeFn()
	}
}

func (c *EthereumClient) Ledger() models.Ledger { return models.LedgerEthereum }

// Instrument binds the instrument contract deployed at address
func (c *EthereumClient) Instrument(address string) (interfaces.InstrumentContract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid instrument address %q", address)
	}
	addr := common.HexToAddress(address)
	return &ethInstrument{
		client:   c,
		address:  addr,
		contract: bind.NewBoundContract(addr, c.instrumentABI, c.backend, c.backend, c.backend),
	}, nil
}

// Registry binds the configured instrument registry
func (c *EthereumClient) Registry() interfaces.InstrumentRegistry {
	return &ethRegistry{
		client:   c,
		contract: bind.NewBoundContract(c.registryAddress, c.registryABI, c.backend, c.backend, c.backend),
	}
}

func (c *EthereumClient) call(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) ([]interface{}, error) {
	start := time.Now()
	var out []interface{}
	err := contract.Call(&bind.CallOpts{Context: ctx}, &out, method, args...)
	metrics.LedgerCallDuration.WithLabelValues(string(models.LedgerEthereum), method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LedgerCallErrors.WithLabelValues(string(models.LedgerEthereum), method).Inc()
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	return out, nil
}

// transact signs and submits one contract call and returns the transaction hash
// without waiting for it to be mined
func (c *EthereumClient) transact(ctx context.Context, contract *bind.BoundContract, method string, args ...interface{}) (string, error) {
	if c.key == nil {
		return "", ErrReadOnlyLedger
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.key, c.chainID)
	if err != nil {
		return "", fmt.Errorf("failed to create transactor: %w", err)
	}
	opts.Context = ctx
	opts.GasLimit = c.gasLimit

	c.txMu.Lock()
	defer c.txMu.Unlock()

	start := time.Now()
	tx, err := contract.Transact(opts, method, args...)
	metrics.LedgerCallDuration.WithLabelValues(string(models.LedgerEthereum), method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.LedgerCallErrors.WithLabelValues(string(models.LedgerEthereum), method).Inc()
		return "", fmt.Errorf("%s transaction failed: %w", method, err)
	}

	c.logger.WithFields(logrus.Fields{
		"method":  method,
		"tx_hash": tx.Hash().Hex(),
		"nonce":   tx.Nonce(),
	}).Info("Ledger transaction submitted")
	return tx.Hash().Hex(), nil
}

// subscribeLogs delivers logs matching query until ctx is done, resubscribing
// from the last seen block when the subscription drops
func (c *EthereumClient) subscribeLogs(ctx context.Context, query ethereum.FilterQuery, onLog func(types.Log)) error {
	logs := make(chan types.Log, 128)
	sub, err := c.logs.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("failed to subscribe to logs: %w", err)
	}

	go func() {
		var lastBlock uint64
		for {
			select {
			case <-ctx.Done():
				sub.Unsubscribe()
				return
			case l := <-logs:
				if l.Removed {
					continue
				}
				lastBlock = l.BlockNumber
				onLog(l)
			case err := <-sub.Err():
				c.logger.WithFields(logrus.Fields{
					"addresses": query.Addresses,
					"error":     err,
				}).Warn("Log subscription dropped, resubscribing")
				if lastBlock > 0 {
					query.FromBlock = new(big.Int).SetUint64(lastBlock)
				}
				if sub = c.resubscribe(ctx, query, logs); sub == nil {
					return
				}
			}
		}
	}()
	return nil
}

func (c *EthereumClient) resubscribe(ctx context.Context, query ethereum.FilterQuery, logs chan types.Log) ethereum.Subscription {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.resubscribeDelay):
		}
		sub, err := c.logs.SubscribeFilterLogs(ctx, query, logs)
		if err == nil {
			return sub
		}
		c.logger.WithError(err).Warn("Log resubscription failed")
	}
}

// ethInstrument implements interfaces.InstrumentContract
type ethInstrument struct {
	client   *EthereumClient
	address  common.Address
	contract *bind.BoundContract
}

func (i *ethInstrument) Address() string { return i.address.Hex() }

func (i *ethInstrument) readAddress(ctx context.Context, method string) (string, error) {
	out, err := i.client.call(ctx, i.contract, method)
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return addr.Hex(), nil
}

func (i *ethInstrument) readUint8(ctx context.Context, method string, args ...interface{}) (uint8, error) {
	out, err := i.client.call(ctx, i.contract, method, args...)
	if err != nil {
		return 0, err
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s: unexpected result type %T", method, out[0])
	}
	return v, nil
}

func (i *ethInstrument) Owner(ctx context.Context) (string, error) {
	return i.readAddress(ctx, "owner")
}

func (i *ethInstrument) Settler(ctx context.Context) (string, error) {
	return i.readAddress(ctx, "settler")
}

func (i *ethInstrument) Registrar(ctx context.Context) (string, error) {
	return i.readAddress(ctx, "registrar")
}

func (i *ethInstrument) CurrentState(ctx context.Context) (models.InstrumentState, error) {
	code, err := i.readUint8(ctx, "currentState")
	if err != nil {
		return models.InstrumentStateUnknown, err
	}
	if state, ok := instrumentStateCodes[code]; ok {
		return state, nil
	}
	return models.InstrumentStateUnknown, nil
}

func (i *ethInstrument) GetFullBalances(ctx context.Context) ([]models.HolderBalance, error) {
	out, err := i.client.call(ctx, i.contract, "getFullBalances")
	if err != nil {
		return nil, err
	}
	holders, ok1 := out[0].([]common.Address)
	balances, ok2 := out[1].([]*big.Int)
	locked, ok3 := out[2].([]*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("getFullBalances: unexpected result types")
	}
	if len(balances) != len(holders) || len(locked) != len(holders) {
		return nil, fmt.Errorf("getFullBalances: mismatched lengths %d/%d/%d", len(holders), len(balances), len(locked))
	}

	result := make([]models.HolderBalance, len(holders))
	for idx, holder := range holders {
		result[idx] = models.HolderBalance{
			Address:       holder.Hex(),
			Balance:       balances[idx],
			LockedBalance: locked[idx],
		}
	}
	return result, nil
}

func (i *ethInstrument) GetSettlementTransactionStatus(ctx context.Context, id *big.Int) (models.SettlementTransactionStatus, error) {
	code, err := i.readUint8(ctx, "getSettlementTransactionState", id)
	if err != nil {
		return models.SettlementTransactionStatusUnknown, err
	}
	if status, ok := settlementStatusCodes[code]; ok {
		return status, nil
	}
	return models.SettlementTransactionStatusUnknown, nil
}

func (i *ethInstrument) InitiateSubscription(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	tuple, err := toTuple(call)
	if err != nil {
		return "", err
	}
	return i.client.transact(ctx, i.contract, "initiateSubscription", tuple)
}

func (i *ethInstrument) InitiateTrade(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	tuple, err := toTuple(call)
	if err != nil {
		return "", err
	}
	return i.client.transact(ctx, i.contract, "initiateTrade", tuple)
}

func (i *ethInstrument) InitiateRedemption(ctx context.Context, calls []interfaces.SettlementTransactionCall) (string, error) {
	tuples := make([]settlementTransactionTuple, len(calls))
	for idx, call := range calls {
		tuple, err := toTuple(call)
		if err != nil {
			return "", fmt.Errorf("settlement transaction %d: %w", idx, err)
		}
		tuples[idx] = tuple
	}
	return i.client.transact(ctx, i.contract, "initiateRedemption", tuples)
}

func (i *ethInstrument) ConfirmPaymentReceived(ctx context.Context, id *big.Int) (string, error) {
	return i.client.transact(ctx, i.contract, "confirmPaymentReceived", id)
}

func (i *ethInstrument) ConfirmPaymentTransferred(ctx context.Context, id *big.Int) (string, error) {
	return i.client.transact(ctx, i.contract, "confirmPaymentTransferred", id)
}

func (i *ethInstrument) CancelSettlementTransaction(ctx context.Context, call interfaces.SettlementTransactionCall) (string, error) {
	tuple, err := toTuple(call)
	if err != nil {
		return "", err
	}
	return i.client.transact(ctx, i.contract, "cancelSettlementTransaction", tuple)
}

func (i *ethInstrument) SubscribeEvents(ctx context.Context, handler interfaces.InstrumentEventHandler) error {
	query := ethereum.FilterQuery{Addresses: []common.Address{i.address}}
	return i.client.subscribeLogs(ctx, query, func(l types.Log) {
		evt, err := decodeInstrumentLog(&i.client.instrumentABI, l)
		handler(evt, logMeta(l), err)
	})
}

func logMeta(l types.Log) models.EventMeta {
	return models.EventMeta{
		Ledger:            models.LedgerEthereum,
		InstrumentAddress: l.Address.Hex(),
		TransactionHash:   l.TxHash.Hex(),
		BlockNumber:       l.BlockNumber,
		LogIndex:          l.Index,
	}
}

// decodeInstrumentLog turns a raw instrument log into its typed event
func decodeInstrumentLog(parsed *abi.ABI, l types.Log) (models.InstrumentEvent, error) {
	if len(l.Topics) == 0 {
		return nil, fmt.Errorf("log without topics")
	}
	event, err := parsed.EventByID(l.Topics[0])
	if err != nil {
		return nil, fmt.Errorf("unknown event topic %s: %w", l.Topics[0].Hex(), err)
	}

	values := make(map[string]interface{})
	if err := parsed.UnpackIntoMap(values, event.Name, l.Data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", event.Name, err)
	}

	name := models.EventName(event.Name)
	meta := logMeta(l)

	if name == models.EventTransfer {
		if len(l.Topics) < 3 {
			return nil, fmt.Errorf("Transfer log with %d topics", len(l.Topics))
		}
		value, _ := values["value"].(*big.Int)
		return &models.TransferEvent{
			EventMeta: meta,
			From:      common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
			To:        common.BytesToAddress(l.Topics[2].Bytes()).Hex(),
			Value:     value,
		}, nil
	}

	if !models.IsSettlementEventName(name) {
		return nil, fmt.Errorf("unsupported instrument event %s", event.Name)
	}

	evt := &models.SettlementEvent{EventMeta: meta, EventName: name}
	if id, ok := values["settlementTransactionId"].(*big.Int); ok {
		evt.SettlementTransactionIDs = []*big.Int{id}
	}
	if ids, ok := values["settlementTransactionIds"].([]*big.Int); ok {
		evt.SettlementTransactionIDs = ids
	}
	if len(evt.SettlementTransactionIDs) == 0 {
		return nil, fmt.Errorf("%s carries no settlement transaction id", event.Name)
	}
	if code, ok := values["settlementTransactionOperationType"].(uint8); ok {
		evt.OperationTypeCode = &code
	}
	return evt, nil
}

// ethRegistry implements interfaces.InstrumentRegistry
type ethRegistry struct {
	client   *EthereumClient
	contract *bind.BoundContract
}

func (r *ethRegistry) GetAllInstruments(ctx context.Context) ([]string, error) {
	out, err := r.client.call(ctx, r.contract, "getAllInstruments")
	if err != nil {
		return nil, err
	}
	addrs, ok := out[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getAllInstruments: unexpected result type %T", out[0])
	}
	result := make([]string, len(addrs))
	for idx, a := range addrs {
		result[idx] = a.Hex()
	}
	return result, nil
}

func (r *ethRegistry) GetAllFactoryTypes(ctx context.Context) ([]string, error) {
	out, err := r.client.call(ctx, r.contract, "getAllFactoryTypes")
	if err != nil {
		return nil, err
	}
	factoryTypes, ok := out[0].([]string)
	if !ok {
		return nil, fmt.Errorf("getAllFactoryTypes: unexpected result type %T", out[0])
	}
	return factoryTypes, nil
}

func (r *ethRegistry) GetFactory(ctx context.Context, factoryType string) (string, error) {
	out, err := r.client.call(ctx, r.contract, "getFactory", factoryType)
	if err != nil {
		return "", err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return "", fmt.Errorf("getFactory: unexpected result type %T", out[0])
	}
	return addr.Hex(), nil
}

func (r *ethRegistry) SubscribeInstrumentListed(ctx context.Context, factoryAddress string, handler interfaces.InstrumentListedHandler) error {
	if !common.IsHexAddress(factoryAddress) {
		return fmt.Errorf("invalid factory address %q", factoryAddress)
	}
	factory := common.HexToAddress(factoryAddress)
	query := ethereum.FilterQuery{
		Addresses: []common.Address{factory},
		Topics:    [][]common.Hash{{r.client.factoryABI.Events["InstrumentListed"].ID}},
	}
	return r.client.subscribeLogs(ctx, query, func(l types.Log) {
		evt, err := decodeInstrumentListedLog(l)
		if err != nil {
			r.client.logger.WithFields(logrus.Fields{
				"factory": factory.Hex(),
				"tx_hash": l.TxHash.Hex(),
				"error":   err,
			}).Warn("Failed to decode InstrumentListed log")
			return
		}
		handler(evt)
	})
}

func decodeInstrumentListedLog(l types.Log) (*models.InstrumentListedEvent, error) {
	if len(l.Topics) < 2 {
		return nil, fmt.Errorf("InstrumentListed log with %d topics", len(l.Topics))
	}
	return &models.InstrumentListedEvent{
		Ledger:            models.LedgerEthereum,
		FactoryAddress:    l.Address.Hex(),
		InstrumentAddress: common.BytesToAddress(l.Topics[1].Bytes()).Hex(),
		TransactionHash:   l.TxHash.Hex(),
		BlockNumber:       l.BlockNumber,
		LogIndex:          l.Index,
	}, nil
}
