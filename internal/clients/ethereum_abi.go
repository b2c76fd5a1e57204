package clients

// Minimal ABIs of the CAST contracts, restricted to what the oracles call or decode.

const settlementTransactionTupleComponents = `[
	{"name": "id", "type": "uint256"},
	{"name": "operationId", "type": "uint256"},
	{"name": "deliverySenderAccountNumber", "type": "address"},
	{"name": "deliveryReceiverAccountNumber", "type": "address"},
	{"name": "deliveryQuantity", "type": "uint256"},
	{"name": "txHash", "type": "string"}
]`

const instrumentABIJSON = `[
	{"type": "function", "name": "owner", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "settler", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "registrar", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address"}]},
	{"type": "function", "name": "currentState", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "uint8"}]},
	{"type": "function", "name": "getFullBalances", "stateMutability": "view", "inputs": [], "outputs": [
		{"name": "holders", "type": "address[]"},
		{"name": "balances", "type": "uint256[]"},
		{"name": "lockedBalances", "type": "uint256[]"}
	]},
	{"type": "function", "name": "getSettlementTransactionState", "stateMutability": "view", "inputs": [{"name": "settlementTransactionId", "type": "uint256"}], "outputs": [{"name": "", "type": "uint8"}]},
	{"type": "function", "name": "initiateSubscription", "stateMutability": "nonpayable", "outputs": [], "inputs": [
		{"name": "settlementTransaction", "type": "tuple", "components": ` + settlementTransactionTupleComponents + `}
	]},
	{"type": "function", "name": "initiateTrade", "stateMutability": "nonpayable", "outputs": [], "inputs": [
		{"name": "settlementTransaction", "type": "tuple", "components": ` + settlementTransactionTupleComponents + `}
	]},
	{"type": "function", "name": "initiateRedemption", "stateMutability": "nonpayable", "outputs": [], "inputs": [
		{"name": "settlementTransactions", "type": "tuple[]", "components": ` + settlementTransactionTupleComponents + `}
	]},
	{"type": "function", "name": "confirmPaymentReceived", "stateMutability": "nonpayable", "outputs": [], "inputs": [{"name": "settlementTransactionId", "type": "uint256"}]},
	{"type": "function", "name": "confirmPaymentTransferred", "stateMutability": "nonpayable", "outputs": [], "inputs": [{"name": "settlementTransactionId", "type": "uint256"}]},
	{"type": "function", "name": "cancelSettlementTransaction", "stateMutability": "nonpayable", "outputs": [], "inputs": [
		{"name": "settlementTransaction", "type": "tuple", "components": ` + settlementTransactionTupleComponents + `}
	]},

	{"type": "event", "name": "Transfer", "anonymous": false, "inputs": [
		{"name": "from", "type": "address", "indexed": true},
		{"name": "to", "type": "address", "indexed": true},
		{"name": "value", "type": "uint256", "indexed": false}
	]},
	{"type": "event", "name": "SubscriptionInitiated", "anonymous": false, "inputs": [
		{"name": "settlementTransactionId", "type": "uint256", "indexed": false},
		{"name": "settlementTransactionOperationType", "type": "uint8", "indexed": false}
	]},
	{"type": "event", "name": "TradeInitiated", "anonymous": false, "inputs": [
		{"name": "settlementTransactionId", "type": "uint256", "indexed": false}
	]},
	{"type": "event", "name": "RedemptionInitiated", "anonymous": false, "inputs": [
		{"name": "settlementTransactionIds", "type": "uint256[]", "indexed": false}
	]},
	{"type": "event", "name": "PaymentReceived", "anonymous": false, "inputs": [
		{"name": "settlementTransactionId", "type": "uint256", "indexed": false},
		{"name": "settlementTransactionOperationType", "type": "uint8", "indexed": false}
	]},
	{"type": "event", "name": "PaymentTransferred", "anonymous": false, "inputs": [
		{"name": "settlementTransactionId", "type": "uint256", "indexed": false},
		{"name": "settlementTransactionOperationType", "type": "uint8", "indexed": false}
	]},
	{"type": "event", "name": "SettlementTransactionCanceled", "anonymous": false, "inputs": [
		{"name": "settlementTransactionId", "type": "uint256", "indexed": false},
		{"name": "settlementTransactionOperationType", "type": "uint8", "indexed": false}
	]}
]`

const registryABIJSON = `[
	{"type": "function", "name": "getAllInstruments", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "address[]"}]},
	{"type": "function", "name": "getAllFactoryTypes", "stateMutability": "view", "inputs": [], "outputs": [{"name": "", "type": "string[]"}]},
	{"type": "function", "name": "getFactory", "stateMutability": "view", "inputs": [{"name": "factoryType", "type": "string"}], "outputs": [{"name": "", "type": "address"}]}
]`

const factoryABIJSON = `[
	{"type": "event", "name": "InstrumentListed", "anonymous": false, "inputs": [
		{"name": "instrumentAddress", "type": "address", "indexed": true}
	]}
]`
