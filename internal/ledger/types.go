package ledger

// Transaction is the chain view of a payment transaction used by the verifier
type Transaction struct {
	Signature         string
	ExecutionError    any
	AccountKeys       []string
	LogMessages       []string
	PreBalances       []int64
	PostBalances      []int64
	PreTokenBalances  []TokenBalance
	PostTokenBalances []TokenBalance
}

// TokenBalance is an SPL token balance of one account of a transaction.
// Amount is the raw integer amount as a decimal string.
type TokenBalance struct {
	AccountIndex int
	Mint         string
	Owner        string
	Amount       string
}

// PaymentConfig is the expected payment read from the payment program storage
type PaymentConfig struct {
	Beneficiary    string
	PriceLamports  uint64
	BeneficiaryDay string
	PriceDay       uint64
}
