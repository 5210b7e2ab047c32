package payment

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/mr-tron/base58"

	"github.com/cuongbtq/mintgate/internal/ledger"
	"github.com/cuongbtq/mintgate/internal/mint/domain"
)

// PaidForMintMarker is the log phrase the payment program emits on a successful payment
const PaidForMintMarker = "Paid for mint"

// NativeTolerancePercent is the share of the native price the beneficiary must receive
const NativeTolerancePercent = 95

var paymentPattern = regexp.MustCompile(`\[([1-9A-HJ-NP-Za-km-z]{32,44}):([0-9]{1,10})\]`)

// Verifier decides whether a transaction is a valid mint payment
type Verifier struct {
	programID string
}

// NewVerifier creates a verifier for the given payment program
func NewVerifier(programID string) *Verifier {
	return &Verifier{programID: programID}
}

// Verify runs the payment checks in order and stops at the first failure
func (v *Verifier) Verify(tx *ledger.Transaction, cfg ledger.PaymentConfig, tier domain.PaymentTier) (domain.DecodedPayment, error) {
	if tx == nil {
		return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectTxNotFound, "tx not found")
	}

	if tx.ExecutionError != nil {
		return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectTxFailed, "tx failed")
	}

	if indexOf(tx.AccountKeys, v.programID) < 0 {
		return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectProgramMissing, "payment program missing")
	}

	logs := ProgramLogs(tx.LogMessages, v.programID)
	if len(logs) == 0 {
		return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectProgramLogsMissing, "payment program logs missing")
	}

	decoded, err := ExtractPayment(logs)
	if err != nil {
		return domain.DecodedPayment{}, err
	}

	switch tier {
	case domain.PaymentTierDay:
		err = checkTokenPayment(tx, cfg.BeneficiaryDay, cfg.PriceDay)
	default:
		err = checkNativePayment(tx, cfg.Beneficiary, cfg.PriceLamports)
	}
	if err != nil {
		return domain.DecodedPayment{}, err
	}

	return decoded, nil
}

// ProgramLogs returns the log lines from the program's first invoke up to, not
// including, its success line. It returns nil when either bound is missing.
func ProgramLogs(logMessages []string, programID string) []string {
	invoke := "Program " + programID + " invoke"
	success := "Program " + programID + " success"

	start := -1
	for i, msg := range logMessages {
		if strings.HasPrefix(msg, invoke) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}

	for i := start + 1; i < len(logMessages); i++ {
		if logMessages[i] == success {
			return logMessages[start:i]
		}
	}

	return nil
}

// ExtractPayment parses payer and slot index from the first "Paid for mint" line
func ExtractPayment(logs []string) (domain.DecodedPayment, error) {
	for _, msg := range logs {
		idx := strings.Index(msg, PaidForMintMarker)
		if idx < 0 {
			continue
		}

		m := paymentPattern.FindStringSubmatch(msg[idx+len(PaidForMintMarker):])
		if m == nil {
			return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectPaymentLogMissing, "payer and/or id missing")
		}

		raw, err := base58.Decode(m[1])
		if err != nil || len(raw) != 32 {
			return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectPaymentLogMissing, "payer is not a valid address")
		}

		id, err := strconv.ParseUint(m[2], 10, 32)
		if err != nil || id == 0 {
			return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectPaymentLogMissing, "id is not a positive integer")
		}

		return domain.DecodedPayment{PayerAddress: m[1], SlotIndex: uint32(id)}, nil
	}

	return domain.DecodedPayment{}, domain.NewPaymentRejected(domain.RejectPaymentLogMissing, "payer and/or id missing")
}

func checkNativePayment(tx *ledger.Transaction, beneficiary string, price uint64) error {
	i := indexOf(tx.AccountKeys, beneficiary)
	if i < 0 || i >= len(tx.PreBalances) || i >= len(tx.PostBalances) {
		return domain.NewPaymentRejected(domain.RejectBeneficiaryMissing, "beneficiary missing")
	}

	delta := tx.PostBalances[i] - tx.PreBalances[i]
	if delta <= 0 {
		return domain.NewPaymentRejected(domain.RejectInsufficientAmount, "invalid payment amount")
	}

	// delta*100 >= price*95, without overflow
	received := new(uint256.Int).Mul(uint256.NewInt(uint64(delta)), uint256.NewInt(100))
	required := new(uint256.Int).Mul(uint256.NewInt(price), uint256.NewInt(NativeTolerancePercent))
	if received.Lt(required) {
		return domain.NewPaymentRejected(domain.RejectInsufficientAmount, "invalid payment amount")
	}

	return nil
}

func checkTokenPayment(tx *ledger.Transaction, beneficiary string, price uint64) error {
	i := indexOf(tx.AccountKeys, beneficiary)
	if i < 0 {
		return domain.NewPaymentRejected(domain.RejectBeneficiaryMissing, "beneficiary missing")
	}

	post, ok, err := tokenAmount(tx.PostTokenBalances, i)
	if err != nil {
		return domain.NewPaymentRejected(domain.RejectIncorrectTokenAmount, err.Error())
	}
	if !ok {
		return domain.NewPaymentRejected(domain.RejectBeneficiaryMissing, "beneficiary token balance missing")
	}

	// no pre balance means the token account was created by this transaction
	pre, _, err := tokenAmount(tx.PreTokenBalances, i)
	if err != nil {
		return domain.NewPaymentRejected(domain.RejectIncorrectTokenAmount, err.Error())
	}

	if post.Lt(pre) {
		return domain.NewPaymentRejected(domain.RejectIncorrectTokenAmount, "invalid DAY payment amount")
	}

	delta := new(uint256.Int).Sub(post, pre)
	if !delta.Eq(uint256.NewInt(price)) {
		return domain.NewPaymentRejected(domain.RejectIncorrectTokenAmount, "invalid DAY payment amount")
	}

	return nil
}

func tokenAmount(balances []ledger.TokenBalance, accountIndex int) (*uint256.Int, bool, error) {
	for _, b := range balances {
		if b.AccountIndex != accountIndex {
			continue
		}
		amount, err := uint256.FromDecimal(b.Amount)
		if err != nil {
			return nil, false, fmt.Errorf("malformed token amount %q", b.Amount)
		}
		return amount, true, nil
	}

	return uint256.NewInt(0), false, nil
}

func indexOf(keys []string, key string) int {
	if key == "" {
		return -1
	}
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return -1
}
