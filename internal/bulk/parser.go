package bulk

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"openfinance/internal/domain"
)

const expectedHeader = "instruction_id,payee_iban,amount"

type parsedFile struct {
	TotalCount    int
	AcceptedCount int
	RejectedCount int
	TotalAmount   decimal.Decimal
	Items         []ItemResult
	TargetStatus  FileStatus
}

// parseCSV validates the batch content against the fixed three-column schema
// and applies the per-record rejection policy. Structural problems (bad
// header, wrong column count, non-positive amounts) fail the whole upload;
// a malformed payee IBAN only rejects that record.
func parseCSV(content []byte, mode IntegrityMode) (*parsedFile, error) {
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	if len(lines) < 2 {
		return nil, domain.RuleViolation("Empty Payload")
	}

	header := strings.ToLower(strings.TrimSpace(lines[0]))
	if header != expectedHeader {
		return nil, domain.RuleViolation("Schema Validation Failed")
	}

	var (
		items       []ItemResult
		accepted    int
		rejected    int
		totalAmount = decimal.Zero
		logicalLine int
	)

	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}

		logicalLine++
		columns := strings.Split(line, ",")
		if len(columns) != 3 {
			return nil, domain.RuleViolation("Schema Validation Failed")
		}

		instructionID := strings.TrimSpace(columns[0])
		payeeIBAN := strings.TrimSpace(columns[1])
		amountRaw := strings.TrimSpace(columns[2])
		if instructionID == "" || payeeIBAN == "" || amountRaw == "" {
			return nil, domain.RuleViolation("Schema Validation Failed")
		}

		amount, err := decimal.NewFromString(amountRaw)
		if err != nil || amount.Sign() <= 0 {
			return nil, domain.RuleViolation("Schema Validation Failed")
		}
		totalAmount = totalAmount.Add(amount)

		if !likelyIBAN(payeeIBAN) {
			items = append(items, ItemResult{
				LineNumber:    logicalLine,
				InstructionID: instructionID,
				PayeeIBAN:     payeeIBAN,
				Amount:        amount,
				ErrorMessage:  "Invalid IBAN",
			})
			rejected++
			continue
		}

		items = append(items, ItemResult{
			LineNumber:    logicalLine,
			InstructionID: instructionID,
			PayeeIBAN:     payeeIBAN,
			Amount:        amount,
			Accepted:      true,
		})
		accepted++
	}

	totalCount := accepted + rejected
	if totalCount == 0 {
		return nil, domain.RuleViolation("Empty Payload")
	}

	if mode == FullRejection && rejected > 0 {
		for i := range items {
			items[i].Accepted = false
			if items[i].ErrorMessage == "" {
				items[i].ErrorMessage = "Rejected due to full rejection mode"
			}
		}
		return &parsedFile{
			TotalCount:    totalCount,
			AcceptedCount: 0,
			RejectedCount: totalCount,
			TotalAmount:   totalAmount,
			Items:         items,
			TargetStatus:  StatusRejected,
		}, nil
	}

	target := StatusPartiallyAccepted
	switch {
	case rejected == 0:
		target = StatusCompleted
	case accepted == 0:
		target = StatusRejected
	}

	return &parsedFile{
		TotalCount:    totalCount,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		TotalAmount:   totalAmount,
		Items:         items,
		TargetStatus:  target,
	}, nil
}

// likelyIBAN accepts values shaped like an IBAN: two letters, two digits,
// then alphanumerics, 15 to 34 characters total. No checksum verification.
func likelyIBAN(value string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	if len(normalized) < 15 || len(normalized) > 34 {
		return false
	}
	runes := []rune(normalized)
	if !unicode.IsLetter(runes[0]) || !unicode.IsLetter(runes[1]) {
		return false
	}
	if !unicode.IsDigit(runes[2]) || !unicode.IsDigit(runes[3]) {
		return false
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
