package parse

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Veraticus/paperflow/internal/model"
)

// preprocessOFX fixes common formatting issues seen in bank exports before
// handing the content to the OFX decoder.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// Mixed-case SEVERITY values (must be INFO, WARN, or ERROR)
	severityRe := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRe.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML-style files sometimes drop the closing angle bracket on a tag
	// that ends the line.
	tagFixRe := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRe.ReplaceAllString(content, "$1>")

	return content
}

// ParseOFX decodes an OFX/QFX export into transactions. Bank and credit
// card statements are both handled; a statement that fails to convert is
// logged and skipped rather than failing the whole file.
func ParseOFX(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read OFX data: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("parse OFX data: %w", err)
	}

	var transactions []model.Transaction
	var statements int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			transactions = append(transactions, convertOFXTransaction(ofxTx))
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		statements++
		for _, ofxTx := range stmt.BankTranList.Transactions {
			transactions = append(transactions, convertOFXTransaction(ofxTx))
		}
	}

	slog.Debug("parsed OFX data",
		"transactions", len(transactions),
		"statements", statements)

	return transactions, nil
}

// convertOFXTransaction maps one OFX transaction to the domain model. OFX
// already signs amounts the way the model expects: debits negative.
func convertOFXTransaction(ofxTx ofxgo.Transaction) model.Transaction {
	amount, _ := ofxTx.TrnAmt.Float64()

	direction := model.DirectionCredit
	if amount < 0 {
		direction = model.DirectionDebit
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if ofxTx.Memo != "" && isGenericOFXName(description) {
		description = strings.TrimSpace(string(ofxTx.Memo))
	}

	return model.Transaction{
		Date:        ofxTx.DtPosted.Time,
		Merchant:    ofxMerchant(ofxTx, description),
		Description: description,
		Amount:      amount,
		Direction:   direction,
		Source:      model.SourceParsed,
	}
}

// ofxMerchant prefers the PAYEE block, then cleans the NAME field of
// processor prefixes before normalizing.
func ofxMerchant(ofxTx ofxgo.Transaction, description string) string {
	if ofxTx.Payee != nil && ofxTx.Payee.Name != "" {
		return NormalizeMerchant(string(ofxTx.Payee.Name))
	}

	name := description
	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
	}
	upper := strings.ToUpper(name)
	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading MM/DD fragments left by some processors
	if len(name) > 6 && name[2] == '/' && name[5] == ' ' {
		name = name[6:]
	}

	return NormalizeMerchant(name)
}

func isGenericOFXName(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}
