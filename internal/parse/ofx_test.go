package parse

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/paperflow/internal/model"
)

const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>POS PURCHASE STARBUCKS #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>2500.00
<FITID>2024012001
<NAME>PAYROLL DEPOSIT
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

func TestParseOFXBankStatement(t *testing.T) {
	txns, err := ParseOFX(context.Background(), strings.NewReader(sampleBankOFX))

	require.NoError(t, err)
	require.Len(t, txns, 2)

	debit := txns[0]
	assert.InDelta(t, -25.50, debit.Amount, 0.001)
	assert.Equal(t, model.DirectionDebit, debit.Direction)
	assert.Equal(t, "STARBUCKS", debit.Merchant)
	assert.Equal(t, model.SourceParsed, debit.Source)
	assert.Equal(t, 2024, debit.Date.Year())
	assert.Equal(t, time.January, debit.Date.Month())

	credit := txns[1]
	assert.InDelta(t, 2500.00, credit.Amount, 0.001)
	assert.Equal(t, model.DirectionCredit, credit.Direction)
	assert.NoError(t, credit.Validate())
}

func TestParseOFXInvalidData(t *testing.T) {
	_, err := ParseOFX(context.Background(), strings.NewReader("this is not an OFX file"))

	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse OFX")
}

func TestPreprocessOFXFixesSeverityCase(t *testing.T) {
	fixed := preprocessOFX("<SEVERITY>Info</SEVERITY>")
	assert.Equal(t, "<SEVERITY>INFO</SEVERITY>", fixed)
}

func TestPreprocessOFXClosesDanglingTags(t *testing.T) {
	fixed := preprocessOFX("<OFX\n<STATUS\n")
	assert.Contains(t, fixed, "<OFX>")
	assert.Contains(t, fixed, "<STATUS>")
}
