package iso8583

import (
	"fmt"
	"io"

	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/network"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

const (
	MTIAuthorizationRequest  = "0100"
	MTIAuthorizationResponse = "0110"
	MTICompletionRequest     = "0200"
	MTICompletionResponse    = "0210"
)

const (
	fieldAmount       = 4
	fieldSTAN         = 11
	fieldTxID         = 37
	fieldAuthToken    = 38
	fieldResponseCode = 39
	fieldFailReason   = 44
)

// Response codes (field 39)
const (
	ResponseApproved         = "00"
	ResponseInvalidParameter = "30"
	ResponseLimitExceeded    = "61"
	ResponseSystemError      = "96"
)

const (
	maxAmount      = 999_999_999_999
	maxTokenLength = 64
)

var spec = &iso8583.MessageSpec{
	Name: "fakepay authorization protocol",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.Binary,
			Pref:        prefix.Binary.Fixed,
		}),
		fieldAmount: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Transaction Amount",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		fieldSTAN: field.NewString(&field.Spec{
			Length:      6,
			Description: "Systems Trace Audit Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldTxID: field.NewString(&field.Spec{
			Length:      20,
			Description: "Retrieval Reference Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldAuthToken: field.NewString(&field.Spec{
			Length:      maxTokenLength,
			Description: "Authorization Token",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldResponseCode: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldFailReason: field.NewString(&field.Spec{
			Length:      99,
			Description: "Additional Response Data",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
	},
}

func readMessageLength(r io.Reader) (int, error) {
	header := network.NewBinary2BytesHeader()
	n, err := header.ReadFrom(r)
	if err != nil {
		return n, err
	}
	return header.Length(), nil
}

func writeMessageLength(w io.Writer, length int) (int, error) {
	header := network.NewBinary2BytesHeader()
	header.SetLength(length)
	n, err := header.WriteTo(w)
	if err != nil {
		return n, fmt.Errorf("writing message header: %w", err)
	}
	return n, nil
}

// getString returns the field value, or "" when the field is not set.
func getString(msg *iso8583.Message, id int) string {
	if _, ok := msg.GetFields()[id]; !ok {
		return ""
	}
	v, err := msg.GetString(id)
	if err != nil {
		return ""
	}
	return v
}

func setFields(msg *iso8583.Message, mti string, values map[int]string) error {
	msg.MTI(mti)
	for id, v := range values {
		if v == "" {
			continue
		}
		if err := msg.Field(id, v); err != nil {
			return fmt.Errorf("setting field %d: %w", id, err)
		}
	}
	return nil
}
