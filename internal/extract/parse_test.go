package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	t.Run("ticket type labels", func(t *testing.T) {
		p, err := ParseResponse(validReply)
		require.NoError(t, err)
		assert.Equal(t, Parsed{OfferedQuantity: 2, OfferedType: "NSA", RequestedQuantity: 3, RequestedType: "ÖG"}, p)
	})

	t.Run("markdown decoration and surrounding chatter", func(t *testing.T) {
		reply := "Sure! Here it is:\n\n**Offered:**\n- Quantity: 1\n- Type: T-BAR\n\n**Requested:**\n- Quantity: 2\n- Type: VG/H\n"
		p, err := ParseResponse(reply)
		require.NoError(t, err)
		assert.Equal(t, Parsed{OfferedQuantity: 1, OfferedType: "T-BAR", RequestedQuantity: 2, RequestedType: "VG/H"}, p)
	})

	t.Run("zero quantity is kept", func(t *testing.T) {
		p, err := ParseResponse("Offered:\nQuantity: 0\nType: A\nRequested:\nQuantity: 1\nType: B")
		require.NoError(t, err)
		assert.Zero(t, p.OfferedQuantity)
	})

	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"missing requested section", "Offered:\nQuantity: 2\nType: NSA"},
		{"missing type", "Offered:\nQuantity: 2\nRequested:\nQuantity: 2\nType: ÖG"},
		{"non-numeric quantity", "Offered:\nQuantity: two\nType: NSA\nRequested:\nQuantity: 2\nType: ÖG"},
		{"empty type", "Offered:\nQuantity: 2\nType:\nRequested:\nQuantity: 2\nType: ÖG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseResponse(tt.reply)
			assert.ErrorIs(t, err, ErrUnparseable)
		})
	}
}
