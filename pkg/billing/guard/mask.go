package guard

import (
	"strings"
	"time"

	"course-subscription-be/internal/entity"
)

const txHashPrefix = 10

// MaskOrderId keeps only the last four characters.
func MaskOrderId(orderId string) string {
	if orderId == "" {
		return ""
	}
	if len(orderId) <= 4 {
		return "****"
	}
	return "****" + orderId[len(orderId)-4:]
}

// MaskTxHash keeps the 0x prefix and the first few hex digits.
func MaskTxHash(hash string) string {
	if hash == "" {
		return ""
	}
	if len(hash) <= txHashPrefix {
		return hash[:min(len(hash), 4)] + "..."
	}
	return hash[:txHashPrefix] + "..."
}

func MaskEvidence(e entity.Evidence) string {
	var parts []string
	if e.OrderId != "" {
		parts = append(parts, "order:"+MaskOrderId(e.OrderId))
	}
	if e.TxHash != "" {
		parts = append(parts, "tx:"+MaskTxHash(e.TxHash))
	}
	if e.Timestamp != nil {
		parts = append(parts, "ts:"+e.Timestamp.UTC().Format(time.RFC3339))
	}
	if e.ReferenceId != "" {
		parts = append(parts, "ref:"+MaskOrderId(e.ReferenceId))
	}
	return strings.Join(parts, " ")
}
