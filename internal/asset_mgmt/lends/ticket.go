package lends

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

const ticketPrefix = "LN-"

// NewTicketNumber: LN-YYYYMMDD-<ULID の末尾8文字>
func NewTicketNumber(createdAt time.Time, loanULID string) string {
	suffix := loanULID
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	return ticketPrefix + createdAt.UTC().Format("20060102") + "-" + strings.ToUpper(suffix)
}

// NormalizeTicket は手入力・全角入力の揺れを吸収する（ＬＮ－２０２５… → LN-2025…）
func NormalizeTicket(s string) string {
	return strings.ToUpper(strings.TrimSpace(norm.NFKC.String(s)))
}

func IsTicketNumber(ref string) bool {
	return strings.HasPrefix(NormalizeTicket(ref), ticketPrefix)
}
