// Package entity pulls structured references out of free-text queries.
package entity

import (
	"strings"
	"unicode/utf8"

	"AIBank-Agent/internal/banking"
)

// minWordLength excludes short tokens such as "UK" or "M&S" from matching.
const minWordLength = 4

// ExtractMerchant returns the first transaction whose description shares a
// word of at least four characters with the message. Callers pass
// transactions newest first, so the match is the most recent one. The
// merchant name is the transaction description.
func ExtractMerchant(message string, transactions []banking.Transaction) (banking.Transaction, string, bool) {
	m := strings.ToLower(message)
	for _, tx := range transactions {
		for _, word := range strings.Fields(tx.Description) {
			if utf8.RuneCountInString(word) < minWordLength {
				continue
			}
			if strings.Contains(m, strings.ToLower(word)) {
				return tx, tx.Description, true
			}
		}
	}
	return banking.Transaction{}, "", false
}
