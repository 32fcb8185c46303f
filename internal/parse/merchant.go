package parse

import (
	"regexp"
	"strings"
)

const maxMerchantLen = 50

// Common trailing noise on statement descriptions: corporate suffixes,
// store numbers, trailing 4-digit fragments, state codes.
var merchantSuffixes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(.*?)\s+(INC|LLC|CORP|LTD|CO)\.?$`),
	regexp.MustCompile(`^(.*?)\s+#\d+$`),
	regexp.MustCompile(`^(.*?)\s+\d{4}$`),
	regexp.MustCompile(`^(.*?)\s+WA$`),
	regexp.MustCompile(`^(.*?)\s+ON$`),
	regexp.MustCompile(`^(.*?)\s+CA$`),
}

// NormalizeMerchant derives a merchant name from a transaction description:
// strip one trailing suffix, cap the length.
func NormalizeMerchant(description string) string {
	merchant := strings.TrimSpace(description)
	for _, re := range merchantSuffixes {
		if m := re.FindStringSubmatch(merchant); m != nil {
			merchant = strings.TrimSpace(m[1])
			break
		}
	}
	if len(merchant) > maxMerchantLen {
		merchant = strings.TrimSpace(merchant[:maxMerchantLen])
	}
	return merchant
}
