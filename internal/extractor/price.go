package extractor

import (
	"regexp"
	"strconv"
	"strings"
)

var priceNumber = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)

// Price symbols and noise words seen on the marketplaces
var priceStripper = strings.NewReplacer(
	"¥", "", "￥", "", "$", "", "€", "", "£", "",
	"元", "", "起", "", "到手价", "", "券后", "",
	" ", "", " ", "", "\t", "", "\n", "",
)

// ParsePrice extracts a numeric price from a display string. It returns nil
// (not zero) when the string is empty or carries no parseable number, since
// zero is a valid observed price and must not be confused with "unknown".
func ParsePrice(s string) *float64 {
	cleaned := priceStripper.Replace(strings.TrimSpace(s))
	if cleaned == "" {
		return nil
	}

	match := priceNumber.FindString(cleaned)
	if match == "" {
		return nil
	}

	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return nil
	}
	return &value
}

// parseCount reads sales/review counts like "2.3万+" or "1,024"
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	multiplier := 1.0
	if strings.Contains(s, "万") {
		multiplier = 10000
	}
	match := priceNumber.FindString(s)
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(value * multiplier)
}

// parseRating reads ratings like "4.8" or "98%好评"
func parseRating(s string) float64 {
	match := priceNumber.FindString(strings.TrimSpace(s))
	if match == "" {
		return 0
	}
	value, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil {
		return 0
	}
	return value
}
