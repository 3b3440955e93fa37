package rpc

import (
	"errors"
	"fmt"
	"regexp"

	ethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/intentlabs/agentbook/internal/common"
)

var (
	tooManyResultsRe = regexp.MustCompile(`Query returned more than \d+ results`)
	suggestedRangeRe = regexp.MustCompile(`\[(0x[0-9a-fA-F]+),\s*(0x[0-9a-fA-F]+)\]`)
)

// IsTooManyResultsError reports whether err is a provider rejection of a
// log query for returning too many results, and returns the provider's
// message for range extraction.
func IsTooManyResultsError(err error) (bool, string) {
	if err == nil {
		return false, ""
	}

	var dataErr ethrpc.DataError
	if errors.As(err, &dataErr) {
		msg := fmt.Sprintf("%v", dataErr.ErrorData())
		return tooManyResultsRe.MatchString(msg), msg
	}

	return false, ""
}

// ParseSuggestedBlockRange extracts the block range some providers attach
// to a too-many-results rejection, e.g.
// "Query returned more than 20000 results. Try with this block range [0x7dfd25, 0x7e0fcc]."
func ParseSuggestedBlockRange(msg string) (fromBlock, toBlock uint64, ok bool) {
	if msg == "" {
		return 0, 0, false
	}

	matches := suggestedRangeRe.FindStringSubmatch(msg)
	if len(matches) != 3 {
		return 0, 0, false
	}

	from, err1 := common.ParseUint64orHex(matches[1])
	to, err2 := common.ParseUint64orHex(matches[2])
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}

	return from, to, true
}
