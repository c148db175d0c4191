package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// RevertError is returned when a transaction would revert or did revert.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

const revertPrefix = "execution reverted"

// RevertReasonFromError extracts a revert reason from a node error. The
// second return is false when err does not describe a revert.
func RevertReasonFromError(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var revertErr *RevertError
	if errors.As(err, &revertErr) {
		return revertErr.Reason, true
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if reason, ok := decodeRevertData(dataErr.ErrorData()); ok {
			return reason, true
		}
	}

	msg := err.Error()
	idx := strings.Index(msg, revertPrefix)
	if idx < 0 {
		return "", false
	}
	reason := strings.TrimSpace(msg[idx+len(revertPrefix):])
	reason = strings.TrimSpace(strings.TrimPrefix(reason, ":"))
	return reason, true
}

func decodeRevertData(data interface{}) (string, bool) {
	var raw []byte
	switch v := data.(type) {
	case string:
		if v == "" {
			return "", false
		}
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return "", false
		}
		raw = decoded
	case []byte:
		raw = v
	default:
		return "", false
	}
	if len(raw) == 0 {
		return "", true
	}
	if reason, err := abi.UnpackRevert(raw); err == nil {
		return reason, true
	}
	if len(raw) >= 4 {
		return fmt.Sprintf("custom error 0x%s", common.Bytes2Hex(raw[:4])), true
	}
	return "", true
}
