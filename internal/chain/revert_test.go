package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"forwardlock/internal/model"
)

type dataError struct {
	msg  string
	data interface{}
}

func (e dataError) Error() string          { return e.msg }
func (e dataError) ErrorCode() int         { return 3 }
func (e dataError) ErrorData() interface{} { return e.data }

// Error(string) "too little" ABI-encoded.
const tooLittleRevert = "0x08c379a0" +
	"0000000000000000000000000000000000000000000000000000000000000020" +
	"000000000000000000000000000000000000000000000000000000000000000a" +
	"746f6f206c6974746c6500000000000000000000000000000000000000000000"

func TestRevertReasonFromDataError(t *testing.T) {
	err := fmt.Errorf("estimate: %w", dataError{msg: "execution reverted", data: tooLittleRevert})
	reason, ok := RevertReasonFromError(err)
	if !ok {
		t.Fatalf("expected revert")
	}
	if reason != "too little" {
		t.Fatalf("reason = %q", reason)
	}
}

func TestRevertReasonCustomError(t *testing.T) {
	err := dataError{msg: "execution reverted", data: hexutil.Encode([]byte{0xde, 0xad, 0xbe, 0xef})}
	reason, ok := RevertReasonFromError(err)
	if !ok || reason != "custom error 0xdeadbeef" {
		t.Fatalf("reason = %q ok=%v", reason, ok)
	}
}

func TestRevertReasonFromMessage(t *testing.T) {
	reason, ok := RevertReasonFromError(errors.New("execution reverted: Pool: Not enough fyToken obtained"))
	if !ok {
		t.Fatalf("expected revert")
	}
	if reason != "Pool: Not enough fyToken obtained" {
		t.Fatalf("reason = %q", reason)
	}

	if _, ok := RevertReasonFromError(errors.New("connection refused")); ok {
		t.Fatalf("transport error treated as revert")
	}
	if _, ok := RevertReasonFromError(nil); ok {
		t.Fatalf("nil treated as revert")
	}
}

func TestRevertReasonFromRevertError(t *testing.T) {
	err := fmt.Errorf("send: %w", &RevertError{Reason: "expired"})
	reason, ok := RevertReasonFromError(err)
	if !ok || reason != "expired" {
		t.Fatalf("reason = %q ok=%v", reason, ok)
	}
}

func TestClassify(t *testing.T) {
	if !errors.Is(Classify(errors.New("dial tcp: connection refused")), model.ErrNetwork) {
		t.Fatalf("transport error not classified as network")
	}
	if !errors.Is(Classify(dataError{msg: "execution reverted"}), model.ErrContractCall) {
		t.Fatalf("rpc error not classified as contract call")
	}
	if IsNetworkError(context.Canceled) {
		t.Fatalf("cancellation is not a network error")
	}
}
