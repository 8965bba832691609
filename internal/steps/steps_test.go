package steps

import (
	"context"
	"errors"
	"testing"

	"github.com/shaiso/Chainflow/internal/domain"
	"github.com/shaiso/Chainflow/internal/graph"
)

// fakeChainClient scripts gateway responses per test.
type fakeChainClient struct {
	txHash    string
	submitErr error

	status    TxStatus
	statusErr error

	blockNumber int64
	stateRoot   string
	stateErr    error

	submittedOp     string
	submittedParams map[string]any
}

func (f *fakeChainClient) SubmitTransaction(_ context.Context, _ int64, op string, params map[string]any) (string, error) {
	f.submittedOp = op
	f.submittedParams = params
	return f.txHash, f.submitErr
}

func (f *fakeChainClient) TransactionStatus(context.Context, int64, string) (TxStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeChainClient) FetchStateRoot(context.Context, int64) (int64, string, error) {
	return f.blockNumber, f.stateRoot, f.stateErr
}

func TestInitHandler_EchoesParams(t *testing.T) {
	h := initHandler{}

	res, err := h.Execute(context.Background(), &Request{
		Params: map[string]any{"deviceAddress": "0xdev", "clientId": float64(7)},
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if res.TaskStatus != domain.TaskStatusDone {
		t.Fatalf("status = %s, want done", res.TaskStatus)
	}
	if res.TaskResponseData["deviceAddress"] != "0xdev" {
		t.Fatalf("response data missing params: %+v", res.TaskResponseData)
	}
}

func TestPerformTransactionHandler(t *testing.T) {
	client := &fakeChainClient{txHash: "0xabc"}
	h := performTransactionHandler{client: client, op: "authorizeDevicePerformTransaction"}

	res, err := h.Execute(context.Background(), &Request{
		ChainID: 200,
		Params:  map[string]any{"deviceAddress": "0xdev"},
	})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if res.TaskStatus != domain.TaskStatusDone {
		t.Fatalf("status = %s, want done", res.TaskStatus)
	}
	if res.TaskResponseData["transactionHash"] != "0xabc" {
		t.Fatalf("transactionHash missing: %+v", res.TaskResponseData)
	}
	if res.TaskResponseData["chainId"] != int64(200) {
		t.Fatalf("chainId = %v, want 200", res.TaskResponseData["chainId"])
	}
	if client.submittedOp != "authorizeDevicePerformTransaction" {
		t.Fatalf("submitted op = %s", client.submittedOp)
	}
}

func TestPerformTransactionHandler_SubmitError(t *testing.T) {
	// Gateway errors are infrastructure failures: returned as error,
	// not as a failed result.
	client := &fakeChainClient{submitErr: errors.New("gateway down")}
	h := performTransactionHandler{client: client, op: "op"}

	if _, err := h.Execute(context.Background(), &Request{}); err == nil {
		t.Fatal("expected error from submit failure")
	}
}

func TestVerifyTransactionHandler(t *testing.T) {
	cases := []struct {
		name       string
		status     TxStatus
		wantStatus domain.TaskStatus
	}{
		{"mined", TxStatusMined, domain.TaskStatusDone},
		{"pending", TxStatusPending, domain.TaskStatusPending},
		{"reverted", TxStatusReverted, domain.TaskStatusFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := verifyTransactionHandler{client: &fakeChainClient{status: tc.status}}

			res, err := h.Execute(context.Background(), &Request{
				Params: map[string]any{"transactionHash": "0xabc"},
			})
			if err != nil {
				t.Fatalf("Execute() = %v", err)
			}
			if res.TaskStatus != tc.wantStatus {
				t.Fatalf("status = %s, want %s", res.TaskStatus, tc.wantStatus)
			}
		})
	}
}

func TestVerifyTransactionHandler_MissingHash(t *testing.T) {
	// No hash means the perform step never published its data: an
	// expected failure, routed through the onFailure edge.
	h := verifyTransactionHandler{client: &fakeChainClient{}}

	res, err := h.Execute(context.Background(), &Request{Params: map[string]any{}})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if res.TaskStatus != domain.TaskStatusFailed {
		t.Fatalf("status = %s, want failed", res.TaskStatus)
	}
}

func TestVerifyTransactionHandler_StatusError(t *testing.T) {
	h := verifyTransactionHandler{client: &fakeChainClient{statusErr: errors.New("timeout")}}

	_, err := h.Execute(context.Background(), &Request{
		Params: map[string]any{"transactionHash": "0xabc"},
	})
	if err == nil {
		t.Fatal("expected error from status failure")
	}
}

func TestCommitStateRootHandler(t *testing.T) {
	client := &fakeChainClient{
		txHash:      "0xcommit",
		blockNumber: 42,
		stateRoot:   "0xroot",
	}
	h := commitStateRootHandler{client: client}

	res, err := h.Execute(context.Background(), &Request{ChainID: 3})
	if err != nil {
		t.Fatalf("Execute() = %v", err)
	}
	if res.TaskStatus != domain.TaskStatusDone {
		t.Fatalf("status = %s, want done", res.TaskStatus)
	}
	if res.TaskResponseData["transactionHash"] != "0xcommit" {
		t.Fatalf("transactionHash missing: %+v", res.TaskResponseData)
	}
	if client.submittedOp != "commitStateRoot" {
		t.Fatalf("submitted op = %s", client.submittedOp)
	}
	if client.submittedParams["blockNumber"] != int64(42) {
		t.Fatalf("blockNumber = %v, want 42", client.submittedParams["blockNumber"])
	}
}

func TestRegistry_RegisterResolve(t *testing.T) {
	r := NewRegistry()
	r.Register("custom", initHandler{})

	if !r.Has("custom") {
		t.Fatal("Has(custom) = false")
	}
	if _, err := r.Resolve("custom"); err != nil {
		t.Fatalf("Resolve(custom) = %v", err)
	}
	if _, err := r.Resolve("missing"); !errors.Is(err, ErrHandlerNotRegistered) {
		t.Fatalf("Resolve(missing) = %v, want ErrHandlerNotRegistered", err)
	}
}

func TestDefaultRegistry_CoversAllGraphs(t *testing.T) {
	r := DefaultRegistry(&fakeChainClient{})

	if err := r.Verify(graph.DefaultRegistry()); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerify_MissingHandler(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.StepMarkSuccess, sentinelHandler{})
	r.Register(domain.StepMarkFailure, sentinelHandler{})

	err := r.Verify(graph.DefaultRegistry())
	if !errors.Is(err, ErrHandlerNotRegistered) {
		t.Fatalf("Verify() = %v, want ErrHandlerNotRegistered", err)
	}
}

func TestParseEndpoints(t *testing.T) {
	endpoints, err := ParseEndpoints("3=http://origin:4567, 200=http://aux:4568")
	if err != nil {
		t.Fatalf("ParseEndpoints() = %v", err)
	}
	if endpoints[3] != "http://origin:4567" || endpoints[200] != "http://aux:4568" {
		t.Fatalf("endpoints = %+v", endpoints)
	}

	if _, err := ParseEndpoints("not-a-pair"); err == nil {
		t.Fatal("expected error for malformed pair")
	}
	if _, err := ParseEndpoints("x=http://host"); err == nil {
		t.Fatal("expected error for non-numeric chain id")
	}

	empty, err := ParseEndpoints("")
	if err != nil || len(empty) != 0 {
		t.Fatalf("ParseEndpoints(\"\") = %+v, %v", empty, err)
	}
}

func TestParamHelpers(t *testing.T) {
	params := map[string]any{
		"s":     "value",
		"n":     float64(42), // as JSON decoding produces
		"exact": int64(7),
	}

	if got := ParamString(params, "s"); got != "value" {
		t.Fatalf("ParamString = %q", got)
	}
	if got := ParamString(params, "n"); got != "" {
		t.Fatalf("ParamString on number = %q, want empty", got)
	}
	if got := ParamInt64(params, "n"); got != 42 {
		t.Fatalf("ParamInt64 = %d, want 42", got)
	}
	if got := ParamInt64(params, "exact"); got != 7 {
		t.Fatalf("ParamInt64 = %d, want 7", got)
	}
	if got := ParamInt64(params, "missing"); got != 0 {
		t.Fatalf("ParamInt64 missing = %d, want 0", got)
	}
}
