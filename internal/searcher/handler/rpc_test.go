package handler

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/Adithya-Monish-Kumar-K/trix/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/proto"
	"github.com/Adithya-Monish-Kumar-K/trix/pkg/rpc"
)

func TestRPC(t *testing.T) {
	tr := &tracker{}
	h := New(Config{
		Executor: &fakeExecutor{},
		Indexes:  &fakeIndexes{},
		Tracker:  tr,
		Metrics:  metrics.NewWithRegistry(prometheus.NewRegistry()),
	})
	s := rpc.NewServer()
	h.RegisterRPC(s)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go s.Serve(ln)
	t.Cleanup(s.Stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := rpc.Dial(ctx, ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	var resp proto.SearchResponse
	if err := c.Call(ctx, MethodSearch, proto.SearchRequest{Query: "fox"}, &resp); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if resp.Total != 1 || resp.Results[0].ItemID != "g1" {
		t.Errorf("response = %+v", resp)
	}
	tr.mu.Lock()
	tracked := len(tr.events)
	tr.mu.Unlock()
	if tracked != 1 {
		t.Errorf("tracked %d events, want 1", tracked)
	}

	err = c.Call(ctx, MethodSearch, proto.SearchRequest{Query: "fox", Index: "missing"}, &resp)
	if !errors.Is(err, apperrors.ErrIndexNotFound) {
		t.Errorf("missing index error = %v", err)
	}

	var infos proto.IndexesResponse
	if err := c.Call(ctx, MethodIndexes, proto.IndexesRequest{}, &infos); err != nil {
		t.Fatalf("Indexes: %v", err)
	}
	if len(infos.Indexes) != 1 || infos.Indexes[0].Name != "genes" {
		t.Errorf("indexes = %+v", infos)
	}
}
